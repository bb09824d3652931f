package config

import (
	"flag"
	"strings"
)

var (
	flagConfig     = flag.String("config", "", "Path to config file (.yaml or .toml)")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile    = flag.String("log-file", "", "Also log to this rotating file")
	flagGame       = flag.String("game", "", "Default game for new assets (SKYRIM, SKYRIMSE, FO4, FO76, FO3)")
	flagPacks      = flag.String("packs", "", "Comma separated pack archives to read assets from")
	flagStrict     = flag.Bool("strict", false, "Fail loads that produce warnings")
	flagMaxHandles = flag.Int("max-handles", 0, "Cap on live handles")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagGame != "" {
		cfg.Library.DefaultGame = strings.ToUpper(*flagGame)
	}
	if *flagPacks != "" {
		cfg.Library.PackPaths = nil
		for _, p := range strings.Split(*flagPacks, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Library.PackPaths = append(cfg.Library.PackPaths, p)
			}
		}
	}
	if *flagStrict {
		cfg.Library.StrictLoad = true
	}
	if *flagMaxHandles > 0 {
		cfg.Bridge.MaxHandles = *flagMaxHandles
	}
}
