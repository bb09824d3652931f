// niftool inspects and converts model files through the handle based
// bridge, the same surface a foreign caller uses.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/nifbridge/internal/config"
	"github.com/Faultbox/nifbridge/internal/logger"
	"github.com/Faultbox/nifbridge/pkg/bridge"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/pack"
	"github.com/Faultbox/nifbridge/pkg/status"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	command, args := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage(os.Stdout)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}

	err = a.run(command, args)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.As(err, new(usageError)) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `niftool - model inspection and conversion

Usage:
  niftool [flags] <command> [options]

Commands:
  info <model>...                    Show asset summaries
  nodes <model>                      Print the node tree with global positions
  shapes <model>                     List shapes, channels and skin sizes
  skin <model> <shape>               Dump bone table and skin weights
  extra <model>                      List root and shape extra data
  anim <model> [sequence]            List sequences or dump one sequence's tracks
  convert <in> <out>                 Load any supported model and save it natively
  pack list <file.pack>              List pack contents
  pack create <out.pack> <file>...   Build a pack from files
  pack extract <file.pack> <path> [dir]
  watch <dir> <outdir>               Convert models in dir whenever they change

Flags:
  -config, -debug, -log-file, -game, -packs, -strict, -max-handles

Examples:
  niftool info body.nifc
  niftool -packs data.pack convert data/model/tree.rsm tree.nifc
  niftool skin body.nifc Body`)
}

func initLogging(cfg *config.Config) error {
	opts := logger.Options{
		Level:   cfg.Logging.Level,
		Format:  logger.Format(cfg.Logging.Format),
		Console: os.Stderr,
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	return logger.Init(opts)
}

// usageError carries a command's usage line.
type usageError string

func (u usageError) Error() string { return "usage: niftool " + string(u) }

// app wires config into the pack manager, model library and bridge.
type app struct {
	out    io.Writer
	packs  *pack.Manager
	bridge *bridge.Bridge
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	packs := pack.NewManager(
		pack.WithLogger(logger.Named("pack")),
		pack.WithCacheEntries(cfg.Library.CacheEntries),
	)
	for _, path := range cfg.Library.PackPaths {
		if err := packs.AddPack(path); err != nil {
			packs.Close()
			return nil, err
		}
	}

	game, err := nifly.ParseGame(cfg.Library.DefaultGame)
	if err != nil {
		packs.Close()
		return nil, err
	}
	lib := nifly.NewLibrary(
		nifly.WithLogger(logger.Named("library")),
		nifly.WithPacks(packs),
		nifly.WithDefaultGame(game),
		nifly.WithStrict(cfg.Library.StrictLoad),
	)

	return &app{
		out:   out,
		packs: packs,
		bridge: bridge.New(lib,
			bridge.WithLogger(logger.Named("bridge")),
			bridge.WithMaxHandles(cfg.Bridge.MaxHandles),
		),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.bridge.Close(), a.packs.Close())
}

func (a *app) run(command string, args []string) error {
	switch command {
	case "info":
		return a.cmdInfo(args)
	case "nodes":
		return a.cmdNodes(args)
	case "shapes":
		return a.cmdShapes(args)
	case "skin":
		return a.cmdSkin(args)
	case "extra":
		return a.cmdExtra(args)
	case "anim":
		return a.cmdAnim(args)
	case "convert":
		return a.cmdConvert(args)
	case "pack":
		return a.cmdPack(args)
	case "watch":
		return a.cmdWatch(args)
	default:
		return fmt.Errorf("unknown command %q (try niftool help)", command)
	}
}

// fail turns a non-OK code into an error carrying the scope's last message.
func (a *app) fail(scope status.Scope, code status.Code) error {
	if code == status.OK {
		return nil
	}
	buf := make([]byte, 256)
	n, c := a.bridge.LastError(scope, buf)
	if c == status.BufferTooSmall {
		buf = make([]byte, n)
		n, _ = a.bridge.LastError(scope, buf)
	}
	return fmt.Errorf("%s: %s", code, buf[:n])
}

// text runs a string query, growing the buffer when it is too small.
func (a *app) text(scope status.Scope, query func([]byte) (int, status.Code)) (string, error) {
	buf := make([]byte, 64)
	n, code := query(buf)
	if code == status.BufferTooSmall {
		buf = make([]byte, n)
		n, code = query(buf)
	}
	if err := a.fail(scope, code); err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func (a *app) open(path string) (bridge.Handle, error) {
	h, code := a.bridge.LoadAsset(path)
	if err := a.fail(status.ScopeLibrary, code); err != nil {
		return 0, fmt.Errorf("loading %s: %w", path, err)
	}
	return h, nil
}
