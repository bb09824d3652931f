package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/nifbridge/pkg/pack"
)

func (a *app) cmdPack(args []string) error {
	if len(args) < 1 {
		return usageError("pack <list|create|extract> ...")
	}
	switch args[0] {
	case "list", "ls":
		return a.packList(args[1:])
	case "create":
		return a.packCreate(args[1:])
	case "extract", "x":
		return a.packExtract(args[1:])
	default:
		return fmt.Errorf("unknown pack command %q", args[0])
	}
}

func (a *app) packList(args []string) error {
	if len(args) != 1 {
		return usageError("pack list <file.pack>")
	}
	archive, err := pack.Open(args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	var total uint64
	for _, name := range archive.List() {
		entry, err := archive.Stat(name)
		if err != nil {
			return err
		}
		total += uint64(entry.UncompressedSize)
		fmt.Fprintf(a.out, "%10d  %s\n", entry.UncompressedSize, name)
	}
	fmt.Fprintf(a.out, "\n%d files, %.2f MB\n", archive.Len(), float64(total)/(1024*1024))
	return nil
}

// packCreate stores each file under its path relative to the working
// directory, slash separated.
func (a *app) packCreate(args []string) error {
	if len(args) < 2 {
		return usageError("pack create <out.pack> <file>...")
	}
	w := pack.NewWriter()
	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		w.Add(filepath.ToSlash(filepath.Clean(path)), data)
	}
	if err := w.Save(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Packed %d files into %s\n", w.Len(), args[0])
	return nil
}

func (a *app) packExtract(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usageError("pack extract <file.pack> <path|pattern> [dir]")
	}
	archive, err := pack.Open(args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	outputDir := "."
	if len(args) == 3 {
		outputDir = args[2]
	}

	pattern := strings.ToLower(args[1])
	var names []string
	if strings.ContainsAny(pattern, "*?[") {
		for _, name := range archive.List() {
			if ok, _ := filepath.Match(pattern, filepath.Base(name)); ok {
				names = append(names, name)
			}
		}
	} else if archive.Contains(pattern) {
		names = []string{pattern}
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: %s", pack.ErrNotFound, args[1])
	}

	for _, name := range names {
		data, err := archive.Read(name)
		if err != nil {
			return err
		}
		out := filepath.Join(outputDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Extracted: %s (%d bytes)\n", out, len(data))
	}
	return nil
}
