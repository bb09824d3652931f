package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/nifbridge/internal/logger"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// modelExts are the extensions watch converts.
var modelExts = map[string]bool{".rsm": true, ".nifc": true}

func (a *app) cmdWatch(args []string) error {
	if len(args) != 2 {
		return usageError("watch <dir> <outdir>")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.watch(ctx, args[0], args[1], nil)
}

// watch converts every model already in dir, then reconverts models as they
// are created or written until ctx ends. ready, when set, is closed once the
// watcher is running.
func (a *app) watch(ctx context.Context, dir, outDir string, ready chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			a.reconvert(filepath.Join(dir, e.Name()), outDir)
		}
	}

	log := logger.Named("watch")
	log.Info("watching", zap.String("dir", dir), zap.String("out", outDir))
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				a.reconvert(e.Name, outDir)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}

// reconvert saves path natively under outDir. Failures are logged; a half
// written file is converted again on its next write event.
func (a *app) reconvert(path, outDir string) {
	ext := strings.ToLower(filepath.Ext(path))
	if !modelExts[ext] {
		return
	}
	log := logger.Named("watch").With(zap.String("path", path))

	h, err := a.open(path)
	if err != nil {
		log.Warn("load failed", zap.Error(err))
		return
	}
	defer a.bridge.Release(h)

	target := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".nifc")
	if err := a.fail(status.ScopeAsset, a.bridge.SaveAsset(h, target)); err != nil {
		log.Warn("save failed", zap.Error(err))
		return
	}
	fmt.Fprintf(a.out, "Converted: %s -> %s\n", path, target)
}
