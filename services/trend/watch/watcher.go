// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reacts to new benchmark runs landing in a data directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// RunPattern matches run files written by the file store.
const RunPattern = "benchmark_*.json"

// ErrNotWatching is reported by Health before Start or after Stop.
var ErrNotWatching = errors.New("watch: not watching")

// Handler is called once per burst of run file changes with the most
// recent path.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the directory must be quiet before the handler
	// runs. Default: 250ms.
	Debounce time.Duration

	// MinInterval is the minimum time between handler calls. Default: 2s.
	MinInterval time.Duration

	// Logger receives handler failures. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the watcher defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:    250 * time.Millisecond,
		MinInterval: 2 * time.Second,
	}
}

// Watcher watches a data directory for run files. It implements
// registry.Service.
//
// Thread Safety: Safe for concurrent use.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// New creates a watcher over dir. Nothing is watched until Start.
func New(dir string, handler Handler, opts Options) *Watcher {
	def := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = def.Debounce
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = def.MinInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: opts.Debounce,
		limiter:  rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		logger:   opts.Logger,
	}
}

// Name implements registry.Service.
func (w *Watcher) Name() string { return "watcher" }

// Start creates the directory if needed and begins watching it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	// The loop outlives Start; only Stop cancels it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, fsw, w.done)

	w.logger.Info("watching for benchmark runs", slog.String("dir", w.dir))
	return nil
}

// Stop stops watching and waits for an in-flight handler to return.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	cancel()
	err := fsw.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Health implements registry.Service. It reports the last handler error.
func (w *Watcher) Health(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return ErrNotWatching
	}
	return w.lastErr
}

// IsRunFile reports whether path names a stored run file.
func IsRunFile(path string) bool {
	ok, _ := filepath.Match(RunPattern, filepath.Base(path))
	return ok
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsRunFile(event.Name) {
				continue
			}
			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if pending == "" {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			path := pending
			pending = ""
			w.fire(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) fire(ctx context.Context, path string) {
	err := w.handler(ctx, path)

	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("run handler failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Debug("run handled", slog.String("path", path))
}
