// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/cmd/benchtrend/config"
	"github.com/AleutianAI/benchtrend/pkg/logging"
	"github.com/AleutianAI/benchtrend/pkg/ux"
	"github.com/AleutianAI/benchtrend/services/trend/store"
	"github.com/AleutianAI/benchtrend/services/trend/telemetry"
)

// app is the state shared by every command of one invocation. It is built
// fresh per Execute so nothing leaks between runs.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// Root flags.
	configPath  string
	dataDir     string
	backend     string
	logLevel    string
	logJSON     bool
	outputLevel string

	cfg      *config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	registry *prometheus.Registry
	metrics  *telemetry.Recorder
	shutdown func(context.Context) error
}

// newRootCommand builds the command tree.
func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "benchtrend",
		Short: "Benchmark regression gating and performance trend analysis",
		Long: `benchtrend compares benchmark snapshots against regression rules, keeps a
history of runs, and classifies each benchmark's trend as improving,
stable, or degrading.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return configError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: ./benchtrend.yaml when present)")
	pf.StringVar(&a.dataDir, "data-dir", "", "Directory containing historical performance data")
	pf.StringVar(&a.backend, "backend", "", "Store backend: file or badger")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&a.logJSON, "log-json", false, "Write logs to stderr as JSON")
	pf.StringVar(&a.outputLevel, "personality", "", "Output style: standard, minimal, machine")

	root.AddCommand(
		newCompareCommand(a),
		newDashboardCommand(a),
		newStoreCommand(a),
		newHistoryCommand(a),
		newServeCommand(a),
		newWatchCommand(a),
		newPublishCommand(a),
		newCommentCommand(a),
		newPushCommand(a),
		newExportCommand(a),
	)
	return root
}

// setup loads configuration and builds the logger, printer and telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return configError(err)
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logJSON {
		cfg.Log.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return configError(err)
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "benchtrend",
		JSON:    cfg.Log.JSON,
		Output:  a.stderr,
	})

	var stdoutFile *os.File
	if f, ok := a.stdout.(*os.File); ok {
		stdoutFile = f
	}
	outLevel := ux.DetectLevel(stdoutFile)
	if a.outputLevel != "" {
		outLevel = ux.ParsePersonalityLevel(a.outputLevel)
	}
	a.printer = ux.NewPrinter(a.stdout, a.stderr, outLevel)

	a.registry = prometheus.NewRegistry()
	a.metrics = telemetry.NewRecorder(a.registry)

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry,
		telemetry.WithRegisterer(a.registry),
		telemetry.WithExportWriter(a.stderr),
	)
	if err != nil {
		if errors.Is(err, telemetry.ErrUnknownExporter) {
			return configError(err)
		}
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// teardown flushes telemetry and closes the log file. It runs after every
// command, failed or not.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.WithoutCancel(ctx)))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// slogger returns the structured logger for service packages.
func (a *app) slogger() *slog.Logger {
	return a.log().Slog()
}

// log returns the invocation's logger, or the default stderr logger when
// setup has not built one.
func (a *app) log() *logging.Logger {
	if a.logger == nil {
		return logging.Default()
	}
	return a.logger
}

// openStore opens the configured store with the app's logger and metrics.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, a.cfg.StoreOptions(),
		store.WithLogger(a.slogger()),
		store.WithMetrics(a.metrics),
	)
	if err != nil {
		if errors.Is(err, store.ErrUnknownBackend) {
			return nil, configError(err)
		}
		return nil, fmt.Errorf("opening %s store: %w", a.cfg.Backend, err)
	}
	return st, nil
}
