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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/registry"
	"github.com/AleutianAI/benchtrend/services/trend/server"
	"github.com/AleutianAI/benchtrend/services/trend/store"
	"github.com/AleutianAI/benchtrend/services/trend/watch"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and trend API until interrupted",
		Long: `Starts the HTTP server (dashboard, JSON API, /metrics) and, for the file
backend, a watcher that re-analyzes trends when new runs arrive. Runs until
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a, !noWatch)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: :8080)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the data directory")
	return cmd
}

func runServe(ctx context.Context, a *app, watchRuns bool) error {
	logger := a.slogger()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	dash, err := newDashboard(a, a.cfg.Dashboard.ChartBackend, a.cfg.Dashboard.Charts)
	if err != nil {
		return err
	}

	srv := server.New(st, server.Config{
		Addr:            a.cfg.Server.Addr,
		Metric:          a.cfg.Trend.Metric,
		HistoryLimit:    a.cfg.Trend.HistoryLimit,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	},
		server.WithLogger(logger),
		server.WithAnalyzer(analysis.NewAnalyzer(st,
			analysis.WithLogger(logger),
			analysis.WithMetrics(a.metrics),
		)),
		server.WithDashboard(dash),
		server.WithMetricsHandler(promhttp.HandlerFor(
			prometheus.Gatherers{a.registry, prometheus.DefaultGatherer},
			promhttp.HandlerOpts{},
		)),
	)

	services := registry.New(logger)
	if err := services.Register(srv); err != nil {
		return err
	}
	if watchRuns && a.cfg.Backend == store.BackendFile {
		w := watch.New(a.cfg.DataDir, reanalyze(a, st), watch.Options{
			Debounce:    a.cfg.Watch.Debounce,
			MinInterval: a.cfg.Watch.MinInterval,
			Logger:      logger,
		})
		if err := services.Register(w); err != nil {
			return err
		}
	}

	if err := services.StartAll(ctx, true); err != nil {
		return fmt.Errorf("starting services: %w", err)
	}
	a.printer.Success(fmt.Sprintf("Serving dashboard on http://%s/dashboard", srv.Addr()))

	<-ctx.Done()
	logger.Info("shutting down", slog.Any("services", services.List()))

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return services.StopAll(stopCtx)
}

// reanalyze refreshes the trend gauges after a new run lands.
func reanalyze(a *app, st store.Store) watch.Handler {
	log := a.log().With(slog.String("handler", "reanalyze"))
	return func(ctx context.Context, path string) error {
		rep, err := analyze(ctx, a, st, analysisRequest{})
		if err != nil {
			return err
		}
		s := rep.Summary()
		log.Info("trends refreshed",
			slog.String("run", filepath.Base(path)),
			slog.Int("benchmarks", s.Total),
			slog.Int("degrading", s.Degrading),
		)
		return nil
	}
}
