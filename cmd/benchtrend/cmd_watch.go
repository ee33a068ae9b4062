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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/services/trend/report"
	"github.com/AleutianAI/benchtrend/services/trend/store"
	"github.com/AleutianAI/benchtrend/services/trend/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate the dashboard whenever a new run is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "" {
				a.cfg.Dashboard.Output = output
			}
			return runWatch(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Output path for the HTML dashboard")
	return cmd
}

func runWatch(ctx context.Context, a *app) error {
	if a.cfg.Backend != store.BackendFile {
		return configError(fmt.Errorf("watch requires the %q backend, got %q", store.BackendFile, a.cfg.Backend))
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	dash, err := newDashboard(a, a.cfg.Dashboard.ChartBackend, a.cfg.Dashboard.Charts)
	if err != nil {
		return err
	}

	w := watch.New(a.cfg.DataDir, regenerate(a, st, dash), watch.Options{
		Debounce:    a.cfg.Watch.Debounce,
		MinInterval: a.cfg.Watch.MinInterval,
		Logger:      a.slogger(),
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.printer.Success(fmt.Sprintf("Watching %s; dashboard at %s", a.cfg.DataDir, a.cfg.Dashboard.Output))

	<-ctx.Done()
	return w.Stop(context.WithoutCancel(ctx))
}

// regenerate rewrites the dashboard file after a new run lands.
func regenerate(a *app, st store.Store, dash *report.Dashboard) watch.Handler {
	log := a.log().With(slog.String("handler", "regenerate"))
	return func(ctx context.Context, path string) error {
		rep, err := analyze(ctx, a, st, analysisRequest{})
		if err != nil {
			return err
		}
		if err := dash.WriteFile(ctx, a.cfg.Dashboard.Output, rep); err != nil {
			return err
		}
		log.Info("dashboard regenerated",
			slog.String("run", filepath.Base(path)),
			slog.String("output", a.cfg.Dashboard.Output),
		)
		return nil
	}
}
