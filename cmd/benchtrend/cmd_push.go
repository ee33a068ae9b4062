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
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/services/trend/store"
	"github.com/AleutianAI/benchtrend/services/trend/telemetry"
)

func newPushCommand(a *app) *cobra.Command {
	var pushgateway, job string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Analyze trends and push the trend gauges to a Prometheus Pushgateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if pushgateway == "" {
				pushgateway = a.cfg.Prometheus.PushgatewayURL
			}
			if job == "" {
				job = a.cfg.Prometheus.Job
			}
			if pushgateway == "" {
				return configError(errors.New("a pushgateway URL is required (--pushgateway or prometheus.pushgateway_url)"))
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rep, err := analyze(ctx, a, st, analysisRequest{})
			if err != nil {
				return err
			}
			if err := telemetry.Push(ctx, pushgateway, job, a.registry); err != nil {
				return err
			}
			a.log().Info("pushed trend metrics",
				slog.String("job", job),
				slog.Int("benchmarks", len(rep.Trends)),
			)
			a.printer.Success(fmt.Sprintf("Pushed %d trend(s) to %s", len(rep.Trends), pushgateway))
			return nil
		},
	}
	cmd.Flags().StringVar(&pushgateway, "pushgateway", "", "Pushgateway URL")
	cmd.Flags().StringVar(&job, "job", "", "Pushgateway job name (default: benchtrend)")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	export := &cobra.Command{
		Use:   "export",
		Short: "Export stored history to external systems",
	}

	var influx store.InfluxConfig
	influxCmd := &cobra.Command{
		Use:   "influx",
		Short: "Write every stored run to an InfluxDB v2 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			target := mergeInflux(a.cfg.Influx, influx)
			if target.URL == "" || target.Bucket == "" {
				return configError(errors.New("influx url and bucket are required"))
			}

			// Read from the primary store only so the export does not
			// mirror back into the target.
			opts := a.cfg.StoreOptions()
			opts.Influx = nil
			st, err := store.Open(ctx, opts, store.WithLogger(a.slogger()))
			if err != nil {
				return fmt.Errorf("opening %s store: %w", opts.Backend, err)
			}
			defer st.Close()

			writer, closeWriter := store.NewInfluxWriter(target)
			defer closeWriter()

			n, err := store.Backfill(ctx, st, writer)
			if err != nil {
				return fmt.Errorf("exporting to influx after %d points: %w", n, err)
			}
			a.printer.Success(fmt.Sprintf("Exported %d point(s) to %s/%s", n, target.URL, target.Bucket))
			return nil
		},
	}
	f := influxCmd.Flags()
	f.StringVar(&influx.URL, "url", "", "InfluxDB URL")
	f.StringVar(&influx.Token, "token", "", "InfluxDB API token")
	f.StringVar(&influx.Org, "org", "", "InfluxDB organization")
	f.StringVar(&influx.Bucket, "bucket", "", "InfluxDB bucket")

	export.AddCommand(influxCmd)
	return export
}

// mergeInflux overlays non-empty flag values on the configured target.
func mergeInflux(base, flags store.InfluxConfig) store.InfluxConfig {
	if flags.URL != "" {
		base.URL = flags.URL
	}
	if flags.Token != "" {
		base.Token = flags.Token
	}
	if flags.Org != "" {
		base.Org = flags.Org
	}
	if flags.Bucket != "" {
		base.Bucket = flags.Bucket
	}
	return base
}
