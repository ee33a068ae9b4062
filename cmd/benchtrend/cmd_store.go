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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

func newStoreCommand(a *app) *cobra.Command {
	var lenient bool
	cmd := &cobra.Command{
		Use:   "store FILE",
		Short: "Store a benchmark snapshot in the history",
		Long: `Validates a benchmark JSON file against the snapshot schema and stores it
as a new run. The snapshot's timestamp is kept when present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := storeSnapshotFile(ctx, st, args[0], !lenient)
			if err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("Stored %d benchmarks at %s", len(run.Benchmarks), snapshot.FormatTimestamp(run.Timestamp)))
			fmt.Fprintln(a.stdout, run.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&lenient, "lenient", false, "Skip schema validation")
	return cmd
}

// storeSnapshotFile reads a snapshot document and stores it. The
// document's timestamp is used when present, otherwise now.
func storeSnapshotFile(ctx context.Context, st store.Store, path string, strict bool) (*snapshot.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	doc, err := snapshot.DecodeDocument(data, strict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var ts *time.Time
	if doc.Timestamp != "" {
		parsed, err := snapshot.ParseTimestamp(doc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ts = &parsed
	}
	run, err := st.Store(ctx, doc.Benchmarks, ts)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", path, err)
	}
	return run, nil
}

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history NAME",
		Short: "Print a benchmark's stored history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			points, err := st.HistoryFor(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(points)
			}
			if len(points) == 0 {
				a.printer.Warning(fmt.Sprintf("No history for %s", args[0]))
				return nil
			}
			a.printer.Title(fmt.Sprintf("History for %s", args[0]))
			for _, p := range points {
				fmt.Fprintf(a.stdout, "%s\t%s\n", snapshot.FormatTimestamp(p.Timestamp), formatStats(p.Stats))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to read (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// formatStats renders stats as sorted key=value pairs.
func formatStats(stats snapshot.Stats) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatFloat(stats[k], 'g', -1, 64))
	}
	return strings.Join(parts, " ")
}
