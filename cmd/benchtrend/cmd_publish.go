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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/services/trend/publish"
)

func newPublishCommand(a *app) *cobra.Command {
	var bucket, prefix, credentials string
	cmd := &cobra.Command{
		Use:   "publish PATH...",
		Short: "Upload reports and dashboards to Google Cloud Storage",
		Long: `Uploads files, or every file under a directory, to the configured bucket.
Object names are the prefix joined with the file's base name, or with the
path relative to the directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.GCS
			if bucket != "" {
				cfg.Bucket = bucket
			}
			if prefix != "" {
				cfg.Prefix = prefix
			}
			if credentials != "" {
				cfg.CredentialsFile = credentials
			}

			uploader, err := publish.NewGCSUploader(ctx, cfg, a.slogger())
			if err != nil {
				if errors.Is(err, publish.ErrNoBucket) {
					return configError(err)
				}
				return err
			}
			defer uploader.Close()

			for _, p := range args {
				info, err := os.Stat(p)
				if err != nil {
					return fmt.Errorf("publishing %s: %w", p, err)
				}
				if info.IsDir() {
					urls, err := uploader.UploadDir(ctx, p)
					if err != nil {
						return err
					}
					for _, u := range urls {
						fmt.Fprintln(a.stdout, u)
					}
					continue
				}
				url, err := uploader.UploadFile(ctx, p, filepath.Base(p))
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, url)
			}
			a.printer.Success(fmt.Sprintf("Published %d path(s) to gs://%s", len(args), cfg.Bucket))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&bucket, "bucket", "", "GCS bucket")
	f.StringVar(&prefix, "prefix", "", "Object name prefix")
	f.StringVar(&credentials, "credentials", "", "Service account key file (default: application default credentials)")
	return cmd
}

func newCommentCommand(a *app) *cobra.Command {
	var (
		reportPath string
		repo       string
		pr         int
		token      string
	)
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Post a benchmark report as a comment on a GitHub pull request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if repo == "" {
				repo = a.cfg.GitHub.Repo
			}
			if token == "" {
				token = a.cfg.GitHub.Token
			}
			if token == "" {
				return configError(errors.New("a GitHub token is required (--github-token or GITHUB_TOKEN)"))
			}

			body, err := os.ReadFile(reportPath)
			if err != nil {
				return fmt.Errorf("reading report: %w", err)
			}

			commenter := publish.NewCommenter(token, a.slogger())
			if a.cfg.GitHub.APIURL != "" {
				commenter.BaseURL = a.cfg.GitHub.APIURL
			}
			if err := commenter.Post(cmd.Context(), repo, pr, string(body)); err != nil {
				var rejected *publish.RejectedError
				if errors.As(err, &rejected) {
					return fmt.Errorf("failed to post comment. Status code: %d, Response: %s",
						rejected.StatusCode, rejected.Body)
				}
				if errors.Is(err, publish.ErrInvalidRepo) {
					return configError(err)
				}
				return err
			}
			a.printer.Success("Benchmark report posted as a comment to the PR.")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reportPath, "report", "", "Path to the benchmark report file")
	f.StringVar(&repo, "repo", "", "GitHub repository (owner/repo); default: GITHUB_REPOSITORY")
	f.IntVar(&pr, "pr", 0, "Pull request number")
	f.StringVar(&token, "github-token", "", "GitHub API token; default: GITHUB_TOKEN")
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("pr")
	return cmd
}
