// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

var (
	// ErrCommentRejected is returned when GitHub does not answer 201 Created.
	ErrCommentRejected = errors.New("publish: comment rejected")

	// ErrInvalidRepo is returned for a repository not in owner/repo form.
	ErrInvalidRepo = errors.New("publish: repository must be owner/repo")
)

// RejectedError carries the response of a rejected comment.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("comment rejected: status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Unwrap lets errors.Is match ErrCommentRejected.
func (e *RejectedError) Unwrap() error { return ErrCommentRejected }

// Commenter posts Markdown comments to GitHub pull requests.
type Commenter struct {
	// BaseURL is the REST API root. Default: DefaultGitHubAPI.
	BaseURL string

	// Token authenticates the request.
	Token string

	// Client sends the request. Default: a 30s client with otelhttp transport.
	Client *http.Client

	// Logger receives the outcome. Default: slog.Default().
	Logger *slog.Logger
}

// NewCommenter returns a Commenter for the public API.
func NewCommenter(token string, logger *slog.Logger) *Commenter {
	return &Commenter{
		BaseURL: DefaultGitHubAPI,
		Token:   token,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: logger,
	}
}

// Post creates a comment on pull request pr of repo.
//
// Description:
//
//	Sends POST {base}/repos/{repo}/issues/{pr}/comments with body as the
//	comment text. Any status other than 201 is a *RejectedError.
//
// Inputs:
//   - ctx: Context for the request.
//   - repo: "owner/repo".
//   - pr: Pull request number. Must be positive.
//   - body: Markdown comment.
//
// Outputs:
//   - error: ErrInvalidRepo, transport failure, or *RejectedError.
func (c *Commenter) Post(ctx context.Context, repo string, pr int, body string) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	if pr <= 0 {
		return fmt.Errorf("publish: invalid pull request number %d", pr)
	}

	ctx, span := otel.Tracer("publish").Start(ctx, "publish.Commenter.Post",
		trace.WithAttributes(
			attribute.String("repo", repo),
			attribute.Int("pr", pr),
		),
	)
	defer span.End()

	base := c.BaseURL
	if base == "" {
		base = DefaultGitHubAPI
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", strings.TrimRight(base, "/"), repo, pr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("posting comment: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		span.SetStatus(codes.Error, "comment rejected")
		logger.Error("failed to post comment",
			slog.String("repo", repo),
			slog.Int("pr", pr),
			slog.Int("status", resp.StatusCode),
		)
		return &RejectedError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	logger.Info("posted comment", slog.String("repo", repo), slog.Int("pr", pr))
	return nil
}
