// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package publish delivers benchtrend output outside the runner: dashboards
// and runs to Google Cloud Storage, and Markdown reports to GitHub pull
// requests.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// ErrNoBucket is returned when no bucket name is configured.
var ErrNoBucket = errors.New("publish: bucket is required")

// Bucket opens object writers. *storage.BucketHandle is adapted by
// NewGCSUploader; tests supply their own.
type Bucket interface {
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := b.handle.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"
	return w
}

// UploaderConfig configures an Uploader.
type UploaderConfig struct {
	// Bucket is the GCS bucket name. Required.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object name.
	Prefix string `yaml:"prefix"`

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// Concurrency bounds parallel uploads in UploadDir. Default: 4.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`
}

// Uploader copies local files into a bucket.
//
// Thread Safety: Safe for concurrent use.
type Uploader struct {
	bucket      Bucket
	name        string
	prefix      string
	concurrency int
	logger      *slog.Logger
	closer      func() error
}

// NewUploader wraps an existing Bucket.
func NewUploader(bucket Bucket, name, prefix string, concurrency int, logger *slog.Logger) *Uploader {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		bucket:      bucket,
		name:        name,
		prefix:      prefix,
		concurrency: concurrency,
		logger:      logger,
		closer:      func() error { return nil },
	}
}

// NewGCSUploader creates a storage client and returns an Uploader for
// cfg.Bucket.
//
// Outputs:
//   - *Uploader: Must be closed.
//   - error: ErrNoBucket, a missing credentials file, or client failure.
func NewGCSUploader(ctx context.Context, cfg UploaderConfig, logger *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	u := NewUploader(gcsBucket{handle: client.Bucket(cfg.Bucket)}, cfg.Bucket, cfg.Prefix, cfg.Concurrency, logger)
	u.closer = client.Close
	return u, nil
}

// Close releases the storage client.
func (u *Uploader) Close() error {
	return u.closer()
}

// ObjectName returns the object name for a path relative to the prefix.
func (u *Uploader) ObjectName(rel string) string {
	return path.Join(u.prefix, filepath.ToSlash(rel))
}

// URL returns the gs:// URL of an object.
func (u *Uploader) URL(object string) string {
	return fmt.Sprintf("gs://%s/%s", u.name, object)
}

// UploadFile uploads localPath as object name rel (joined to the prefix).
//
// Outputs:
//   - string: The gs:// URL of the uploaded object.
//   - error: Open, copy, or close failure.
func (u *Uploader) UploadFile(ctx context.Context, localPath, rel string) (string, error) {
	object := u.ObjectName(rel)
	ctx, span := otel.Tracer("publish").Start(ctx, "publish.Uploader.UploadFile",
		trace.WithAttributes(attribute.String("object", object)),
	)
	defer span.End()

	f, err := os.Open(localPath)
	if err != nil {
		span.SetStatus(codes.Error, "open failed")
		return "", fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer f.Close()

	w := u.bucket.NewWriter(ctx, object, ContentType(localPath))
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		span.SetStatus(codes.Error, "copy failed")
		return "", fmt.Errorf("failed to copy local file %s to object %s: %w", localPath, object, err)
	}
	if err := w.Close(); err != nil {
		span.SetStatus(codes.Error, "close failed")
		return "", fmt.Errorf("failed to close writer for %s: %w", object, err)
	}

	url := u.URL(object)
	u.logger.Info("uploaded file", slog.String("path", localPath), slog.String("url", url))
	return url, nil
}

// UploadDir uploads every regular file under dir, preserving relative paths.
// Uploads run in parallel up to the configured concurrency; the first
// failure cancels the rest.
//
// Outputs:
//   - []string: gs:// URLs sorted by object name.
//   - error: Walk or upload failure.
func (u *Uploader) UploadDir(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	urls := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, p := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			url, err := u.UploadFile(gctx, p, rel)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(urls)
	return urls, nil
}

// ContentType derives a media type from a file extension.
func ContentType(p string) string {
	switch ext := filepath.Ext(p); ext {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	case "":
		return "application/octet-stream"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
