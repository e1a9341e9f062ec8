// Package gcs fetches statement files referenced by gs:// URIs for the
// background worker.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/ledgerline/statement-engine/internal/logger"
)

// Fetch downloads the object behind a "gs://bucket/path/to/file" URI.
// The caller's context-scoped logger is used, so fetches show up under the
// job that requested them.
func Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	log := logger.FromContext(ctx)
	log.Debug().Str("gcs_uri", gcsURI).Msg("Fetching statement object")

	bucket, object, err := splitURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func splitURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", fmt.Errorf("not a GCS URI: %q", uri)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed GCS URI: %q", uri)
	}
	return parts[0], parts[1], nil
}
