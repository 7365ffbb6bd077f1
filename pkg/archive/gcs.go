//go:build gcp

package archive

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/zstd"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// GCSSink archives blocks to a Google Cloud Storage bucket, using
// application default credentials.
type GCSSink struct {
	client   *storage.Client
	bucket   string
	prefix   string
	compress bool
	enc      *zstd.Encoder
}

func NewGCSSink(ctx context.Context, cfg Config) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: gcs sink requires a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs client: %w", err)
	}
	s := &GCSSink{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		compress: cfg.Compress,
	}
	if cfg.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("archive: zstd encoder: %w", err)
		}
		s.enc = enc
	}
	return s, nil
}

func (s *GCSSink) Archive(ctx context.Context, block *contracts.LogBlock) (string, error) {
	data, err := marshalCanonical(block)
	if err != nil {
		return "", err
	}
	contentType := "application/json"
	if s.compress {
		data = s.enc.EncodeAll(data, make([]byte, 0, len(data)))
		contentType = "application/zstd"
	}
	key := s.prefix + ObjectKey(block, s.compress)

	obj := s.client.Bucket(s.bucket).Object(key)
	if _, err := obj.Attrs(ctx); err == nil {
		return key, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("archive: gcs attrs %s: %w", key, err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: gcs commit %s: %w", key, err)
	}
	return key, nil
}

func (s *GCSSink) Close() error {
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			_ = s.client.Close()
			return err
		}
	}
	return s.client.Close()
}
