package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// S3Sink archives blocks to an S3 bucket. A HeadObject probe makes
// redelivered blocks a no-op instead of a second upload.
type S3Sink struct {
	client   *s3.Client
	bucket   string
	prefix   string
	compress bool
	enc      *zstd.Encoder
}

// NewS3Sink loads AWS configuration from the environment. Endpoint
// switches on path-style addressing for S3-compatible stores.
func NewS3Sink(ctx context.Context, cfg Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: s3 sink requires a bucket")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	s := &S3Sink{
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

func (s *S3Sink) Archive(ctx context.Context, block *contracts.LogBlock) (string, error) {
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

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Sink) Close() error {
	if s.enc != nil {
		return s.enc.Close()
	}
	return nil
}
