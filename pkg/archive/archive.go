// Package archive persists sealed blocks to long-term storage. Blocks
// are written as canonical (RFC 8785) JSON, optionally zstd-compressed,
// under the key <namespace>/<height>-<commitment hex>.json[.zst]. The
// key embeds everything needed to spot a gap or a fork at a glance;
// writes are idempotent because a block at a given height never
// changes.
//
// Archiving sits downstream of the emission channel: a consumer drains
// blocks and hands them to a Sink. It is at-least-once like the channel
// itself, so every sink tolerates re-archiving the same block.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/klauspost/compress/zstd"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// Sink writes sealed blocks to one storage backend. Archive returns
// the object key the block landed under.
type Sink interface {
	Archive(ctx context.Context, block *contracts.LogBlock) (string, error)
	Close() error
}

// SinkType selects a storage backend.
type SinkType string

const (
	SinkTypeFS  SinkType = "fs"
	SinkTypeS3  SinkType = "s3"
	SinkTypeGCS SinkType = "gcs"
)

// Config selects and parameterizes a sink.
type Config struct {
	Type SinkType `json:"type" yaml:"type"`

	// Dir is the base directory for the filesystem sink.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Bucket, Region, Endpoint, Prefix parameterize the object-store
	// sinks. Endpoint is for S3-compatible stores (MinIO, LocalStack).
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Compress writes zstd-compressed objects.
	Compress bool `json:"compress" yaml:"compress"`
}

// DefaultConfig archives uncompressed JSON to ./data/blocks.
func DefaultConfig() Config {
	return Config{Type: SinkTypeFS, Dir: "data/blocks"}
}

// New builds the sink named by cfg.Type. The GCS sink needs the gcp
// build tag.
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch cfg.Type {
	case SinkTypeFS, "":
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultConfig().Dir
		}
		return NewFSSink(dir, cfg.Compress)
	case SinkTypeS3:
		return NewS3Sink(ctx, cfg)
	case SinkTypeGCS:
		return newGCSSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("archive: unsupported sink type %q", cfg.Type)
	}
}

// ObjectKey names a block's object. The commitment hex makes the key
// content-addressed: re-sealing cannot silently overwrite a different
// block at the same height.
func ObjectKey(block *contracts.LogBlock, compressed bool) string {
	key := fmt.Sprintf("%s/%d-%s.json", block.Namespace, block.Height, block.Commitment.Hex())
	if compressed {
		key += ".zst"
	}
	return key
}

// marshalCanonical encodes a block as RFC 8785 JSON, so two hosts
// archiving the same block produce byte-identical objects.
func marshalCanonical(block *contracts.LogBlock) ([]byte, error) {
	raw, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("archive: encode block: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("archive: canonicalize block: %w", err)
	}
	return canonical, nil
}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Decode reads an archived object back into a block, transparently
// decompressing zstd. The verify subcommand uses this on downloaded
// objects.
func Decode(data []byte) (*contracts.LogBlock, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("archive: zstd reader: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("archive: decompress block: %w", err)
		}
	}
	var block contracts.LogBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("archive: decode block: %w", err)
	}
	return &block, nil
}
