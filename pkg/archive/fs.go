package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// FSSink archives blocks under a base directory, one subdirectory per
// namespace. Writes go to a temp file and rename into place, so a crash
// never leaves a truncated object behind.
type FSSink struct {
	baseDir  string
	compress bool
	enc      *zstd.Encoder
	mu       sync.Mutex
}

// NewFSSink creates the base directory if needed.
func NewFSSink(baseDir string, compress bool) (*FSSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: ensure dir %s: %w", baseDir, err)
	}
	s := &FSSink{baseDir: baseDir, compress: compress}
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("archive: zstd encoder: %w", err)
		}
		s.enc = enc
	}
	return s, nil
}

func (s *FSSink) Archive(_ context.Context, block *contracts.LogBlock) (string, error) {
	data, err := marshalCanonical(block)
	if err != nil {
		return "", err
	}
	if s.compress {
		data = s.enc.EncodeAll(data, make([]byte, 0, len(data)))
	}
	key := ObjectKey(block, s.compress)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if _, err := os.Stat(path); err == nil {
		// Redelivered block; already archived.
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("archive: ensure namespace dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("archive: write block %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("archive: commit block %s: %w", key, err)
	}
	return key, nil
}

func (s *FSSink) Close() error {
	if s.enc != nil {
		return s.enc.Close()
	}
	return nil
}
