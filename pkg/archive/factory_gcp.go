//go:build gcp

package archive

import "context"

func newGCSSink(ctx context.Context, cfg Config) (Sink, error) {
	return NewGCSSink(ctx, cfg)
}
