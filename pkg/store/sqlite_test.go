package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// Round trip against a real SQLite file, the default durable boundary.
func TestSQLiteRoundTrip(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	if _, err := s.Load(ctx, "app1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fresh namespace: expected ErrNotFound, got %v", err)
	}

	block := testBlock("app1", 1)
	cp := &Checkpoint{Namespace: "app1", LastSealedHeight: 1, UnsentBlock: block, UpdatedAt: time.Now().UTC()}
	if err := s.Save(ctx, cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load(ctx, "app1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LastSealedHeight != 1 {
		t.Errorf("height %d, want 1", loaded.LastSealedHeight)
	}
	if loaded.UnsentBlock == nil || loaded.UnsentBlock.Commitment != block.Commitment {
		t.Error("unsent block not recovered intact")
	}

	if err := s.MarkEmitted(ctx, "app1", 1); err != nil {
		t.Fatalf("mark emitted: %v", err)
	}
	loaded, err = s.Load(ctx, "app1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.UnsentBlock != nil {
		t.Error("unsent block must be cleared after acknowledgment")
	}

	// A later seal overwrites in place.
	cp = &Checkpoint{Namespace: "app1", LastSealedHeight: 2, UnsentBlock: testBlock("app1", 2), UpdatedAt: time.Now().UTC()}
	if err := s.Save(ctx, cp); err != nil {
		t.Fatalf("second save: %v", err)
	}
	loaded, _ = s.Load(ctx, "app1")
	if loaded.LastSealedHeight != 2 {
		t.Errorf("height %d after upsert, want 2", loaded.LastSealedHeight)
	}

	// Stale acknowledgment must not clear a newer unsent block.
	if err := s.MarkEmitted(ctx, "app1", 1); err != nil {
		t.Fatalf("stale mark emitted: %v", err)
	}
	loaded, _ = s.Load(ctx, "app1")
	if loaded.UnsentBlock == nil {
		t.Error("stale acknowledgment cleared the newer unsent block")
	}
}
