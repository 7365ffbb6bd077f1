package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

func archivedBlock(ns string, height uint64) *contracts.LogBlock {
	var commitment contracts.Digest
	commitment[0] = byte(height)
	commitment[31] = 0xCC
	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &contracts.LogBlock{
		Version:    contracts.LogBlockVersion,
		Namespace:  ns,
		Height:     height,
		Commitment: commitment,
		Count:      3,
		TimeRange:  contracts.TimeRange{From: from, To: from.Add(2 * time.Second)},
		Signature:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
}

func TestObjectKey(t *testing.T) {
	block := archivedBlock("app1", 5)
	key := ObjectKey(block, false)
	want := fmt.Sprintf("app1/5-%s.json", block.Commitment.Hex())
	assert.Equal(t, want, key)
	assert.Equal(t, want+".zst", ObjectKey(block, true))
}

func TestFSSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFSSink(dir, false)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	block := archivedBlock("app1", 1)
	key, err := sink.Archive(context.Background(), block)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, block, got)

	// Canonical form has no insignificant whitespace.
	assert.NotContains(t, string(data), "\n")
}

func TestFSSinkCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFSSink(dir, true)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	block := archivedBlock("app1", 7)
	key, err := sink.Archive(context.Background(), block)
	require.NoError(t, err)
	assert.True(t, len(key) > 4 && key[len(key)-4:] == ".zst")

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, zstdMagic), "object is not zstd framed")

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, block, got)
}

func TestFSSinkRedeliveryIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFSSink(dir, false)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	block := archivedBlock("app1", 1)
	key1, err := sink.Archive(context.Background(), block)
	require.NoError(t, err)

	path := filepath.Join(dir, filepath.FromSlash(key1))
	first, err := os.Stat(path)
	require.NoError(t, err)

	key2, err := sink.Archive(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime(), "redelivery rewrote the object")
}

func TestFSSinkSeparatesNamespaces(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFSSink(dir, false)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	_, err = sink.Archive(context.Background(), archivedBlock("app1", 1))
	require.NoError(t, err)
	_, err = sink.Archive(context.Background(), archivedBlock("app2", 1))
	require.NoError(t, err)

	for _, ns := range []string{"app1", "app2"} {
		entries, err := os.ReadDir(filepath.Join(dir, ns))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	// A zstd frame holding garbage still fails at the JSON layer.
	_, err = Decode(append(append([]byte{}, zstdMagic...), 0xFF, 0xFF))
	assert.Error(t, err)
}

func TestNewSinkFactory(t *testing.T) {
	ctx := context.Background()

	sink, err := New(ctx, Config{Type: SinkTypeFS, Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	// Empty type falls back to the filesystem default dir.
	sink, err = New(ctx, Config{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = New(ctx, Config{Type: "tape"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: SinkTypeS3})
	assert.Error(t, err, "s3 without a bucket")

	// This build has no gcp tag.
	_, err = New(ctx, Config{Type: SinkTypeGCS, Bucket: "b"})
	assert.Error(t, err)
}
