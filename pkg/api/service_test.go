package api_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/aggregator"
	"github.com/Mindburn-Labs/notary/pkg/api"
	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
	"github.com/Mindburn-Labs/notary/pkg/store"
	"github.com/Mindburn-Labs/notary/pkg/validator"
)

func newTestRegistry(t *testing.T, namespaces ...string) *aggregator.Registry {
	t.Helper()
	seed := bytes.Repeat([]byte{9}, ed25519.SeedSize)
	signer, err := crypto.NewEd25519SignerFromSeed(seed)
	require.NoError(t, err)

	reg := aggregator.NewRegistry(store.NewMemoryStore())
	for _, ns := range namespaces {
		cfg := aggregator.DefaultConfig(ns)
		cfg.MaxReceiptsPerBatch = 100
		cfg.MaxBatchWindow = time.Hour
		require.NoError(t, reg.Register(context.Background(), cfg, signer))
	}
	require.NoError(t, reg.Start(context.Background()))
	t.Cleanup(reg.Stop)
	return reg
}

func receiptBody(t *testing.T, ns string, tag byte) []byte {
	t.Helper()
	var digest contracts.Digest
	digest[0] = tag
	digest[31] = 0xEE
	body, err := json.Marshal(&contracts.Receipt{
		SchemaVersion: contracts.SupportedSchemaVersion,
		Namespace:     ns,
		SubjectID:     fmt.Sprintf("wf-%d", tag),
		Operation:     "execute",
		Timestamp:     time.Now().UTC(),
		Usage:         contracts.ResourceUsage{CPUTimeMillis: 12},
		ContentHash:   digest,
	})
	require.NoError(t, err)
	return body
}

func TestSubmit_Accepted(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts", bytes.NewReader(receiptBody(t, "app1", 1)))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp api.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "app1", resp.Namespace)
	assert.Nil(t, resp.Rejection)

	stats, err := reg.StatsFor("app1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
}

func TestSubmit_MalformedJSON(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts", bytes.NewReader([]byte("{nope")))
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestSubmit_SchemaViolation(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	// Missing required fields.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts", bytes.NewReader([]byte(`{"namespace":"app1"}`)))
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_UnsupportedVersionRejection(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	var receipt contracts.Receipt
	require.NoError(t, json.Unmarshal(receiptBody(t, "app1", 2), &receipt))
	receipt.SchemaVersion = 99
	body, err := json.Marshal(&receipt)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts", bytes.NewReader(body))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp api.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp.Status)
	require.NotNil(t, resp.Rejection)
	assert.Equal(t, validator.UnsupportedVersion, resp.Rejection.Reason)

	stats, err := reg.StatsFor("app1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingCount)
}

func TestSubmit_UnknownNamespaceRejection(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts", bytes.NewReader(receiptBody(t, "ghost", 3)))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp api.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Rejection)
	assert.Equal(t, validator.InvalidNamespace, resp.Rejection.Reason)
}

func TestSubmit_MethodNotAllowed(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/receipts", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStats_And_ForceSeal(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/receipts", bytes.NewReader(receiptBody(t, "app1", 4)))
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/namespaces/app1/seal", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats aggregator.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.CurrentHeight)
	assert.Equal(t, 0, stats.PendingCount)

	sup, ok := reg.Supervisor("app1")
	require.True(t, ok)
	select {
	case block := <-sup.Blocks():
		assert.Equal(t, uint64(1), block.Height)
		assert.Equal(t, uint32(1), block.Count)
	case <-time.After(time.Second):
		t.Fatal("expected a sealed block on the emission channel")
	}
}

func TestStats_UnknownNamespace(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/namespaces/ghost/stats", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsAll(t *testing.T) {
	reg := newTestRegistry(t, "app1", "app2")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var all []aggregator.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "app1", all[0].Namespace)
	assert.Equal(t, "app2", all[1].Namespace)
}

func TestHealthz(t *testing.T) {
	reg := newTestRegistry(t, "app1")
	mux := api.NewService(reg).Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
