package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

func mockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checkpoints").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, mock
}

func testBlock(namespace string, height uint64) *contracts.LogBlock {
	return &contracts.LogBlock{
		Version:   contracts.LogBlockVersion,
		Namespace: namespace,
		Height:    height,
		Count:     2,
		TimeRange: contracts.TimeRange{
			From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 2, 1, 0, 0, 5, 0, time.UTC),
		},
		Signature: []byte("sig"),
	}
}

func TestSQLStoreSaveUpsert(t *testing.T) {
	s, mock := mockStore(t)

	block := testBlock("app1", 4)
	raw, _ := contracts.EncodeLogBlock(block)

	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("app1", int64(4), string(raw), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cp := &Checkpoint{Namespace: "app1", LastSealedHeight: 4, UnsentBlock: block, UpdatedAt: time.Now()}
	if err := s.Save(context.Background(), cp); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStoreLoad(t *testing.T) {
	s, mock := mockStore(t)

	block := testBlock("app1", 4)
	raw, _ := contracts.EncodeLogBlock(block)
	rows := sqlmock.NewRows([]string{"last_sealed_height", "unsent_block", "updated_at"}).
		AddRow(int64(4), string(raw), time.Now().UTC())
	mock.ExpectQuery("SELECT last_sealed_height, unsent_block, updated_at FROM checkpoints").
		WithArgs("app1").
		WillReturnRows(rows)

	cp, err := s.Load(context.Background(), "app1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp.LastSealedHeight != 4 {
		t.Errorf("height %d, want 4", cp.LastSealedHeight)
	}
	if cp.UnsentBlock == nil || cp.UnsentBlock.Height != 4 {
		t.Errorf("unsent block not recovered: %+v", cp.UnsentBlock)
	}
}

func TestSQLStoreLoadNotFound(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("SELECT last_sealed_height, unsent_block, updated_at FROM checkpoints").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"last_sealed_height", "unsent_block", "updated_at"}))

	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStoreMarkEmitted(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectExec("UPDATE checkpoints SET unsent_block = NULL").
		WithArgs(sqlmock.AnyArg(), "app1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkEmitted(context.Background(), "app1", 4); err != nil {
		t.Fatalf("mark emitted: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
