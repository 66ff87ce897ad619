package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/remindd/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "remindd.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateAssignsID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Now().Add(time.Hour)
	r, err := s.Create(ctx, "Buy milk", at)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID <= 0 {
		t.Fatalf("expected positive id, got %d", r.ID)
	}
	if r.Delivered {
		t.Fatal("new reminder must not be delivered")
	}
	if !r.PushTime.Equal(at) {
		t.Fatalf("push time = %v, want %v", r.PushTime, at)
	}

	r2, err := s.Create(ctx, "Water plants", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if r2.ID == r.ID {
		t.Fatalf("ids must be unique, both %d", r.ID)
	}
}

func TestStore_CreateRejectsEmptyTitle(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Create(context.Background(), "   ", time.Now()); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestStore_ListAllSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	if _, err := s.Create(ctx, "B", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, "A", base.Add(1*time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Title != "A" || all[1].Title != "B" {
		t.Fatalf("ordering by push_time broken: %q, %q", all[0].Title, all[1].Title)
	}
	if !all[0].PushTime.Equal(base.Add(1 * time.Hour)) {
		t.Fatalf("push_time round trip: got %v, want %v", all[0].PushTime, base.Add(1*time.Hour))
	}
}

func TestStore_MarkDeliveredIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r, err := s.Create(ctx, "Call dentist", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.MarkDelivered(ctx, r.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.MarkDelivered(ctx, r.ID); err != nil {
		t.Fatalf("second mark must be a no-op, got: %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || !all[0].Delivered {
		t.Fatalf("expected single delivered row, got %+v", all)
	}
}

func TestStore_MarkDeliveredMissingID(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkDelivered(context.Background(), 9999); err != nil {
		t.Fatalf("missing id must not error: %v", err)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r, err := s.Create(ctx, "Take out trash", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	if err := s.Delete(ctx, 12345); err != nil {
		t.Fatalf("delete nonexistent must not error: %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d rows", len(all))
	}
}

func TestStore_PendingCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, "A", time.Now().Add(time.Hour))
	if _, err := s.Create(ctx, "B", time.Now().Add(2*time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkDelivered(ctx, a.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}

	n, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "remindd.db")
	ctx := context.Background()

	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Create(ctx, "Persisted", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	all, err := s2.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Title != "Persisted" {
		t.Fatalf("rows lost across reopen: %+v", all)
	}
}

func TestStore_PersistenceErrorClass(t *testing.T) {
	s := openTestStore(t)
	_ = s.Close()

	_, err := s.Create(context.Background(), "After close", time.Now())
	if err == nil {
		t.Fatal("expected error on closed store")
	}
	if !errors.Is(err, store.ErrPersistence) {
		t.Fatalf("error %v should match ErrPersistence", err)
	}
}
