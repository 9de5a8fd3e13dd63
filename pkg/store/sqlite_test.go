package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/luizidebook/morro-digital-sub002/pkg/db"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	s := NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.GetState(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	if err := s.SetState(ctx, "language", "pt-BR"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	val, ok := s.GetState(ctx, "language")
	if !ok || val != "pt-BR" {
		t.Errorf("GetState = (%q, %v), want (pt-BR, true)", val, ok)
	}

	// Overwrite
	if err := s.SetState(ctx, "language", "en-US"); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	val, _ = s.GetState(ctx, "language")
	if val != "en-US" {
		t.Errorf("after overwrite = %q, want en-US", val)
	}

	if err := s.DeleteState(ctx, "language"); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	if _, ok := s.GetState(ctx, "language"); ok {
		t.Error("expected miss after delete")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, hit := s.GetCache(ctx, "route:x"); hit {
		t.Error("expected cache miss")
	}

	payload := []byte(`{"routes":[]}`)
	if err := s.SetCache(ctx, "route:x", payload); err != nil {
		t.Fatalf("SetCache: %v", err)
	}

	val, hit := s.GetCache(ctx, "route:x")
	if !hit || string(val) != string(payload) {
		t.Errorf("GetCache = (%s, %v), want payload hit", val, hit)
	}
}
