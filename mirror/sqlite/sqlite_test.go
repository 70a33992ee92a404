package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"xdao.co/postledger/mirror"
	"xdao.co/postledger/mirror/testkit"
	"xdao.co/postledger/model"
)

func openTest(t *testing.T, path string) *Mirror {
	t.Helper()
	m, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSQLiteConformance(t *testing.T) {
	testkit.RunMirrorConformance(t, func(t *testing.T) mirror.Mirror {
		return openTest(t, filepath.Join(t.TempDir(), "mirror.db"))
	})
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 42, time.UTC)

	m, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	in := model.Item{Handle: "h1", Owner: "0xabc", Body: json.RawMessage(`{"x":true}`), CreatedAt: at}
	if err := m.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := openTest(t, path)
	got, err := m2.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got.Body) != `{"x":true}` || !got.CreatedAt.Equal(at) {
		t.Fatalf("reopened item mismatch: %+v", got)
	}
}

func TestSQLiteOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}
