package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
)

// NewMirror constructs a fresh, empty mirror for a test.
type NewMirror func(t *testing.T) mirror.Mirror

func item(handle, owner, body string, at time.Time, txRef string) model.Item {
	return model.Item{
		Handle:    handle,
		Owner:     owner,
		Body:      json.RawMessage(body),
		CreatedAt: at,
		TxRef:     txRef,
	}
}

func RunMirrorConformance(t *testing.T, newMirror NewMirror) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("UpsertGet", func(t *testing.T) {
		m := newMirror(t)
		in := item("h1", "0xAbC", `{"a":1}`, t0, "0xtx1")
		if err := m.Upsert(ctx, in); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		got, err := m.Get(ctx, "h1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Handle != "h1" || string(got.Body) != `{"a":1}` || got.TxRef != "0xtx1" {
			t.Fatalf("Get mismatch: %+v", got)
		}
		if got.Owner != "0xabc" {
			t.Fatalf("owner not normalized: %q", got.Owner)
		}
		if !got.CreatedAt.Equal(t0) {
			t.Fatalf("CreatedAt: got %v want %v", got.CreatedAt, t0)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		m := newMirror(t)
		if _, err := m.Get(ctx, "absent"); !errors.Is(err, mirror.ErrNotFound) {
			t.Fatalf("Get absent: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("UpsertReplacesButKeepsTxRef", func(t *testing.T) {
		m := newMirror(t)
		if err := m.Upsert(ctx, item("h1", "0xabc", `{"a":1}`, t0, "0xtx1")); err != nil {
			t.Fatalf("Upsert(1) failed: %v", err)
		}
		if err := m.Upsert(ctx, item("h1", "0xabc", `{"a":2}`, t0.Add(time.Second), "")); err != nil {
			t.Fatalf("Upsert(2) failed: %v", err)
		}
		got, err := m.Get(ctx, "h1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Body) != `{"a":2}` {
			t.Fatalf("body not replaced: %s", got.Body)
		}
		if got.TxRef != "0xtx1" {
			t.Fatalf("TxRef dropped: %q", got.TxRef)
		}
	})

	t.Run("RejectsPlaceholderAndIncomplete", func(t *testing.T) {
		m := newMirror(t)
		ph := model.Placeholder("0xabc", model.IndexEntry{Handle: "h1", ConfirmedAt: t0})
		for _, bad := range []model.Item{
			ph,
			item("", "0xabc", `{}`, t0, ""),
			item("h2", "0xabc", ``, t0, ""),
			item("h3", "", `{}`, t0, ""),
		} {
			if err := m.Upsert(ctx, bad); !errors.Is(err, mirror.ErrInvalidItem) {
				t.Fatalf("Upsert(%+v): got err=%v want ErrInvalidItem", bad, err)
			}
		}
		if _, err := m.Get(ctx, "h1"); !errors.Is(err, mirror.ErrNotFound) {
			t.Fatalf("placeholder was stored: %v", err)
		}
	})

	t.Run("ByOwnerOrderAndCase", func(t *testing.T) {
		m := newMirror(t)
		in := []model.Item{
			item("hc", "0xabc", `{"n":3}`, t0.Add(2*time.Second), ""),
			item("ha", "0xABC", `{"n":1}`, t0, ""),
			item("hb", "0xabc", `{"n":2}`, t0.Add(time.Second), ""),
			item("hx", "0xdef", `{"n":9}`, t0, ""),
		}
		for _, it := range in {
			if err := m.Upsert(ctx, it); err != nil {
				t.Fatalf("Upsert(%s) failed: %v", it.Handle, err)
			}
		}
		got, err := m.ByOwner(ctx, "0xAbc")
		if err != nil {
			t.Fatalf("ByOwner failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("ByOwner: got %d items", len(got))
		}
		for i, want := range []string{"ha", "hb", "hc"} {
			if got[i].Handle != want {
				t.Fatalf("ByOwner[%d]: got %s want %s", i, got[i].Handle, want)
			}
		}
		none, err := m.ByOwner(ctx, "0x0000")
		if err != nil || len(none) != 0 {
			t.Fatalf("ByOwner unknown: %v %v", none, err)
		}
	})
}
