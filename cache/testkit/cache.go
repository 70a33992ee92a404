package testkit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"xdao.co/postledger/cache"
)

// NewCache constructs a fresh, empty cache for a test.
type NewCache func(t *testing.T) cache.Cache

func RunCacheConformance(t *testing.T, newCache NewCache) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		c := newCache(t)
		want := []byte("value")
		if err := c.Set(ctx, "k", want, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := c.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get: got %q want %q", got, want)
		}
	})

	t.Run("MissIsErrMiss", func(t *testing.T) {
		c := newCache(t)
		if _, err := c.Get(ctx, "absent"); !cache.IsMiss(err) {
			t.Fatalf("Get absent: got err=%v want ErrMiss", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		c := newCache(t)
		if err := c.Set(ctx, "k", []byte("a"), time.Minute); err != nil {
			t.Fatalf("Set(a) failed: %v", err)
		}
		if err := c.Set(ctx, "k", []byte("b"), time.Minute); err != nil {
			t.Fatalf("Set(b) failed: %v", err)
		}
		got, err := c.Get(ctx, "k")
		if err != nil || string(got) != "b" {
			t.Fatalf("Get after overwrite: %q %v", got, err)
		}
	})

	t.Run("DeleteMany", func(t *testing.T) {
		c := newCache(t)
		for _, k := range []string{"a", "b", "c"} {
			if err := c.Set(ctx, k, []byte(k), 0); err != nil {
				t.Fatalf("Set(%s) failed: %v", k, err)
			}
		}
		if err := c.Delete(ctx, "a", "b", "absent"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		for _, k := range []string{"a", "b"} {
			if _, err := c.Get(ctx, k); !cache.IsMiss(err) {
				t.Fatalf("Get(%s) after delete: err=%v", k, err)
			}
		}
		if _, err := c.Get(ctx, "c"); err != nil {
			t.Fatalf("Get(c) should survive: %v", err)
		}
		if err := c.Delete(ctx); err != nil {
			t.Fatalf("Delete with no keys: %v", err)
		}
	})

	t.Run("ValueIsolation", func(t *testing.T) {
		c := newCache(t)
		v := []byte("abc")
		if err := c.Set(ctx, "k", v, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		v[0] = 'X'
		got, err := c.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "abc" {
			t.Fatalf("cache aliased caller buffer: %q", got)
		}
	})
}
