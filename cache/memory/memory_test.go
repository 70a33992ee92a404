package memory

import (
	"context"
	"testing"
	"time"

	"xdao.co/postledger/cache"
	"xdao.co/postledger/cache/testkit"
)

func TestMemoryConformance(t *testing.T) {
	testkit.RunCacheConformance(t, func(t *testing.T) cache.Cache {
		return New(time.Minute, time.Minute)
	})
}

func TestMemoryExpiry(t *testing.T) {
	c := New(time.Hour, time.Hour)
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !cache.IsMiss(err) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	c := New(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected error on cancelled Set")
	}
	if c.Len() != 0 {
		t.Fatalf("cancelled Set stored a value")
	}
}
