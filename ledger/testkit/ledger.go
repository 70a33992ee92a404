package testkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"xdao.co/postledger/ledger"
)

// NewLedger constructs a fresh, empty ledger for a test.
type NewLedger func(t *testing.T) ledger.Ledger

const (
	ownerA = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
	ownerB = "0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"
)

func RunLedgerConformance(t *testing.T, newLedger NewLedger) {
	t.Helper()
	ctx := context.Background()

	t.Run("AppendQueryOrder", func(t *testing.T) {
		l := newLedger(t)
		handles := []string{"h3", "h1", "h2"}
		for _, h := range handles {
			r, err := l.Append(ctx, ownerA, h)
			if err != nil {
				t.Fatalf("Append(%s) failed: %v", h, err)
			}
			if r.TxRef == "" || r.ConfirmedAt.IsZero() {
				t.Fatalf("Append(%s) returned empty receipt: %+v", h, r)
			}
		}
		got, err := l.Query(ctx, ownerA)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != len(handles) {
			t.Fatalf("Query: got %d entries want %d", len(got), len(handles))
		}
		for i, h := range handles {
			if got[i].Handle != h {
				t.Fatalf("Query[%d]: got %s want %s", i, got[i].Handle, h)
			}
		}
	})

	t.Run("AppendIdempotent", func(t *testing.T) {
		l := newLedger(t)
		r1, err := l.Append(ctx, ownerA, "h1")
		if err != nil {
			t.Fatalf("Append(1) failed: %v", err)
		}
		r2, err := l.Append(ctx, ownerA, "h1")
		if err != nil {
			t.Fatalf("Append(2) failed: %v", err)
		}
		if r1.TxRef != r2.TxRef || !r1.ConfirmedAt.Equal(r2.ConfirmedAt) {
			t.Fatalf("duplicate append returned a new receipt: %+v vs %+v", r1, r2)
		}
		got, err := l.Query(ctx, ownerA)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("duplicate append grew the index: %d", len(got))
		}
	})

	t.Run("OwnerCaseInsensitive", func(t *testing.T) {
		l := newLedger(t)
		if _, err := l.Append(ctx, ownerA, "h1"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		r, err := l.Append(ctx, "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1", "h1")
		if err != nil {
			t.Fatalf("Append lower failed: %v", err)
		}
		got, err := l.Query(ctx, "0x90F8BF6A479F320EAD074411A4B0E7944EA8C9C1")
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != 1 || got[0].TxRef != r.TxRef {
			t.Fatalf("case variants split the index: %+v", got)
		}
	})

	t.Run("OwnersIsolated", func(t *testing.T) {
		l := newLedger(t)
		if _, err := l.Append(ctx, ownerA, "shared"); err != nil {
			t.Fatalf("Append(A) failed: %v", err)
		}
		if _, err := l.Append(ctx, ownerB, "shared"); err != nil {
			t.Fatalf("Append(B) failed: %v", err)
		}
		for _, o := range []string{ownerA, ownerB} {
			got, err := l.Query(ctx, o)
			if err != nil || len(got) != 1 || got[0].Handle != "shared" {
				t.Fatalf("Query(%s): %+v %v", o, got, err)
			}
		}
		empty, err := l.Query(ctx, "0x0000000000000000000000000000000000000001")
		if err != nil || len(empty) != 0 {
			t.Fatalf("Query unknown owner: %+v %v", empty, err)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		l := newLedger(t)
		if _, err := l.Append(ctx, "not-an-address", "h1"); !errors.Is(err, ledger.ErrInvalidEntry) {
			t.Fatalf("bad owner: got err=%v", err)
		}
		if _, err := l.Append(ctx, ownerA, ""); !errors.Is(err, ledger.ErrInvalidEntry) {
			t.Fatalf("empty handle: got err=%v", err)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		l := newLedger(t)
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := l.Append(ctx, ownerA, fmt.Sprintf("h%d", i%10)); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Append failed: %v", err)
		}
		got, err := l.Query(ctx, ownerA)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != 10 {
			t.Fatalf("expected 10 distinct entries, got %d", len(got))
		}
	})
}
