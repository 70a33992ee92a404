package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"xdao.co/postledger/ledger"
	"xdao.co/postledger/ledger/testkit"
)

func TestSQLiteConformance(t *testing.T) {
	testkit.RunLedgerConformance(t, func(t *testing.T) ledger.Ledger {
		l, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = l.Close() })
		return l
	})
}

func TestSQLiteReopenKeepsOrderAndReceipts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	owner := "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r1, err := l.Append(ctx, owner, "b")
	if err != nil {
		t.Fatalf("Append(b): %v", err)
	}
	if _, err := l.Append(ctx, owner, "a"); err != nil {
		t.Fatalf("Append(a): %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	again, err := l2.Append(ctx, owner, "b")
	if err != nil {
		t.Fatalf("Append(b) again: %v", err)
	}
	if again.TxRef != r1.TxRef || !again.ConfirmedAt.Equal(r1.ConfirmedAt) {
		t.Fatalf("receipt changed across reopen: %+v vs %+v", again, r1)
	}
	got, err := l2.Query(ctx, owner)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].Handle != "b" || got[1].Handle != "a" {
		t.Fatalf("order lost: %+v", got)
	}
}
