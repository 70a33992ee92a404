package authorizer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"xdao.co/postledger/cache"
	memcache "xdao.co/postledger/cache/memory"
	"xdao.co/postledger/internal/faults"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/ledger"
	memledger "xdao.co/postledger/ledger/memory"
	memmirror "xdao.co/postledger/mirror/memory"
	"xdao.co/postledger/model"
	"xdao.co/postledger/resolver"
	"xdao.co/postledger/storage/localfs"
)

const (
	aliceKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	bobKeyHex   = "6370fd033278c143179d81c5526140625662b8daa446c22ee2d73db3707e620c"
)

type fixture struct {
	cache  *faults.Cache
	mirror *faults.Mirror
	ledger *faults.Ledger
	cas    *faults.CAS
	a      *Authorizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	f := &fixture{
		cache:  &faults.Cache{Inner: memcache.New(time.Hour, time.Hour)},
		mirror: &faults.Mirror{Inner: memmirror.New()},
		ledger: &faults.Ledger{Inner: memledger.New()},
		cas:    &faults.CAS{Inner: cas},
	}
	f.a, err = New(f.cas, f.ledger, f.mirror, f.cache, nil, Options{
		StoreTimeout:  time.Second,
		LedgerTimeout: 100 * time.Millisecond,
		RepairTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func key(t *testing.T, h string) *ecdsa.PrivateKey {
	t.Helper()
	k, err := keys.ParsePrivateKeyHex(h)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex: %v", err)
	}
	return k
}

// sign returns the hex signature authorizing body for k.
func sign(t *testing.T, k *ecdsa.PrivateKey, body string) string {
	t.Helper()
	handle, _, err := model.HandleOf([]byte(body))
	if err != nil {
		t.Fatalf("HandleOf: %v", err)
	}
	sig, err := keys.SignPersonalMessage([]byte(model.CommitMessage(handle)), k)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	return hexutil.Encode(sig)
}

func TestCommit_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := key(t, aliceKeyHex)
	owner := keys.AddressOf(k)
	body := `{"title":"hello", "text":"world"}`

	// A stale resolved list must be dropped by the commit.
	if err := f.cache.Inner.Set(ctx, cache.PostsKey(owner), []byte("stale"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	it, err := f.a.Commit(ctx, json.RawMessage(body), sign(t, k, body), owner)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if string(it.Body) != `{"text":"world","title":"hello"}` {
		t.Fatalf("body not canonical: %s", it.Body)
	}
	if it.Owner != keys.NormalizeAddress(owner) || it.TxRef == "" || it.CreatedAt.IsZero() {
		t.Fatalf("item fields: %+v", it)
	}

	index, err := f.ledger.Inner.Query(ctx, owner)
	if err != nil || len(index) != 1 || index[0].Handle != it.Handle {
		t.Fatalf("ledger index: %+v %v", index, err)
	}
	if !index[0].ConfirmedAt.Equal(it.CreatedAt) || index[0].TxRef != it.TxRef {
		t.Fatalf("receipt does not match index entry: %+v vs %+v", index[0], it)
	}
	if got, err := f.mirror.Inner.Get(ctx, it.Handle); err != nil || string(got.Body) != string(it.Body) {
		t.Fatalf("mirror: %+v %v", got, err)
	}
	if _, err := f.cache.Inner.Get(ctx, cache.PostKey(it.Handle)); err != nil {
		t.Fatalf("item not cached: %v", err)
	}
	if _, err := f.cache.Inner.Get(ctx, cache.PostsKey(owner)); !cache.IsMiss(err) {
		t.Fatalf("owner list not invalidated: %v", err)
	}
	gen, err := f.cache.Inner.Get(ctx, cache.PostsGenKey(owner))
	if err != nil || len(gen) == 0 {
		t.Fatalf("list generation not set: %q %v", gen, err)
	}

	next := `{"title":"again"}`
	if _, err := f.a.Commit(ctx, json.RawMessage(next), sign(t, k, next), owner); err != nil {
		t.Fatalf("Commit(2): %v", err)
	}
	gen2, err := f.cache.Inner.Get(ctx, cache.PostsGenKey(owner))
	if err != nil || string(gen2) == string(gen) {
		t.Fatalf("list generation not replaced: %q -> %q (%v)", gen, gen2, err)
	}
}

func TestCommit_UnauthorizedMutatesNothing(t *testing.T) {
	alice := key(t, aliceKeyHex)
	bob := key(t, bobKeyHex)
	body := `{"x":1}`

	good := sign(t, alice, body)
	flipped, err := hexutil.Decode(good)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	flipped[10] ^= 0x01

	cases := map[string]string{
		"other signer": sign(t, bob, body),
		"other body":   sign(t, alice, `{"x":2}`),
		"bit flip":     hexutil.Encode(flipped),
		"truncated":    good[:len(good)-2],
		"not hex":      "0xnothex",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.a.Commit(context.Background(), json.RawMessage(body), sig, keys.AddressOf(alice))
			if !model.IsCode(err, model.ErrUnauthorized) {
				t.Fatalf("got err=%v want UNAUTHORIZED", err)
			}
			if f.ledger.Appends.Load() != 0 || f.mirror.Upserts.Load() != 0 || f.cache.Sets.Load() != 0 || f.cache.Deletes.Load() != 0 {
				t.Fatalf("unauthorized commit mutated state")
			}
		})
	}
}

func TestCommit_LedgerUnavailableThenRetry(t *testing.T) {
	for _, mode := range []string{"fail", "hang"} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t)
			k := key(t, aliceKeyHex)
			body := `{"retry":true}`
			sig := sign(t, k, body)
			if mode == "fail" {
				f.ledger.Fail(true)
			} else {
				f.ledger.Hang(true)
			}
			_, err := f.a.Commit(context.Background(), json.RawMessage(body), sig, keys.AddressOf(k))
			if !model.IsCode(err, model.ErrLedgerUnavailable) {
				t.Fatalf("got err=%v want LEDGER_UNAVAILABLE", err)
			}
			if f.mirror.Upserts.Load() != 0 || f.cache.Sets.Load() != 0 {
				t.Fatalf("failed commit wrote to mirror or cache")
			}

			f.ledger.Fail(false)
			f.ledger.Hang(false)
			if _, err := f.a.Commit(context.Background(), json.RawMessage(body), sig, keys.AddressOf(k)); err != nil {
				t.Fatalf("retry: %v", err)
			}
		})
	}
}

func TestCommit_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := key(t, aliceKeyHex)
	body := `{"same":"bytes"}`
	sig := sign(t, k, body)

	first, err := f.a.Commit(ctx, json.RawMessage(body), sig, keys.AddressOf(k))
	if err != nil {
		t.Fatalf("Commit(1): %v", err)
	}
	// Whitespace and key order do not change the handle.
	second, err := f.a.Commit(ctx, json.RawMessage(`{ "same" : "bytes" }`), sig, strings.ToLower(keys.AddressOf(k)))
	if err != nil {
		t.Fatalf("Commit(2): %v", err)
	}
	if first.Handle != second.Handle || first.TxRef != second.TxRef || !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("repeat commit changed the receipt: %+v vs %+v", first, second)
	}
	index, err := f.ledger.Inner.Query(ctx, keys.AddressOf(k))
	if err != nil || len(index) != 1 {
		t.Fatalf("ledger index grew: %+v %v", index, err)
	}

	res, err := resolver.New(f.cache, f.mirror, f.ledger, f.cas, resolver.Options{})
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	got, err := res.Resolve(ctx, keys.AddressOf(k))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Handle != first.Handle || got.Items[0].TxRef != first.TxRef {
		t.Fatalf("resolve after repeat commit: %+v", got.Items)
	}
}

func TestCommit_RepairFailureNotSurfaced(t *testing.T) {
	f := newFixture(t)
	k := key(t, aliceKeyHex)
	body := `{"repair":"fails"}`
	f.mirror.Fail(true)
	f.cache.Hang(true)

	it, err := f.a.Commit(context.Background(), json.RawMessage(body), sign(t, k, body), keys.AddressOf(k))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if it.TxRef == "" {
		t.Fatalf("missing TxRef")
	}
	// Item and list generation.
	if f.mirror.Upserts.Load() != 1 || f.cache.Sets.Load() != 2 {
		t.Fatalf("repairs were not attempted")
	}
}

func TestCommit_ContentUnavailable(t *testing.T) {
	f := newFixture(t)
	k := key(t, aliceKeyHex)
	body := `{"cas":"down"}`
	f.cas.Fail(true)
	_, err := f.a.Commit(context.Background(), json.RawMessage(body), sign(t, k, body), keys.AddressOf(k))
	if !model.IsCode(err, model.ErrContentUnavailable) {
		t.Fatalf("got err=%v want CONTENT_UNAVAILABLE", err)
	}
	if f.ledger.Appends.Load() != 0 {
		t.Fatalf("ledger touched after content failure")
	}
}

func TestCommit_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	k := key(t, aliceKeyHex)
	addr := keys.AddressOf(k)
	sig := sign(t, k, `{"a":1}`)
	cases := []struct {
		name, body, sig, addr string
	}{
		{"bad address", `{"a":1}`, sig, "0x1234"},
		{"empty body", ``, sig, addr},
		{"not json", `{"a":`, sig, addr},
		{"null body", `null`, sig, addr},
		{"no signature", `{"a":1}`, "", addr},
	}
	for _, tc := range cases {
		_, err := f.a.Commit(context.Background(), json.RawMessage(tc.body), tc.sig, tc.addr)
		if !model.IsCode(err, model.ErrInvalidRequest) {
			t.Fatalf("%s: got err=%v want INVALID_REQUEST", tc.name, err)
		}
	}
	if f.cas.Puts.Load() != 0 {
		t.Fatalf("invalid request reached the content store")
	}
}

// cancelOnAppend cancels the caller's context once the ledger has confirmed.
type cancelOnAppend struct {
	ledger.Ledger
	cancel context.CancelFunc
}

func (c cancelOnAppend) Append(ctx context.Context, owner, handle string) (model.Receipt, error) {
	r, err := c.Ledger.Append(context.WithoutCancel(ctx), owner, handle)
	c.cancel()
	return r, err
}

func TestCommit_RepairsOutliveCaller(t *testing.T) {
	f := newFixture(t)
	k := key(t, aliceKeyHex)
	body := `{"caller":"gone"}`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(f.cas, cancelOnAppend{Ledger: f.ledger, cancel: cancel}, f.mirror, f.cache, nil, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	it, err := a.Commit(ctx, json.RawMessage(body), sign(t, k, body), keys.AddressOf(k))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := f.mirror.Inner.Get(context.Background(), it.Handle); err != nil {
		t.Fatalf("mirror repair skipped after cancellation: %v", err)
	}
}
