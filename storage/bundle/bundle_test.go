package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"xdao.co/postledger/cidutil"
	"xdao.co/postledger/model"
	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/bundle"
	"xdao.co/postledger/storage/localfs"
)

func newCAS(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cas
}

func putBody(t *testing.T, cas storage.CAS, body string) string {
	t.Helper()
	handle, canonical, err := model.HandleOf([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cas.Put(context.Background(), canonical); err != nil {
		t.Fatal(err)
	}
	return handle
}

func TestExport_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas := newCAS(t)
	a := putBody(t, cas, `{"n":1}`)
	b := putBody(t, cas, `{"n":2}`)

	var one, two bytes.Buffer
	if err := bundle.Export(ctx, &one, cas, []string{b, a}, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := bundle.Export(ctx, &two, cas, []string{a, b, a}, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(one.Bytes(), two.Bytes()) {
		t.Fatalf("expected identical archives")
	}
}

func TestImport_RoundTripWithManifest(t *testing.T) {
	ctx := context.Background()
	src := newCAS(t)
	a := putBody(t, src, `{"title":"first"}`)
	b := putBody(t, src, `{"title":"second"}`)
	entries := []model.IndexEntry{
		{Handle: a, ConfirmedAt: time.Unix(10, 0).UTC(), TxRef: "0x01"},
		{Handle: b, ConfirmedAt: time.Unix(20, 0).UTC(), TxRef: "0x02"},
	}

	var buf bytes.Buffer
	err := bundle.Export(ctx, &buf, src, []string{a, b}, bundle.ExportOptions{
		Owner:   "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1",
		Entries: entries,
	})
	if err != nil {
		t.Fatal(err)
	}

	dst := newCAS(t)
	m, n, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("imported %d blocks, want 2", n)
	}
	if m == nil || m.Owner != "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1" || len(m.Entries) != 2 || m.Entries[1].Handle != b {
		t.Fatalf("manifest: %+v", m)
	}
	for _, h := range []string{a, b} {
		id, err := cidutil.ParseHandle(h)
		if err != nil {
			t.Fatal(err)
		}
		got, err := dst.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !cidutil.Verify(id, got) {
			t.Fatalf("%s: body does not match handle", h)
		}
	}
}

func TestExport_MissingBlock(t *testing.T) {
	h, _, err := model.HandleOf([]byte(`{"absent":true}`))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err = bundle.Export(context.Background(), &buf, newCAS(t), []string{h}, bundle.ExportOptions{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImport_RejectsCIDMismatch(t *testing.T) {
	other, err := cidutil.CIDv1RawSHA256CID([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	archive := tarOf(t, "blocks/"+other.String(), []byte("good"))
	dst := newCAS(t)
	if _, _, err := bundle.Import(context.Background(), bytes.NewReader(archive), dst, bundle.ImportOptions{}); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
	if dst.Has(context.Background(), other) {
		t.Fatalf("mismatched block must not be stored")
	}
}

func TestImport_UnknownEntries(t *testing.T) {
	archive := tarOf(t, "notes.txt", []byte("hi"))
	if _, _, err := bundle.Import(context.Background(), bytes.NewReader(archive), newCAS(t), bundle.ImportOptions{}); err == nil {
		t.Fatalf("expected unknown entry to be rejected")
	}
	if _, n, err := bundle.Import(context.Background(), bytes.NewReader(archive), newCAS(t), bundle.ImportOptions{IgnoreUnknown: true}); err != nil || n != 0 {
		t.Fatalf("IgnoreUnknown: n=%d err=%v", n, err)
	}
}

func TestImport_RejectsEscapingPaths(t *testing.T) {
	for _, name := range []string{"../blocks/x", "/etc/passwd", "blocks//x"} {
		archive := tarOf(t, name, []byte("x"))
		if _, _, err := bundle.Import(context.Background(), bytes.NewReader(archive), newCAS(t), bundle.ImportOptions{IgnoreUnknown: true}); err == nil {
			t.Fatalf("%q: expected error", name)
		}
	}
}

func tarOf(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
