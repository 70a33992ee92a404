package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"xdao.co/postledger/cidutil"
	"xdao.co/postledger/config"
	"xdao.co/postledger/model"
	"xdao.co/postledger/service"
	"xdao.co/postledger/storage/localfs"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestKeyNewListShow(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "", "--keystore", dir, "key", "new", "alice")
	if err != nil {
		t.Fatalf("key new: %v", err)
	}
	addr := strings.Fields(out)[0]

	if _, _, err := execute(t, "", "--keystore", dir, "key", "new", "alice"); err == nil {
		t.Fatalf("expected error without --overwrite")
	}

	out, _, err = execute(t, "", "--keystore", dir, "key", "show", "alice")
	if err != nil || strings.TrimSpace(out) != addr {
		t.Fatalf("key show: %q %v", out, err)
	}

	if _, _, err := execute(t, "", "--keystore", dir, "key", "import", "bob", testKeyHex); err != nil {
		t.Fatalf("key import: %v", err)
	}
	out, _, err = execute(t, "", "--keystore", dir, "--json", "key", "list")
	if err != nil {
		t.Fatalf("key list: %v", err)
	}
	var entries []struct{ Name, Address string }
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if len(entries) != 2 || entries[0].Name != "alice" || entries[1].Name != "bob" {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestHandle_MatchesModel(t *testing.T) {
	body := `{ "b": 2, "a": 1 }`
	want, _, err := model.HandleOf([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := execute(t, body, "handle")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Fatalf("handle = %q, want %q", out, want)
	}
	if _, _, err := execute(t, "not json", "handle"); err == nil {
		t.Fatalf("expected error for invalid body")
	}
}

func TestSignThenVerify(t *testing.T) {
	out, _, err := execute(t, `{"title":"hello"}`, "sign", "--key-hex", testKeyHex)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var req signedRequest
	if err := json.Unmarshal([]byte(out), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(req.Content) != `{"title":"hello"}` {
		t.Fatalf("content: %s", req.Content)
	}
	handle, _, err := model.HandleOf(req.Content)
	if err != nil {
		t.Fatal(err)
	}

	out, _, err = execute(t, "", "verify", "--handle", handle, "--signature", req.Signature, "--address", req.Address)
	if err != nil || strings.TrimSpace(out) != "valid" {
		t.Fatalf("verify: %q %v", out, err)
	}

	other, _, err := model.HandleOf([]byte(`{"title":"other"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := execute(t, "", "verify", "--handle", other, "--signature", req.Signature, "--address", req.Address); err == nil {
		t.Fatalf("expected verify to reject a different handle")
	}
	if _, _, err := execute(t, "", "verify", "--handle", handle); err == nil {
		t.Fatalf("expected missing flags to fail")
	}
}

func TestSign_NoSigner(t *testing.T) {
	if _, _, err := execute(t, `{"a":1}`, "--keystore", t.TempDir(), "sign"); err == nil {
		t.Fatalf("expected error without a key")
	}
}

func TestBundleExportImport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "postd.yaml")
	doc := fmt.Sprintf(`
mirror: {backend: none}
ledger: {backend: sqlite, sqlite_path: %q}
cas:
  backends:
    - name: localfs
      config: {localfs-dir: %q}
`, filepath.Join(dir, "ledger.db"), filepath.Join(dir, "cas"))
	if err := os.WriteFile(cfgPath, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	var owner string
	var handles []string
	func() {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			t.Fatal(err)
		}
		comp, err := config.Open(context.Background(), cfg, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		defer comp.Close()
		for _, body := range []string{`{"n":1}`, `{"n":2}`} {
			out, _, err := execute(t, body, "sign", "--key-hex", testKeyHex)
			if err != nil {
				t.Fatal(err)
			}
			var req signedRequest
			if err := json.Unmarshal([]byte(out), &req); err != nil {
				t.Fatal(err)
			}
			it, err := comp.Service.CreateContent(context.Background(), service.CreateRequest{
				Body: req.Content, Signature: req.Signature, Address: req.Address,
			})
			if err != nil {
				t.Fatalf("CreateContent: %v", err)
			}
			owner = req.Address
			handles = append(handles, it.Handle)
		}
	}()

	archive := filepath.Join(dir, "owner.tar")
	if _, _, err := execute(t, "", "bundle", "export", "--config", cfgPath, "--owner", owner, "-o", archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := filepath.Join(dir, "dst")
	out, _, err := execute(t, "", "--json", "bundle", "import", "--cas-backend", "localfs", "--localfs-dir", dst, archive)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var res struct {
		Blocks   int `json:"blocks"`
		Manifest struct {
			Owner   string             `json:"owner"`
			Entries []model.IndexEntry `json:"entries"`
		} `json:"manifest"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if res.Blocks != 2 || len(res.Manifest.Entries) != 2 || res.Manifest.Entries[0].Handle != handles[0] {
		t.Fatalf("import result: %+v", res)
	}

	cas, err := localfs.New(dst)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range handles {
		id, err := cidutil.ParseHandle(h)
		if err != nil {
			t.Fatal(err)
		}
		if !cas.Has(context.Background(), id) {
			t.Fatalf("%s missing after import", h)
		}
	}
}

func TestBundleImport_NeedsTarget(t *testing.T) {
	if _, _, err := execute(t, "", "bundle", "import"); err == nil {
		t.Fatalf("expected error without --config or --cas-backend")
	}
}
