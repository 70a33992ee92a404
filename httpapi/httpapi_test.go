package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"xdao.co/postledger/authorizer"
	memcache "xdao.co/postledger/cache/memory"
	"xdao.co/postledger/internal/faults"
	"xdao.co/postledger/keys"
	memledger "xdao.co/postledger/ledger/memory"
	memmirror "xdao.co/postledger/mirror/memory"
	"xdao.co/postledger/model"
	"xdao.co/postledger/resolver"
	"xdao.co/postledger/service"
	"xdao.co/postledger/storage/localfs"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fixture struct {
	srv    *httptest.Server
	ledger *faults.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	c := memcache.New(time.Hour, time.Hour)
	m := memmirror.New()
	l := &faults.Ledger{Inner: memledger.New()}
	auth, err := authorizer.New(cas, l, m, c, nil, authorizer.Options{LedgerTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("authorizer.New: %v", err)
	}
	res, err := resolver.New(c, m, l, cas, resolver.Options{LedgerTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	svc, err := service.New(auth, res)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	srv := httptest.NewServer(New(svc, Options{}).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, ledger: l}
}

func signedRequest(t *testing.T, body string) createPostRequest {
	t.Helper()
	k, err := keys.ParsePrivateKeyHex(testKeyHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex: %v", err)
	}
	handle, _, err := model.HandleOf([]byte(body))
	if err != nil {
		t.Fatalf("HandleOf: %v", err)
	}
	sig, err := keys.SignPersonalMessage([]byte(model.CommitMessage(handle)), k)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	return createPostRequest{
		Content:   json.RawMessage(body),
		Signature: hexutil.Encode(sig),
		Address:   keys.AddressOf(k),
	}
}

func (f *fixture) post(t *testing.T, req any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return f.do(t, http.MethodPost, "/api/createPost", bytes.NewReader(b))
}

func (f *fixture) do(t *testing.T, method, path string, body *bytes.Reader) (*http.Response, []byte) {
	t.Helper()
	var req *http.Request
	var err error
	if body == nil {
		req, err = http.NewRequest(method, f.srv.URL+path, nil)
	} else {
		req, err = http.NewRequest(method, f.srv.URL+path, body)
	}
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t)
	var handles []string
	var addr string
	for i := 0; i < 3; i++ {
		req := signedRequest(t, fmt.Sprintf(`{"text":"post %d"}`, i))
		addr = req.Address
		resp, body := f.post(t, req)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("createPost: status %d body %s", resp.StatusCode, body)
		}
		var got struct {
			Success bool   `json:"success"`
			Handle  string `json:"handle"`
			TxRef   string `json:"ledgerTxRef"`
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("decode createPost: %v", err)
		}
		if !got.Success || got.Handle == "" || got.TxRef == "" {
			t.Fatalf("createPost response: %s", body)
		}
		if resp.Header.Get(middleware.RequestIDHeader) == "" {
			t.Fatalf("missing request id header")
		}
		handles = append(handles, got.Handle)
	}

	resp, body := f.do(t, http.MethodGet, "/api/posts/"+addr+"?offset=1&limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("posts: status %d body %s", resp.StatusCode, body)
	}
	var page model.Page
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 3 || page.Offset != 1 || page.Limit != 2 || page.HasMore || len(page.Items) != 2 {
		t.Fatalf("page: %s", body)
	}
	if page.Items[0].Handle != handles[1] || page.Items[1].Handle != handles[2] {
		t.Fatalf("page order: %s", body)
	}
	if page.Source == "" {
		t.Fatalf("missing source")
	}
}

func TestCreatePost_ErrorStatuses(t *testing.T) {
	f := newFixture(t)

	bad := signedRequest(t, `{"text":"x"}`)
	bad.Content = json.RawMessage(`{"text":"tampered"}`)
	resp, body := f.post(t, bad)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered: status %d body %s", resp.StatusCode, body)
	}
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Code != model.ErrUnauthorized {
		t.Fatalf("tampered error body: %s", body)
	}

	noAddr := signedRequest(t, `{"text":"x"}`)
	noAddr.Address = "nobody"
	if resp, body := f.post(t, noAddr); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad address: status %d body %s", resp.StatusCode, body)
	}

	if resp, body := f.do(t, http.MethodPost, "/api/createPost", bytes.NewReader([]byte("{"))); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: status %d body %s", resp.StatusCode, body)
	}

	f.ledger.Fail(true)
	if resp, body := f.post(t, signedRequest(t, `{"text":"y"}`)); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ledger down: status %d body %s", resp.StatusCode, body)
	}
}

func TestListPosts_ErrorStatuses(t *testing.T) {
	f := newFixture(t)
	addr := signedRequest(t, `{}`).Address

	if resp, body := f.do(t, http.MethodGet, "/api/posts/"+addr+"?offset=x", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-integer offset: status %d body %s", resp.StatusCode, body)
	}
	if resp, body := f.do(t, http.MethodGet, "/api/posts/"+addr+"?limit=-1", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative limit: status %d body %s", resp.StatusCode, body)
	}
	if resp, body := f.do(t, http.MethodGet, "/api/posts/not-an-address", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad address: status %d body %s", resp.StatusCode, body)
	}
	f.ledger.Fail(true)
	if resp, body := f.do(t, http.MethodGet, "/api/posts/"+addr, nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ledger down: status %d body %s", resp.StatusCode, body)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d body %s", resp.StatusCode, body)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.NewError(model.ErrInvalidRequest, "x"), http.StatusBadRequest},
		{model.NewError(model.ErrUnauthorized, "x"), http.StatusUnauthorized},
		{model.NewError(model.ErrContentUnavailable, "x"), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", model.NewError(model.ErrLedgerUnavailable, "x")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, resp := statusOf(tc.err)
		if got != tc.want {
			t.Fatalf("statusOf(%v): got %d want %d", tc.err, got, tc.want)
		}
		if got == http.StatusInternalServerError && resp.Error != "internal error" {
			t.Fatalf("internal error text leaked: %q", resp.Error)
		}
	}
}

func TestRequestIDPropagated(t *testing.T) {
	var logs bytes.Buffer
	srv := New(nil, Options{})
	srv.SetLogger(zerolog.New(&logs))
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(middleware.RequestIDHeader); got != "req-42" {
		t.Fatalf("response request id = %q want req-42", got)
	}
	var line struct {
		RequestID string `json:"request_id"`
		Status    int    `json:"status"`
	}
	if err := json.Unmarshal(logs.Bytes(), &line); err != nil {
		t.Fatalf("decode access log %q: %v", logs.String(), err)
	}
	if line.RequestID != "req-42" || line.Status != http.StatusOK {
		t.Fatalf("access log: %s", logs.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("missing generated request id")
	}
}
