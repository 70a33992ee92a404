// Package gateway reads raw blocks from an IPFS HTTP gateway.
//
// Gateways are retrieval endpoints only: Put reports storage.ErrReadOnly so
// the adapter can sit behind storage.MultiCAS or storage.ReplicatingCAS next
// to a writable backend. Every response is verified against the requested CID;
// a gateway is a transport, not a source of truth.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/postledger/cidutil"
	"xdao.co/postledger/storage"
)

const rawBlockType = "application/vnd.ipld.raw"

// DefaultMaxBytes bounds a single block read.
const DefaultMaxBytes = 4 << 20

type Options struct {
	// BaseURL is the gateway root, e.g. "https://ipfs.io".
	BaseURL string
	// Timeout applies per request when non-zero.
	Timeout time.Duration
	// MaxBytes caps response bodies. Zero uses DefaultMaxBytes.
	MaxBytes int64
	// Client overrides the HTTP client (tests, shared transports).
	Client *http.Client
}

type CAS struct {
	base     string
	timeout  time.Duration
	maxBytes int64
	client   *http.Client
}

var _ storage.CAS = (*CAS)(nil)

func New(opts Options) (*CAS, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("gateway: base URL %q must be http or https", base)
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &CAS{base: base, timeout: opts.Timeout, maxBytes: maxBytes, client: client}, nil
}

// Put is not supported by gateways.
func (c *CAS) Put(context.Context, []byte) (cid.Cid, error) {
	return cid.Undef, storage.ErrReadOnly
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusErr(resp); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gateway: read %s: %w", id, err)
	}
	if int64(len(b)) > c.maxBytes {
		return nil, fmt.Errorf("gateway: block %s exceeds %d bytes", id, c.maxBytes)
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodHead, id)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *CAS) do(ctx context.Context, method string, id cid.Cid) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/ipfs/"+id.String()+"?format=raw", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", rawBlockType)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, c.base, err)
	}
	return resp, nil
}

func (c *CAS) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return storage.ErrNotFound
	default:
		return fmt.Errorf("gateway: %s: unexpected status %s", resp.Request.URL.Host, resp.Status)
	}
}
