// Package bundle moves content bodies between CAS backends as a
// deterministic TAR archive.
//
// Layout:
//
//	blocks/<cid>   raw body bytes, CIDv1 raw + sha2-256
//	index.json     optional, non-authoritative: owner and ledger order
//
// Import trusts nothing in the archive except the bytes: every block is
// re-hashed against its file name before it reaches the CAS.
package bundle

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/postledger/cidutil"
	"xdao.co/postledger/model"
	"xdao.co/postledger/storage"
)

// FormatVersion is the index.json schema version.
const FormatVersion = 1

var epoch = time.Unix(0, 0).UTC()

// Manifest is the optional index written next to the blocks.
type Manifest struct {
	Version int    `json:"version"`
	Owner   string `json:"owner,omitempty"`
	// Entries keeps the ledger order of the exported handles.
	Entries []model.IndexEntry `json:"entries"`
}

type ExportOptions struct {
	// Owner and Entries populate index.json. Without entries no index is
	// written.
	Owner   string
	Entries []model.IndexEntry
}

// Export writes the blocks for handles to w. Output is byte-identical for
// the same set of handles regardless of their order or duplicates.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, handles []string, opts ExportOptions) (err error) {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	ids := make(map[string]cid.Cid, len(handles))
	for _, h := range handles {
		id, perr := cidutil.ParseHandle(h)
		if perr != nil {
			return perr
		}
		ids[id.String()] = id
	}
	names := make([]string, 0, len(ids))
	for n := range ids {
		names = append(names, n)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, gerr := cas.Get(ctx, ids[n])
		if gerr != nil {
			return fmt.Errorf("bundle: %s: %w", n, gerr)
		}
		if !cidutil.Verify(ids[n], b) {
			return fmt.Errorf("bundle: %s: %w", n, storage.ErrCIDMismatch)
		}
		if err := writeEntry(tw, "blocks/"+n, b); err != nil {
			return err
		}
	}

	if len(opts.Entries) == 0 {
		return nil
	}
	idx, merr := json.Marshal(Manifest{Version: FormatVersion, Owner: opts.Owner, Entries: opts.Entries})
	if merr != nil {
		return merr
	}
	return writeEntry(tw, "index.json", append(idx, '\n'))
}

type ImportOptions struct {
	// IgnoreUnknown skips entries that are neither blocks nor the index.
	// The default rejects them.
	IgnoreUnknown bool
}

// Import reads an archive from r and stores every block in cas. It returns
// the manifest when the archive carries one.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (*Manifest, int, error) {
	if cas == nil {
		return nil, 0, errors.New("bundle: nil CAS")
	}
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var manifest *Manifest
	for {
		if err := ctx.Err(); err != nil {
			return manifest, len(seen), err
		}
		h, err := tr.Next()
		if err == io.EOF {
			return manifest, len(seen), nil
		}
		if err != nil {
			return manifest, len(seen), err
		}
		name := cleanPath(h.Name)
		if name == "" {
			return manifest, len(seen), fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return manifest, len(seen), fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == "index.json":
			var m Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return manifest, len(seen), fmt.Errorf("bundle: index.json: %w", err)
			}
			manifest = &m
		case strings.HasPrefix(name, "blocks/"):
			key, err := importBlock(ctx, tr, cas, strings.TrimPrefix(name, "blocks/"))
			if err != nil {
				return manifest, len(seen), err
			}
			if _, dup := seen[key]; dup {
				return manifest, len(seen), fmt.Errorf("bundle: duplicate block %s", key)
			}
			seen[key] = struct{}{}
		case opts.IgnoreUnknown:
		default:
			return manifest, len(seen), fmt.Errorf("bundle: unknown entry %s", name)
		}
	}
}

func importBlock(ctx context.Context, r io.Reader, cas storage.CAS, name string) (string, error) {
	id, err := cid.Decode(name)
	if err != nil || !id.Defined() {
		return "", storage.ErrInvalidCID
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if !cidutil.Verify(id, b) {
		return "", storage.ErrCIDMismatch
	}
	got, err := cas.Put(ctx, b)
	if err != nil {
		return "", err
	}
	if !got.Equals(id) {
		return "", storage.ErrCIDMismatch
	}
	return id.String(), nil
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	if err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// cleanPath normalizes an archive path, returning "" for anything absolute
// or escaping the archive root.
func cleanPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(name, "./")
	if name == "" || strings.HasPrefix(name, "/") {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return path.Clean(name)
}
