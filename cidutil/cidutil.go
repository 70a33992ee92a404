package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// ParseHandle decodes a content handle and checks it uses the raw + sha2-256
// contract. Handles minted elsewhere (dag-pb, other hashes) are rejected since
// their bytes cannot be verified against a raw block.
func ParseHandle(handle string) (cid.Cid, error) {
	if handle == "" {
		return cid.Undef, fmt.Errorf("cidutil: empty handle")
	}
	id, err := cid.Decode(handle)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: decode handle: %w", err)
	}
	pref := id.Prefix()
	if pref.Codec != cid.Raw || pref.MhType != multihash.SHA2_256 {
		return cid.Undef, fmt.Errorf("cidutil: handle %s is not raw sha2-256", handle)
	}
	return id, nil
}

// Verify reports whether data hashes to id under the raw + sha2-256 contract.
func Verify(id cid.Cid, data []byte) bool {
	got, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
