package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"xdao.co/postledger/cidutil"
)

// CanonicalBody re-encodes a JSON body deterministically: object keys sorted,
// insignificant whitespace removed, numbers kept as written. Handles are
// derived from these bytes, so semantically equal bodies share a handle.
func CanonicalBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("model: empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("model: body is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("model: trailing data after JSON body")
	}
	if v == nil {
		return nil, errors.New("model: body must not be null")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HandleOf returns the handle for a body without storing it.
func HandleOf(raw []byte) (string, []byte, error) {
	canonical, err := CanonicalBody(raw)
	if err != nil {
		return "", nil, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(canonical)
	if err != nil {
		return "", nil, err
	}
	return id.String(), canonical, nil
}

// CommitMessage is the exact message an owner signs to authorize a handle.
func CommitMessage(handle string) string {
	return "Create post with content hash: " + handle
}
