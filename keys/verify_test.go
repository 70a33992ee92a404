package keys

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestVerifier_AcceptsOwnSignature(t *testing.T) {
	key := mustKey(t)
	msg := []byte("Create post with content hash: bafkreiexample")
	sig, err := SignPersonalMessage(msg, key)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	v := NewVerifier()
	addr := AddressOf(key)
	for _, claimed := range []string{addr, strings.ToLower(addr), "0x" + strings.ToUpper(addr[2:])} {
		if !v.Verify(msg, sig, claimed) {
			t.Fatalf("expected %s to verify", claimed)
		}
	}
	if !v.VerifyHex(msg, hexutil.Encode(sig), addr) {
		t.Fatalf("expected 0x hex signature to verify")
	}
	if !v.VerifyHex(msg, hexutil.Encode(sig)[2:], addr) {
		t.Fatalf("expected bare hex signature to verify")
	}
}

func TestVerifier_RejectsEverySignatureBitFlip(t *testing.T) {
	key := mustKey(t)
	msg := []byte("Create post with content hash: bafkreiexample")
	sig, err := SignPersonalMessage(msg, key)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	v := NewVerifier()
	addr := AddressOf(key)
	for i := 0; i < len(sig)*8; i++ {
		mut := append([]byte(nil), sig...)
		mut[i/8] ^= 1 << (i % 8)
		if v.Verify(msg, mut, addr) {
			t.Fatalf("bit %d flip still verified", i)
		}
	}
}

func TestVerifier_RejectsMessageMutation(t *testing.T) {
	key := mustKey(t)
	msg := []byte("Create post with content hash: bafkreiexample")
	sig, err := SignPersonalMessage(msg, key)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	v := NewVerifier()
	addr := AddressOf(key)
	for i := range msg {
		mut := append([]byte(nil), msg...)
		mut[i] ^= 0x01
		if v.Verify(mut, sig, addr) {
			t.Fatalf("byte %d mutation still verified", i)
		}
	}
	if v.Verify(append(msg, ' '), sig, addr) {
		t.Fatalf("extended message verified")
	}
}

func TestVerifier_RejectsMalformedInput(t *testing.T) {
	key := mustKey(t)
	msg := []byte("m")
	sig, err := SignPersonalMessage(msg, key)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	v := NewVerifier()
	addr := AddressOf(key)

	if v.Verify(nil, sig, addr) {
		t.Fatalf("empty message verified")
	}
	if v.Verify(msg, sig, "not-an-address") {
		t.Fatalf("bad claimed identity verified")
	}
	if v.Verify(msg, sig, "0x0000000000000000000000000000000000000001") {
		t.Fatalf("other identity verified")
	}
	if v.Verify(msg, sig[:64], addr) {
		t.Fatalf("truncated signature verified")
	}
	if v.VerifyHex(msg, "0xzz", addr) {
		t.Fatalf("non-hex signature verified")
	}
	if v.VerifyHex(msg, "", addr) {
		t.Fatalf("empty signature verified")
	}
}
