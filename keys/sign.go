package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// personalMessagePrefix is the EIP-191 version 0x45 domain separation tag.
const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

// SignatureLength is the size of an [R || S || V] signature.
const SignatureLength = crypto.SignatureLength

var ErrMalformedSignature = errors.New("keys: malformed signature")

// HashPersonalMessage returns keccak256(prefix || len(message) || message),
// with the length written as a decimal string.
func HashPersonalMessage(message []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(personalMessagePrefix))
	_, _ = h.Write([]byte(strconv.Itoa(len(message))))
	_, _ = h.Write(message)
	return h.Sum(nil)
}

// SignPersonalMessage signs message the way wallets implement personal_sign.
// The returned signature has V in {27, 28}.
func SignPersonalMessage(message []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, errors.New("keys: missing private key")
	}
	sig, err := crypto.Sign(HashPersonalMessage(message), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverAddress recovers the address that signed message. V may be 0/1 or
// 27/28.
func RecoverAddress(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, signature[crypto.RecoveryIDOffset])
	}
	sig[crypto.RecoveryIDOffset] = v

	pub, err := crypto.SigToPub(HashPersonalMessage(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
