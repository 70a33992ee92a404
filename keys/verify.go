package keys

import (
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

// Verifier checks that a claimed identity produced a personal-message
// signature. Verification failure is an expected outcome, not an error:
// every failure path returns false and is logged at debug level.
type Verifier struct {
	logger zerolog.Logger
}

func NewVerifier() *Verifier {
	return &Verifier{logger: zerolog.Nop()}
}

func (v *Verifier) SetLogger(logger zerolog.Logger) {
	v.logger = logger
}

// Verify reports whether signature over message recovers to claimed.
func (v *Verifier) Verify(message, signature []byte, claimed string) bool {
	if len(message) == 0 {
		v.fail(errors.New("empty message"), claimed)
		return false
	}
	if !IsAddress(claimed) {
		v.fail(errors.New("claimed identity is not an address"), claimed)
		return false
	}
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		v.fail(err, claimed)
		return false
	}
	if !SameAddress(recovered.Hex(), claimed) {
		v.logger.Debug().
			Str("claimed", claimed).
			Str("recovered", recovered.Hex()).
			Msg("signature recovered to a different identity")
		return false
	}
	return true
}

// VerifyHex is Verify with a 0x-prefixed (or bare) hex signature.
func (v *Verifier) VerifyHex(message []byte, signatureHex string, claimed string) bool {
	sig, err := DecodeSignature(signatureHex)
	if err != nil {
		v.fail(err, claimed)
		return false
	}
	return v.Verify(message, sig, claimed)
}

func (v *Verifier) fail(err error, claimed string) {
	v.logger.Debug().Err(err).Str("claimed", claimed).Msg("signature verification failed")
}

// DecodeSignature parses a hex signature with or without the 0x prefix.
func DecodeSignature(s string) ([]byte, error) {
	if len(s) < 2 || s[:2] != "0x" && s[:2] != "0X" {
		s = "0x" + s
	}
	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil {
		return nil, errors.Join(ErrMalformedSignature, err)
	}
	return b, nil
}
