// Package keys provides the identity primitives used to authorize ledger
// writes: addresses, EIP-191 personal-message hashing, signing, public-key
// recovery and signature verification.
//
// API stability:
//
// Stable:
//   - HashPersonalMessage, RecoverAddress, Verifier and the address helpers.
//     Their byte-level behavior must match what wallets produce; any change
//     makes valid signatures recover to the wrong address.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore). It exists for the CLI and
//     local development and is not part of the protocol contract.
package keys
