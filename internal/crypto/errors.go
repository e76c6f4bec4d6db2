// Package crypto provides the nonce, sequence, cookie and key-envelope
// primitives the signaling core is built on. It wraps NaCl box and
// secretbox (golang.org/x/crypto/nacl) rather than reimplementing AEAD.
package crypto

import "fmt"

// InvalidKeyError is returned when a supplied key is the wrong length.
type InvalidKeyError struct {
	Field string
	Got   int
	Want  int
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key length for %s: got %d bytes, want %d", e.Field, e.Got, e.Want)
}

// CryptoError is returned when an authenticated decryption fails, or when
// the envelope selected for a message does not have the key material it
// needs (e.g. no session key established yet).
type CryptoError struct {
	Reason string
}

func (e *CryptoError) Error() string {
	return "crypto: " + e.Reason
}

// ErrDecryptionFailed is the CryptoError raised when MAC verification fails.
func ErrDecryptionFailed(context string) *CryptoError {
	return &CryptoError{Reason: "decryption failed (" + context + ")"}
}
