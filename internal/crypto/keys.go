package crypto

import (
	cryptorand "crypto/rand"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeyPair is a NaCl box keypair: either the long-term permanent keypair a
// process owns, or an ephemeral session keypair generated per connection.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a fresh NaCl box keypair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(cryptorand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// ParseKey decodes a 32-byte public or private key, validating its length.
func ParseKey(field string, b []byte) ([KeySize]byte, error) {
	var k [KeySize]byte
	if len(b) != KeySize {
		return k, &InvalidKeyError{Field: field, Got: len(b), Want: KeySize}
	}
	copy(k[:], b)
	return k, nil
}

// SharedKey is a precomputed NaCl box shared secret between our permanent
// or session private key and a peer's public key, keyed by the (sk, pk)
// pair it was derived from so it can be cached per peer.
type SharedKey [KeySize]byte

// Precompute derives the shared key for (ourPrivate, peerPublic), mirroring
// nacl/box's Precompute so repeated envelope operations with the same peer
// avoid re-running the scalar multiplication.
func Precompute(ourPrivate, peerPublic [KeySize]byte) SharedKey {
	var shared [KeySize]byte
	box.Precompute(&shared, &peerPublic, &ourPrivate)
	return SharedKey(shared)
}

// Seal encrypts plaintext for the peer this shared key was precomputed
// against, using the given nonce. Output is ciphertext only (no nonce
// prepended) — callers own nonce framing per spec.md's wire layout.
func (k SharedKey) Seal(nonce [NonceSize]byte, plaintext []byte) []byte {
	shared := [KeySize]byte(k)
	return box.SealAfterPrecomputation(nil, plaintext, &nonce, &shared)
}

// Open authenticates and decrypts ciphertext sealed with Seal using the
// matching shared key and nonce.
func (k SharedKey) Open(nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	shared := [KeySize]byte(k)
	plaintext, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, &shared)
	if !ok {
		return nil, ErrDecryptionFailed("box")
	}
	return plaintext, nil
}

// AuthToken is the 32-byte symmetric secretbox key shared out-of-band
// between initiator and responder, used exactly once for the responder's
// `token` message when the initiator does not already trust the
// responder's permanent key.
type AuthToken [KeySize]byte

// NewAuthToken draws a fresh random auth token (for servers/tools that mint
// one to hand to both parties out-of-band; most callers instead parse one
// supplied by the application).
func NewAuthToken() (AuthToken, error) {
	var t AuthToken
	if _, err := cryptorand.Read(t[:]); err != nil {
		return AuthToken{}, err
	}
	return t, nil
}

// Seal encrypts plaintext with the auth token under the given nonce.
func (t AuthToken) Seal(nonce [NonceSize]byte, plaintext []byte) []byte {
	key := [KeySize]byte(t)
	return secretbox.Seal(nil, plaintext, &nonce, &key)
}

// Open authenticates and decrypts ciphertext sealed with Seal.
func (t AuthToken) Open(nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	key := [KeySize]byte(t)
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, ErrDecryptionFailed("secretbox")
	}
	return plaintext, nil
}

// IsZeroKey reports whether a key is all zeros (uninitialized).
func IsZeroKey(k [KeySize]byte) bool {
	var zero [KeySize]byte
	return k == zero
}
