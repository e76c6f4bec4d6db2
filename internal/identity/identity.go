// Package identity manages a process's long-term SaltyRTC permanent
// keypair: generation, hex parsing, and on-disk persistence.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the size of a permanent public or private key in bytes.
	KeySize = 32

	keyFileName    = "permanent.key"
	pubKeyFileName = "permanent.pub"
)

var (
	// ErrInvalidKeyLength is returned when key bytes are the wrong length.
	ErrInvalidKeyLength = errors.New("invalid key length: expected 32 bytes")

	// ErrInvalidHexString is returned when a hex string is malformed.
	ErrInvalidHexString = errors.New("invalid hex string for key")

	// ErrKeyMismatch is returned when a stored public key doesn't match the
	// public key derived from the stored private key.
	ErrKeyMismatch = errors.New("stored public key does not match private key")
)

// Keypair is a process's long-term NaCl box keypair, used as the permanent
// key in spec.md §3 ("Keys").
type Keypair struct {
	PublicKey  [KeySize]byte
	PrivateKey [KeySize]byte
}

// NewKeypair generates a new permanent keypair using crypto/rand.
func NewKeypair() (*Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate permanent keypair: %w", err)
	}
	return &Keypair{PublicKey: *pub, PrivateKey: *priv}, nil
}

// KeypairFromPrivate derives a Keypair's public half from a stored private key.
func KeypairFromPrivate(priv [KeySize]byte) *Keypair {
	var pub [KeySize]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return &Keypair{PublicKey: pub, PrivateKey: priv}
}

// Zero overwrites the private key in place, leaving the public key intact.
func (kp *Keypair) Zero() {
	for i := range kp.PrivateKey {
		kp.PrivateKey[i] = 0
	}
}

// PublicKeyString returns the hex representation of the public key.
func (kp *Keypair) PublicKeyString() string {
	return KeyToString(kp.PublicKey)
}

// PublicKeyShortString returns the first 8 bytes of the public key, hex
// encoded, for use in logs.
func (kp *Keypair) PublicKeyShortString() string {
	return hex.EncodeToString(kp.PublicKey[:8])
}

// IsZeroKey reports whether a key is all zeros (uninitialized).
func IsZeroKey(k [KeySize]byte) bool {
	var zero [KeySize]byte
	return k == zero
}

// ParseKey parses a hex-encoded 32-byte key, tolerating a "0x" prefix and
// surrounding whitespace.
func ParseKey(s string) ([KeySize]byte, error) {
	var k [KeySize]byte

	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	if len(s) != KeySize*2 {
		return k, fmt.Errorf("%w: got %d hex chars, expected %d", ErrInvalidHexString, len(s), KeySize*2)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidHexString, err)
	}

	copy(k[:], decoded)
	return k, nil
}

// KeyToString returns the hex representation of a key.
func KeyToString(k [KeySize]byte) string {
	return hex.EncodeToString(k[:])
}

// Store persists the keypair to dataDir as two files: the private key
// (0600) and the derived public key (0644, for operators to read without
// exposing the secret).
func (kp *Keypair) Store(dataDir string) error {
	if IsZeroKey(kp.PrivateKey) {
		return errors.New("cannot store zero private key")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	privPath := filepath.Join(dataDir, keyFileName)
	privTemp := privPath + ".tmp"
	if err := os.WriteFile(privTemp, []byte(KeyToString(kp.PrivateKey)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write permanent private key: %w", err)
	}
	if err := os.Rename(privTemp, privPath); err != nil {
		os.Remove(privTemp)
		return fmt.Errorf("failed to persist permanent private key: %w", err)
	}

	pubPath := filepath.Join(dataDir, pubKeyFileName)
	pubTemp := pubPath + ".tmp"
	if err := os.WriteFile(pubTemp, []byte(KeyToString(kp.PublicKey)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write permanent public key: %w", err)
	}
	if err := os.Rename(pubTemp, pubPath); err != nil {
		os.Remove(pubTemp)
		return fmt.Errorf("failed to persist permanent public key: %w", err)
	}

	return nil
}

// LoadKeypair reads a persisted keypair from dataDir. If a public key file
// is present, it must match the public key derived from the private key.
func LoadKeypair(dataDir string) (*Keypair, error) {
	privPath := filepath.Join(dataDir, keyFileName)

	data, err := os.ReadFile(privPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("permanent key not found at %s", privPath)
		}
		return nil, fmt.Errorf("failed to read permanent key: %w", err)
	}

	priv, err := ParseKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}

	kp := KeypairFromPrivate(priv)

	pubPath := filepath.Join(dataDir, pubKeyFileName)
	if pubData, err := os.ReadFile(pubPath); err == nil {
		storedPub, err := ParseKey(strings.TrimSpace(string(pubData)))
		if err != nil {
			return nil, err
		}
		if storedPub != kp.PublicKey {
			return nil, ErrKeyMismatch
		}
	}

	return kp, nil
}

// LoadOrCreateKeypair loads an existing permanent keypair from dataDir, or
// generates and persists a new one if none exists.
func LoadOrCreateKeypair(dataDir string) (*Keypair, bool, error) {
	kp, err := LoadKeypair(dataDir)
	if err == nil {
		return kp, false, nil
	}

	if !strings.Contains(err.Error(), "not found") {
		return nil, false, err
	}

	kp, err = NewKeypair()
	if err != nil {
		return nil, false, err
	}

	if err := kp.Store(dataDir); err != nil {
		return nil, false, err
	}

	return kp, true, nil
}

// KeypairExists checks whether a permanent key file exists in dataDir.
func KeypairExists(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, keyFileName))
	return err == nil
}
