package signaling

import (
	"testing"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

func TestResponderConfigValidateTrusted(t *testing.T) {
	var trustedKey [crypto.KeySize]byte
	cfg := ResponderConfig{InitiatorTrustedKey: &trustedKey}

	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() on a trusted-only config: %v", err)
	}
	if !cfg.trusted() {
		t.Error("trusted() = false for a trusted config")
	}
	if cfg.initiatorKey() != &trustedKey {
		t.Error("initiatorKey() did not return the trusted key")
	}
}

func TestResponderConfigValidateUntrusted(t *testing.T) {
	var pub [crypto.KeySize]byte
	token, err := crypto.NewAuthToken()
	if err != nil {
		t.Fatalf("NewAuthToken: %v", err)
	}
	cfg := ResponderConfig{InitiatorPublicKey: &pub, AuthToken: &token}

	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() on an untrusted config: %v", err)
	}
	if cfg.trusted() {
		t.Error("trusted() = true for an untrusted config")
	}
}

func TestResponderConfigValidateConflict(t *testing.T) {
	var pub, trusted [crypto.KeySize]byte
	token, err := crypto.NewAuthToken()
	if err != nil {
		t.Fatalf("NewAuthToken: %v", err)
	}

	cfg := ResponderConfig{
		InitiatorPublicKey:  &pub,
		AuthToken:           &token,
		InitiatorTrustedKey: &trusted,
	}

	err = cfg.validate()
	if err == nil {
		t.Fatal("expected an error when both trusted and untrusted material are set")
	}
	if _, ok := err.(*ErrConfigConflict); !ok {
		t.Errorf("expected *ErrConfigConflict, got %T", err)
	}
}

func TestResponderConfigValidateMissing(t *testing.T) {
	if err := (ResponderConfig{}).validate(); err == nil {
		t.Fatal("expected an error for an empty config")
	}

	var pub [crypto.KeySize]byte
	if err := (ResponderConfig{InitiatorPublicKey: &pub}).validate(); err == nil {
		t.Fatal("expected an error when auth_token is missing")
	}
}

func TestNewResponderRejectsInvalidConfig(t *testing.T) {
	permanentKey, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	_, err = NewResponder(permanentKey, ResponderConfig{}, nil, nil, nil, EventHandlers{})
	if err == nil {
		t.Fatal("expected NewResponder to reject an invalid ResponderConfig")
	}
}
