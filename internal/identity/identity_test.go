package identity

import "testing"

func TestKeypairFromPrivateDerivesSamePublic(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}

	derived := KeypairFromPrivate(kp.PrivateKey)
	if derived.PublicKey != kp.PublicKey {
		t.Error("KeypairFromPrivate() did not reproduce the original public key")
	}
}
