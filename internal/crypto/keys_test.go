package crypto

import "testing"

func TestGenerateKeyPairDistinct(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() second call error = %v", err)
	}
	if kp1.Public == kp2.Public {
		t.Error("two generated public keys are identical")
	}
	if IsZeroKey(kp1.Private) {
		t.Error("generated private key is zero")
	}
}

func TestParseKeyLength(t *testing.T) {
	if _, err := ParseKey("test", make([]byte, KeySize-1)); err == nil {
		t.Error("ParseKey() with short input: want error, got nil")
	}
	if _, err := ParseKey("test", make([]byte, KeySize)); err != nil {
		t.Errorf("ParseKey() with valid input error = %v", err)
	}
}

func TestBoxSealOpenRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() alice error = %v", err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() bob error = %v", err)
	}

	aliceToBob := Precompute(alice.Private, bob.Public)
	bobFromAlice := Precompute(bob.Private, alice.Public)

	var nonce [NonceSize]byte
	plaintext := []byte("hello responder")

	ciphertext := aliceToBob.Seal(nonce, plaintext)
	got, err := bobFromAlice.Open(nonce, ciphertext)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Open() = %q, want %q", got, plaintext)
	}

	// Replaying the same (key, nonce, plaintext) must produce identical
	// ciphertext, per spec.md §8.
	again := aliceToBob.Seal(nonce, plaintext)
	if string(again) != string(ciphertext) {
		t.Error("Seal() is not deterministic for identical (key, nonce, plaintext)")
	}
}

func TestBoxOpenRejectsTamperedCiphertext(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	shared := Precompute(alice.Private, bob.Public)
	sharedBack := Precompute(bob.Private, alice.Public)

	var nonce [NonceSize]byte
	ciphertext := shared.Seal(nonce, []byte("secret"))
	ciphertext[0] ^= 0xff

	if _, err := sharedBack.Open(nonce, ciphertext); err == nil {
		t.Error("Open() of tampered ciphertext: want error, got nil")
	}
}

func TestAuthTokenSealOpenRoundTrip(t *testing.T) {
	token, err := NewAuthToken()
	if err != nil {
		t.Fatalf("NewAuthToken() error = %v", err)
	}

	var nonce [NonceSize]byte
	plaintext := []byte("responder permanent key")

	ciphertext := token.Seal(nonce, plaintext)
	got, err := token.Open(nonce, ciphertext)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Open() = %q, want %q", got, plaintext)
	}
}

func TestAuthTokenOpenWrongTokenFails(t *testing.T) {
	token1, _ := NewAuthToken()
	token2, _ := NewAuthToken()

	var nonce [NonceSize]byte
	ciphertext := token1.Seal(nonce, []byte("data"))

	if _, err := token2.Open(nonce, ciphertext); err == nil {
		t.Error("Open() with wrong token: want error, got nil")
	}
}
