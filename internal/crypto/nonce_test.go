package crypto

import "testing"

func TestNonceEncodeDecodeRoundTrip(t *testing.T) {
	cookie, err := NewCookie()
	if err != nil {
		t.Fatalf("NewCookie() error = %v", err)
	}
	csn, err := NewCombinedSequence()
	if err != nil {
		t.Fatalf("NewCombinedSequence() error = %v", err)
	}
	csn.overflow = 0x0102

	n := NewNonce(cookie, InitiatorAddress, ServerAddress, csn)

	encoded := n.Encode()
	if len(encoded) != NonceSize {
		t.Fatalf("Encode() length = %d, want %d", len(encoded), NonceSize)
	}

	decoded, err := DecodeNonce(encoded[:])
	if err != nil {
		t.Fatalf("DecodeNonce() error = %v", err)
	}

	if decoded != n {
		t.Errorf("DecodeNonce(Encode(n)) = %+v, want %+v", decoded, n)
	}
}

func TestDecodeNonceTooShort(t *testing.T) {
	if _, err := DecodeNonce(make([]byte, NonceSize-1)); err == nil {
		t.Error("DecodeNonce() with short buffer: want error, got nil")
	}
}

func TestAddressIsResponder(t *testing.T) {
	cases := []struct {
		addr Address
		want bool
	}{
		{ServerAddress, false},
		{InitiatorAddress, false},
		{0x02, true},
		{0xff, true},
	}
	for _, c := range cases {
		if got := c.addr.IsResponder(); got != c.want {
			t.Errorf("Address(%#x).IsResponder() = %v, want %v", byte(c.addr), got, c.want)
		}
	}
}
