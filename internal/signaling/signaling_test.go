package signaling

import (
	"testing"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

func TestParseFrame(t *testing.T) {
	cookie, err := crypto.NewCookie()
	if err != nil {
		t.Fatalf("NewCookie: %v", err)
	}
	csn, err := crypto.NewCombinedSequence()
	if err != nil {
		t.Fatalf("NewCombinedSequence: %v", err)
	}
	nonce := crypto.NewNonce(cookie, crypto.InitiatorAddress, crypto.ServerAddress, csn)
	encoded := nonce.Encode()

	payload := []byte("hello")
	frame := append(encoded[:], payload...)

	gotNonce, gotRest, err := parseFrame(frame)
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if gotNonce.Source != crypto.InitiatorAddress || gotNonce.Destination != crypto.ServerAddress {
		t.Errorf("parseFrame decoded wrong addresses: %+v", gotNonce)
	}
	if string(gotRest) != "hello" {
		t.Errorf("parseFrame rest = %q, want %q", gotRest, "hello")
	}
}

func TestParseFrameTooShort(t *testing.T) {
	if _, _, err := parseFrame(make([]byte, crypto.NonceSize-1)); err == nil {
		t.Fatal("expected an error for a frame shorter than the nonce")
	}
}

func TestCloseCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want CloseCode
	}{
		{&InternalError{Reason: "x"}, CloseInternalError},
		{&NoSharedTaskError{Reason: "x"}, CloseNoSharedTask},
		{&ProtocolError{Reason: "x"}, CloseProtocolError},
	}
	for _, c := range cases {
		if got := closeCodeFor(c.err); got != c.want {
			t.Errorf("closeCodeFor(%T) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateTask.String() != "TASK" {
		t.Errorf("StateTask.String() = %q", StateTask.String())
	}
	if State(999).String() != "UNKNOWN" {
		t.Errorf("unknown state should stringify to UNKNOWN")
	}
}
