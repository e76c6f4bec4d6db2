package message

import (
	"testing"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

func TestServerHelloRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	original := NewServerHello(kp.Public)
	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	typ, err := PeekType(data)
	if err != nil {
		t.Fatalf("PeekType() error = %v", err)
	}
	if typ != TypeServerHello {
		t.Errorf("PeekType() = %q, want %q", typ, TypeServerHello)
	}

	decoded, err := DecodeServerHello(data)
	if err != nil {
		t.Fatalf("DecodeServerHello() error = %v", err)
	}
	if string(decoded.Key) != string(kp.Public[:]) {
		t.Error("decoded key does not match original")
	}
}

func TestServerHelloRejectsShortKey(t *testing.T) {
	m := &ServerHello{Type: TypeServerHello, Key: make([]byte, 10)}
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := DecodeServerHello(data); err == nil {
		t.Error("DecodeServerHello() with short key: want error, got nil")
	}
}

func TestClientAuthValidate(t *testing.T) {
	valid := &ClientAuth{
		Type:         TypeClientAuth,
		YourCookie:   make([]byte, crypto.CookieSize),
		Subprotocols: []string{"saltyrtc-1.0"},
		PingInterval: 20,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on well-formed client-auth error = %v", err)
	}

	missingSubprotocols := &ClientAuth{
		Type:       TypeClientAuth,
		YourCookie: make([]byte, crypto.CookieSize),
	}
	if err := missingSubprotocols.Validate(); err == nil {
		t.Error("Validate() with no subprotocols: want error, got nil")
	}

	badCookie := &ClientAuth{
		Type:         TypeClientAuth,
		YourCookie:   make([]byte, 3),
		Subprotocols: []string{"saltyrtc-1.0"},
	}
	if err := badCookie.Validate(); err == nil {
		t.Error("Validate() with short cookie: want error, got nil")
	}
}

func TestServerAuthRejectsBothResponderFields(t *testing.T) {
	connected := true
	m := &ServerAuth{
		Type:               TypeServerAuth,
		YourCookie:          make([]byte, crypto.CookieSize),
		InitiatorConnected:  &connected,
		Responders:          []uint8{0x02},
	}
	if err := m.Validate(); err == nil {
		t.Error("Validate() with both initiator_connected and responders set: want error, got nil")
	}
}

func TestNewResponderRejectsServerOrInitiatorID(t *testing.T) {
	for _, id := range []uint8{0x00, 0x01} {
		m := &NewResponder{Type: TypeNewResponder, ID: id}
		if err := m.Validate(); err == nil {
			t.Errorf("Validate() with id=%#x: want error, got nil", id)
		}
	}
}

func TestAuthResponderRoundTrip(t *testing.T) {
	original := &AuthResponder{
		Type:       TypeAuth,
		YourCookie: make([]byte, crypto.CookieSize),
		Tasks:      []string{"v1.ping"},
		Data: map[string]map[string]interface{}{
			"v1.ping": {"interval": 10},
		},
	}
	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := DecodeAuthResponder(data)
	if err != nil {
		t.Fatalf("DecodeAuthResponder() error = %v", err)
	}
	if len(decoded.Tasks) != 1 || decoded.Tasks[0] != "v1.ping" {
		t.Errorf("decoded tasks = %v, want [v1.ping]", decoded.Tasks)
	}
}

func TestAuthInitiatorRequiresTask(t *testing.T) {
	m := &AuthInitiator{
		Type:       TypeAuth,
		YourCookie: make([]byte, crypto.CookieSize),
	}
	if err := m.Validate(); err == nil {
		t.Error("Validate() with empty task: want error, got nil")
	}
}

func TestSendErrorRequiresEightByteID(t *testing.T) {
	m := &SendError{Type: TypeSendError, ID: make([]byte, 7)}
	if err := m.Validate(); err == nil {
		t.Error("Validate() with 7-byte id: want error, got nil")
	}
}
