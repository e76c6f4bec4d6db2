package relayserver

import (
	"testing"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

func TestPathRegisterInitiator(t *testing.T) {
	p := newPath("key")
	c1 := &serverConn{}
	c2 := &serverConn{}

	if prev := p.registerInitiator(c1); prev != nil {
		t.Fatalf("expected no previous initiator, got %v", prev)
	}
	if c1.address != crypto.InitiatorAddress {
		t.Errorf("registerInitiator did not set address, got %v", c1.address)
	}
	if !p.hasInitiator() {
		t.Error("hasInitiator() = false after registration")
	}

	prev := p.registerInitiator(c2)
	if prev != c1 {
		t.Errorf("expected registerInitiator to return the displaced connection")
	}

	conn, ok := p.lookup(crypto.InitiatorAddress)
	if !ok || conn != c2 {
		t.Error("lookup(InitiatorAddress) did not return the current initiator")
	}
}

func TestPathRegisterResponder(t *testing.T) {
	p := newPath("key")

	c1 := &serverConn{}
	addr1, err := p.registerResponder(c1)
	if err != nil {
		t.Fatalf("registerResponder: %v", err)
	}
	if addr1 != crypto.Address(0x02) {
		t.Errorf("first responder got address %v, want 0x02", addr1)
	}

	c2 := &serverConn{}
	addr2, err := p.registerResponder(c2)
	if err != nil {
		t.Fatalf("registerResponder: %v", err)
	}
	if addr2 != crypto.Address(0x03) {
		t.Errorf("second responder got address %v, want 0x03", addr2)
	}

	if p.responderCount() != 2 {
		t.Errorf("responderCount() = %d, want 2", p.responderCount())
	}

	p.removeResponder(addr1)
	if p.responderCount() != 1 {
		t.Errorf("responderCount() after removal = %d, want 1", p.responderCount())
	}

	// The freed address is reused before allocating a new one.
	c3 := &serverConn{}
	addr3, err := p.registerResponder(c3)
	if err != nil {
		t.Fatalf("registerResponder: %v", err)
	}
	if addr3 != addr1 {
		t.Errorf("expected the freed address %v to be reused, got %v", addr1, addr3)
	}
}

func TestPathFull(t *testing.T) {
	p := newPath("key")
	for addr := 0x02; addr <= 0xff; addr++ {
		if _, err := p.registerResponder(&serverConn{}); err != nil {
			t.Fatalf("registerResponder failed before path was full (addr %d): %v", addr, err)
		}
	}

	if _, err := p.registerResponder(&serverConn{}); err != ErrPathFull {
		t.Errorf("expected ErrPathFull once all 254 addresses are taken, got %v", err)
	}
}

func TestPathEmpty(t *testing.T) {
	p := newPath("key")
	if !p.empty() {
		t.Error("new path should be empty")
	}

	c := &serverConn{}
	p.registerInitiator(c)
	if p.empty() {
		t.Error("path with an initiator should not be empty")
	}

	p.removeInitiator(c)
	if !p.empty() {
		t.Error("path should be empty again after removing its only initiator")
	}
}

func TestPathStatus(t *testing.T) {
	p := newPath("0123456789abcdef")
	p.registerInitiator(&serverConn{})
	p.registerResponder(&serverConn{})
	p.registerResponder(&serverConn{})

	status := p.status()
	if !status.HasInitiator {
		t.Error("status.HasInitiator = false, want true")
	}
	if status.ResponderCount != 2 {
		t.Errorf("status.ResponderCount = %d, want 2", status.ResponderCount)
	}
	if status.Path != "01234567" {
		t.Errorf("status.Path = %q, want shortened key", status.Path)
	}
}
