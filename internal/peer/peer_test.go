package peer

import (
	"testing"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

func TestInitiatorStateTransitions(t *testing.T) {
	i := NewInitiator()
	if i.State() != InitiatorStateNew {
		t.Fatalf("initial state = %v, want NEW", i.State())
	}

	if err := i.TransitionTo(InitiatorStateKeyReceived); err != nil {
		t.Fatalf("TransitionTo(KEY_RECEIVED) error = %v", err)
	}
	if err := i.TransitionTo(InitiatorStateAuthReceived); err != nil {
		t.Fatalf("TransitionTo(AUTH_RECEIVED) error = %v", err)
	}
}

func TestInitiatorRejectsSkippedState(t *testing.T) {
	i := NewInitiator()
	if err := i.TransitionTo(InitiatorStateAuthReceived); err == nil {
		t.Error("TransitionTo(AUTH_RECEIVED) from NEW: want error, got nil")
	}
}

func TestResponderStateTransitions(t *testing.T) {
	r := NewResponder(0x02)
	states := []ResponderState{
		ResponderStateTokenSent,
		ResponderStateKeySent,
		ResponderStateKeyReceived,
		ResponderStateAuthSent,
		ResponderStateAuthReceived,
	}
	for _, s := range states {
		if err := r.TransitionTo(s); err != nil {
			t.Fatalf("TransitionTo(%v) error = %v", s, err)
		}
	}
}

func TestCommonCookiesRoundTrip(t *testing.T) {
	r := NewResponder(0x02)
	theirs, _ := crypto.NewCookie()
	pair, err := crypto.NewCookiePair(theirs)
	if err != nil {
		t.Fatalf("NewCookiePair() error = %v", err)
	}

	r.SetCookies(pair)
	got, ok := r.Cookies()
	if !ok {
		t.Fatal("Cookies() ok = false after SetCookies")
	}
	if got != pair {
		t.Error("Cookies() does not match what was set")
	}
}

func TestCommonOutgoingCSNStartsThenAdvances(t *testing.T) {
	r := NewResponder(0x02)
	first, err := r.NextOutgoingCSN()
	if err != nil {
		t.Fatalf("NextOutgoingCSN() error = %v", err)
	}
	second, err := r.NextOutgoingCSN()
	if err != nil {
		t.Fatalf("NextOutgoingCSN() error = %v", err)
	}
	if !first.Less(second) {
		t.Error("second CSN is not greater than first")
	}
}

func TestCommonPermanentKeyCaching(t *testing.T) {
	r := NewResponder(0x02)
	ours, _ := crypto.GenerateKeyPair()
	theirs, _ := crypto.GenerateKeyPair()

	r.SetPermanentKey(theirs.Public, ours.Private)

	gotPub, ok := r.PermanentKey()
	if !ok || gotPub != theirs.Public {
		t.Error("PermanentKey() mismatch after SetPermanentKey")
	}
	if _, ok := r.PermanentShared(); !ok {
		t.Error("PermanentShared() ok = false after SetPermanentKey")
	}
}

func TestResponderTableAddAssignsLowestFreeAddress(t *testing.T) {
	table := NewResponderTable()

	r1, err := table.Add()
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if r1.Address() != 0x02 {
		t.Errorf("first responder address = %#x, want 0x02", r1.Address())
	}

	r2, err := table.Add()
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if r2.Address() != 0x03 {
		t.Errorf("second responder address = %#x, want 0x03", r2.Address())
	}

	if err := table.Remove(r1.Address()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	r3, err := table.Add()
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if r3.Address() != 0x02 {
		t.Errorf("reused address = %#x, want 0x02 after freeing it", r3.Address())
	}
}

func TestResponderTableFindByPermanentKey(t *testing.T) {
	table := NewResponderTable()
	r, _ := table.Add()

	ours, _ := crypto.GenerateKeyPair()
	theirs, _ := crypto.GenerateKeyPair()
	r.SetPermanentKey(theirs.Public, ours.Private)

	found, ok := table.FindByPermanentKey(theirs.Public)
	if !ok || found.Address() != r.Address() {
		t.Error("FindByPermanentKey() did not return the registered responder")
	}

	other, _ := crypto.GenerateKeyPair()
	if _, ok := table.FindByPermanentKey(other.Public); ok {
		t.Error("FindByPermanentKey() matched an unregistered key")
	}
}

func TestResponderTableRemoveUnknown(t *testing.T) {
	table := NewResponderTable()
	if err := table.Remove(0x05); err == nil {
		t.Error("Remove() of unregistered address: want error, got nil")
	}
}
