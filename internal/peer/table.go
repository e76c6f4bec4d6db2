package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

// MaxResponders is the number of responder slots available: addresses
// 0x02..0xff.
const MaxResponders = 0xff - 0x02 + 1

// ErrNoFreeAddress is returned when all responder slots are occupied.
var ErrNoFreeAddress = errors.New("peer: no free responder address")

// ErrUnknownResponder is returned when a lookup or removal targets an
// address that isn't currently registered.
var ErrUnknownResponder = errors.New("peer: unknown responder address")

// ResponderTable tracks the responders currently paired with one
// initiator, keyed by their assigned address. It mirrors the bookkeeping
// role of the teacher's peer.Manager, scoped to the much smaller address
// space SaltyRTC responders occupy.
type ResponderTable struct {
	mu        sync.Mutex
	responders map[crypto.Address]*Responder
}

// NewResponderTable creates an empty table.
func NewResponderTable() *ResponderTable {
	return &ResponderTable{responders: make(map[crypto.Address]*Responder)}
}

// Add allocates the lowest free responder address and registers a fresh
// Responder under it.
func (t *ResponderTable) Add() (*Responder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.responders) >= MaxResponders {
		return nil, ErrNoFreeAddress
	}
	for addr := crypto.Address(0x02); ; addr++ {
		if _, taken := t.responders[addr]; !taken {
			r := NewResponder(addr)
			t.responders[addr] = r
			return r, nil
		}
		if addr == 0xff {
			return nil, ErrNoFreeAddress
		}
	}
}

// Get returns the responder registered at address, if any.
func (t *ResponderTable) Get(address crypto.Address) (*Responder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.responders[address]
	return r, ok
}

// GetOrCreate returns the responder registered at address, creating one in
// ResponderStateNew if none is registered yet. Unlike Add, it does not pick
// the address itself — for use by a client tracking a specific responder
// address the server already assigned (via new-responder or
// server-auth.responders), as opposed to the server's own allocation.
func (t *ResponderTable) GetOrCreate(address crypto.Address) *Responder {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.responders[address]; ok {
		return r
	}
	r := NewResponder(address)
	t.responders[address] = r
	return r
}

// Remove drops the responder at address.
func (t *ResponderTable) Remove(address crypto.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.responders[address]; !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownResponder, address)
	}
	delete(t.responders, address)
	return nil
}

// FindByPermanentKey returns the responder whose permanent key matches key,
// used to detect and drop a stale duplicate connection per spec.md's
// drop-responder handling.
func (t *ResponderTable) FindByPermanentKey(key [crypto.KeySize]byte) (*Responder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.responders {
		if pub, ok := r.PermanentKey(); ok && pub == key {
			return r, true
		}
	}
	return nil, false
}

// Addresses returns the currently registered responder addresses.
func (t *ResponderTable) Addresses() []crypto.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]crypto.Address, 0, len(t.responders))
	for addr := range t.responders {
		out = append(out, addr)
	}
	return out
}

// Len returns the number of registered responders.
func (t *ResponderTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.responders)
}
