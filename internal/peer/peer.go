// Package peer holds the per-peer handshake state the signaling core tracks
// for the other side of a connection: its address, cookie pair, sequence
// counters and key material. The state-machine shape (atomic state field,
// String() for logs, explicit transition guards) follows the teacher's
// peer.Connection.
package peer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

// InitiatorState is the handshake substate of an initiator, as tracked by
// the responder that is pairing with it.
type InitiatorState int32

const (
	InitiatorStateNew InitiatorState = iota
	InitiatorStateKeyReceived
	InitiatorStateAuthReceived
)

func (s InitiatorState) String() string {
	switch s {
	case InitiatorStateNew:
		return "NEW"
	case InitiatorStateKeyReceived:
		return "KEY_RECEIVED"
	case InitiatorStateAuthReceived:
		return "AUTH_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// ResponderState is the handshake substate of one responder, as tracked by
// the initiator that is pairing with it.
type ResponderState int32

const (
	ResponderStateNew ResponderState = iota
	ResponderStateTokenSent
	ResponderStateKeySent
	ResponderStateKeyReceived
	ResponderStateAuthSent
	ResponderStateAuthReceived
)

func (s ResponderState) String() string {
	switch s {
	case ResponderStateNew:
		return "NEW"
	case ResponderStateTokenSent:
		return "TOKEN_SENT"
	case ResponderStateKeySent:
		return "KEY_SENT"
	case ResponderStateKeyReceived:
		return "KEY_RECEIVED"
	case ResponderStateAuthSent:
		return "AUTH_SENT"
	case ResponderStateAuthReceived:
		return "AUTH_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidTransition is returned when a substate transition is attempted
// out of order (e.g. AUTH before KEY).
type ErrInvalidTransition struct {
	Role string
	From fmt.Stringer
	To   fmt.Stringer
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("peer: invalid %s state transition %s -> %s", e.Role, e.From, e.To)
}

// common holds the fields shared by both peer roles: address, cookies,
// sequence tracking and key material, guarded by a single mutex since key
// negotiation and envelope use happen from different goroutines (reader
// and writer) in the signaling core.
type common struct {
	mu sync.Mutex

	address crypto.Address

	cookies      crypto.CookiePair
	cookiesSet   bool
	outgoingCSN  crypto.CombinedSequence
	csnStarted   bool
	incomingCSN  crypto.IncomingTracker

	permanentPublicKey [crypto.KeySize]byte
	permanentKeySet    bool
	permanentShared    crypto.SharedKey
	permanentCached    bool

	sessionPublicKey [crypto.KeySize]byte
	sessionSet       bool
	sessionShared    crypto.SharedKey
	sessionCached    bool
}

// Address returns the signaling address assigned to this peer.
func (c *common) Address() crypto.Address {
	return c.address
}

// SetCookies records the cookie pair negotiated for this peer's direction.
func (c *common) SetCookies(pair crypto.CookiePair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = pair
	c.cookiesSet = true
}

// Cookies returns the negotiated cookie pair. ok is false before
// SetCookies has been called.
func (c *common) Cookies() (pair crypto.CookiePair, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies, c.cookiesSet
}

// NextOutgoingCSN advances and returns this peer's outgoing sequence
// counter, starting it on first use.
func (c *common) NextOutgoingCSN() (crypto.CombinedSequence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.csnStarted {
		csn, err := crypto.NewCombinedSequence()
		if err != nil {
			return crypto.CombinedSequence{}, err
		}
		c.outgoingCSN = csn
		c.csnStarted = true
	}
	return c.outgoingCSN.Next()
}

// ValidateIncomingCSN enforces strict increase on an inbound frame's CSN.
func (c *common) ValidateIncomingCSN(csn crypto.CombinedSequence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incomingCSN.Validate(csn)
}

// SetPermanentKey records the peer's permanent public key and precomputes
// the permanent shared key against ourPrivate.
func (c *common) SetPermanentKey(peerPublic [crypto.KeySize]byte, ourPrivate [crypto.KeySize]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permanentPublicKey = peerPublic
	c.permanentKeySet = true
	c.permanentShared = crypto.Precompute(ourPrivate, peerPublic)
	c.permanentCached = true
}

// PermanentKey returns the peer's known permanent public key.
func (c *common) PermanentKey() (key [crypto.KeySize]byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permanentPublicKey, c.permanentKeySet
}

// PermanentShared returns the precomputed permanent-key shared secret.
func (c *common) PermanentShared() (crypto.SharedKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permanentShared, c.permanentCached
}

// SetSessionKey records the peer's ephemeral session public key and
// precomputes the session shared key against ourSessionPrivate.
func (c *common) SetSessionKey(peerPublic [crypto.KeySize]byte, ourSessionPrivate [crypto.KeySize]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionPublicKey = peerPublic
	c.sessionSet = true
	c.sessionShared = crypto.Precompute(ourSessionPrivate, peerPublic)
	c.sessionCached = true
}

// SessionKey returns the peer's known session public key.
func (c *common) SessionKey() (key [crypto.KeySize]byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionPublicKey, c.sessionSet
}

// SessionShared returns the precomputed session-key shared secret.
func (c *common) SessionShared() (crypto.SharedKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionShared, c.sessionCached
}

// Initiator is the handshake state the responder keeps for the initiator
// it is pairing with. There is at most one live initiator at a time, bound
// to crypto.InitiatorAddress.
type Initiator struct {
	common
	state atomic.Int32
}

// NewInitiator creates initiator peer state in InitiatorStateNew.
func NewInitiator() *Initiator {
	i := &Initiator{}
	i.common.address = crypto.InitiatorAddress
	i.state.Store(int32(InitiatorStateNew))
	return i
}

// State returns the current handshake substate.
func (i *Initiator) State() InitiatorState {
	return InitiatorState(i.state.Load())
}

// TransitionTo advances the substate, rejecting any transition that is not
// a strict single-step advance (NEW -> KEY_RECEIVED -> AUTH_RECEIVED).
func (i *Initiator) TransitionTo(next InitiatorState) error {
	current := i.State()
	if next != current+1 {
		return &ErrInvalidTransition{Role: "initiator", From: current, To: next}
	}
	i.state.Store(int32(next))
	return nil
}

// Responder is the handshake state the initiator keeps for one responder,
// keyed by its assigned address in [0x02, 0xff].
type Responder struct {
	common
	state atomic.Int32
}

// NewResponder creates responder peer state in ResponderStateNew, bound to
// the given responder address.
func NewResponder(address crypto.Address) *Responder {
	r := &Responder{}
	r.common.address = address
	r.state.Store(int32(ResponderStateNew))
	return r
}

// State returns the current handshake substate.
func (r *Responder) State() ResponderState {
	return ResponderState(r.state.Load())
}

// TransitionTo advances the substate, rejecting any transition that is not
// a strict single-step advance.
func (r *Responder) TransitionTo(next ResponderState) error {
	current := r.State()
	if next != current+1 {
		return &ErrInvalidTransition{Role: "responder", From: current, To: next}
	}
	r.state.Store(int32(next))
	return nil
}
