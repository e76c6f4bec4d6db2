package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrSequenceExhausted is fatal: both the 16-bit overflow and the 32-bit
// sequence counter of a CombinedSequence have wrapped. The connection that
// hits this must be reset with INTERNAL_ERROR.
var ErrSequenceExhausted = errors.New("combined sequence number exhausted")

// CombinedSequence is the 48-bit (overflow:16 || sequence:32) counter that
// orders packets per (peer, direction). A fresh value starts at a random
// 32-bit sequence with overflow 0, per spec.
type CombinedSequence struct {
	overflow uint16
	sequence uint32
	started  bool
}

// NewCombinedSequence draws a fresh, randomly seeded CSN.
func NewCombinedSequence() (CombinedSequence, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return CombinedSequence{}, fmt.Errorf("generate initial sequence: %w", err)
	}
	return CombinedSequence{sequence: binary.BigEndian.Uint32(buf[:])}, nil
}

// Split returns the (overflow, sequence) pair for framing into a Nonce.
func (c CombinedSequence) Split() (overflow uint16, sequence uint32) {
	return c.overflow, c.sequence
}

// Next post-increments the counter and returns the value to place on the
// next outgoing frame. It must be called exactly once per outgoing frame to
// that peer.
func (c *CombinedSequence) Next() (CombinedSequence, error) {
	if !c.started {
		c.started = true
		return *c, nil
	}
	if c.sequence == 0xffffffff {
		if c.overflow == 0xffff {
			return CombinedSequence{}, ErrSequenceExhausted
		}
		c.overflow++
		c.sequence = 0
	} else {
		c.sequence++
	}
	return *c, nil
}

// value packs the pair into a single uint64 for strict ordering comparisons.
func (c CombinedSequence) value() uint64 {
	return uint64(c.overflow)<<32 | uint64(c.sequence)
}

// Less reports whether c sorts strictly before other, lexicographically on
// (overflow, sequence) as required for inbound replay/ordering checks.
func (c CombinedSequence) Less(other CombinedSequence) bool {
	return c.value() < other.value()
}

// Equal reports whether the two CSNs carry the same (overflow, sequence).
func (c CombinedSequence) Equal(other CombinedSequence) bool {
	return c.value() == other.value()
}

// IncomingTracker enforces strict CSN advance on inbound frames from a
// single peer, per spec.md §4.1 ("Incoming CSN check").
type IncomingTracker struct {
	last CombinedSequence
	seen bool
}

// Validate checks that csn strictly follows the last one accepted for this
// peer, recording it as the new high-water mark on success.
func (t *IncomingTracker) Validate(csn CombinedSequence) error {
	if !t.seen {
		t.seen = true
		t.last = csn
		return nil
	}
	if !t.last.Less(csn) {
		return fmt.Errorf("%w: sequence did not strictly increase", ErrReplayedSequence)
	}
	t.last = csn
	return nil
}

// ErrReplayedSequence signals a CSN regression or replay on an inbound frame.
var ErrReplayedSequence = errors.New("combined sequence number did not advance")
