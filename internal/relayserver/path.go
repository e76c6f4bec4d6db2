package relayserver

import (
	"errors"
	"sync"

	"github.com/saltyrtc/saltyrtc-go/internal/control"
	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

// ErrPathFull is returned when a path already has 254 responders.
var ErrPathFull = errors.New("relayserver: path has no free responder address")

// path tracks the clients registered under one initiator permanent key:
// at most one initiator, and up to 254 responders keyed by address.
type path struct {
	key string

	mu         sync.Mutex
	initiator  *serverConn
	responders map[crypto.Address]*serverConn
}

func newPath(key string) *path {
	return &path{
		key:        key,
		responders: make(map[crypto.Address]*serverConn),
	}
}

// registerInitiator installs c as the path's initiator, replacing and
// returning any previous occupant (a reconnecting initiator displaces the
// old connection; the caller closes that one with DROPPED_BY_INITIATOR).
func (p *path) registerInitiator(c *serverConn) *serverConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.initiator
	p.initiator = c
	c.address = crypto.InitiatorAddress
	return prev
}

// registerResponder allocates the lowest free responder address for c.
func (p *path) registerResponder(c *serverConn) (crypto.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.responders) >= 0xff-0x02+1 {
		return 0, ErrPathFull
	}
	for addr := crypto.Address(0x02); ; addr++ {
		if _, taken := p.responders[addr]; !taken {
			p.responders[addr] = c
			c.address = addr
			return addr, nil
		}
		if addr == 0xff {
			return 0, ErrPathFull
		}
	}
}

func (p *path) removeInitiator(c *serverConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initiator == c {
		p.initiator = nil
	}
}

func (p *path) removeResponder(addr crypto.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.responders, addr)
}

// lookup returns the connection registered at addr, if any.
func (p *path) lookup(addr crypto.Address) (*serverConn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if addr == crypto.InitiatorAddress {
		if p.initiator == nil {
			return nil, false
		}
		return p.initiator, true
	}
	c, ok := p.responders[addr]
	return c, ok
}

// responderAddresses returns the addresses of every currently registered
// responder, for server-pushed listings and broadcast notifications.
func (p *path) responderAddresses() []crypto.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]crypto.Address, 0, len(p.responders))
	for addr := range p.responders {
		out = append(out, addr)
	}
	return out
}

// initiatorConn returns the currently registered initiator connection, if
// any, for server-push delivery.
func (p *path) initiatorConn() *serverConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initiator
}

// responderConns returns the currently registered responder connections,
// for broadcasting new-initiator.
func (p *path) responderConns() []*serverConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*serverConn, 0, len(p.responders))
	for _, c := range p.responders {
		out = append(out, c)
	}
	return out
}

func (p *path) hasInitiator() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initiator != nil
}

func (p *path) responderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.responders)
}

func (p *path) empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initiator == nil && len(p.responders) == 0
}

func (p *path) status() control.PathStatus {
	return control.PathStatus{
		Path:           shortPath(p.key),
		HasInitiator:   p.hasInitiator(),
		ResponderCount: p.responderCount(),
	}
}
