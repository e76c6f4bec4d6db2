package relayserver

import (
	"context"
	"fmt"
	"time"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/message"
	"github.com/saltyrtc/saltyrtc-go/internal/metrics"
	"github.com/saltyrtc/saltyrtc-go/internal/signaling"
	"github.com/saltyrtc/saltyrtc-go/internal/transport"
)

// serverConn is the server's own bookkeeping for one client connection: its
// per-connection ephemeral session key, the client<->server cookie pair and
// CSNs, and (once known) the client's permanent public key. It never sees a
// peer-session or peer-permanent key — those belong to the two clients, not
// the relay.
type serverConn struct {
	conn transport.Connection

	pathKey      string
	initiatorKey [crypto.KeySize]byte

	sessionKey crypto.KeyPair

	clientKey [crypto.KeySize]byte
	shared    crypto.SharedKey

	ourCookie crypto.Cookie
	cookies   crypto.CookiePair

	outCSN     crypto.CombinedSequence
	csnStarted bool
	inCSN      crypto.IncomingTracker

	address     crypto.Address
	isInitiator bool
}

func newServerConn(conn transport.Connection, pathKey string, initiatorKey [crypto.KeySize]byte) *serverConn {
	return &serverConn{conn: conn, pathKey: pathKey, initiatorKey: initiatorKey}
}

// parseFrame splits a received message into its nonce prefix and payload.
func parseFrame(data []byte) (crypto.Nonce, []byte, error) {
	nonce, err := crypto.DecodeNonce(data)
	if err != nil {
		return crypto.Nonce{}, nil, err
	}
	return nonce, data[crypto.NonceSize:], nil
}

func (c *serverConn) nextCSN() (crypto.CombinedSequence, error) {
	if !c.csnStarted {
		csn, err := crypto.NewCombinedSequence()
		if err != nil {
			return crypto.CombinedSequence{}, err
		}
		c.outCSN = csn
		c.csnStarted = true
	}
	return c.outCSN.Next()
}

// sendFrame frames and transmits plaintext to destination, encrypting it
// under the client<->server shared key unless cleartext is true (only
// server-hello ever is).
func (c *serverConn) sendFrame(ctx context.Context, destination crypto.Address, plaintext []byte, cleartext bool) error {
	csn, err := c.nextCSN()
	if err != nil {
		return fmt.Errorf("relayserver: %w", err)
	}
	nonce := crypto.NewNonce(c.ourCookie, crypto.ServerAddress, destination, csn)
	nonceBytes := nonce.Encode()

	var out []byte
	if cleartext {
		out = append(nonceBytes[:], plaintext...)
	} else {
		ciphertext := c.shared.Seal(nonceBytes, plaintext)
		out = append(nonceBytes[:], ciphertext...)
	}
	return c.conn.Send(ctx, out)
}

// sendPush encrypts and sends a server-push message to this connection
// using its already-established shared key, for use after the handshake
// completes (new-responder, new-initiator, disconnected, send-error).
func (c *serverConn) sendPush(ctx context.Context, v interface{}) error {
	payload, err := message.Encode(v)
	if err != nil {
		return err
	}
	return c.sendFrame(ctx, c.address, payload, false)
}

// handshakeAndServe runs the client<->server handshake for c, registers it
// with p on success, and relays frames until the connection ends.
func (c *serverConn) handshakeAndServe(ctx context.Context, s *Server, p *path) error {
	start := time.Now()

	sessionKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	c.sessionKey = sessionKey

	cookie, err := crypto.NewCookie()
	if err != nil {
		return err
	}
	c.ourCookie = cookie

	hello := message.NewServerHello(sessionKey.Public)
	payload, err := message.Encode(hello)
	if err != nil {
		return err
	}
	if err := c.sendFrame(ctx, crypto.ServerAddress, payload, true); err != nil {
		return err
	}

	if err := c.runHandshake(ctx); err != nil {
		s.cfg.Metrics.RecordHandshakeError("handshake_failed")
		c.conn.Close(int(signaling.CloseProtocolError), err.Error())
		return err
	}

	role := roleLabel(c.isInitiator)

	if c.isInitiator {
		prev := p.registerInitiator(c)
		if prev != nil {
			prev.conn.Close(int(signaling.CloseDroppedByInitiator), "superseded by a new initiator connection")
			p.removeInitiator(prev)
			s.cfg.Metrics.RecordDisconnect(role)
		}
		s.broadcastNewInitiator(ctx, p)
	} else {
		addr, err := p.registerResponder(c)
		if err != nil {
			s.cfg.Metrics.RecordHandshakeError("path_full")
			c.conn.Close(int(signaling.ClosePathFull), err.Error())
			return err
		}
		s.notifyNewResponder(ctx, p, addr)
	}

	if err := c.sendServerAuth(ctx, s, p); err != nil {
		s.cfg.Metrics.RecordHandshakeError("server_auth_failed")
		c.conn.Close(int(signaling.CloseProtocolError), err.Error())
		return err
	}

	s.cfg.Metrics.RecordConnect(role)
	s.cfg.Metrics.RecordHandshake(role, time.Since(start).Seconds())

	err = c.relayLoop(ctx, p, s.cfg.Metrics)

	s.cfg.Metrics.RecordDisconnect(role)
	if c.isInitiator {
		p.removeInitiator(c)
	} else {
		p.removeResponder(c.address)
		s.cfg.Metrics.RecordResponderDrop("disconnected")
		s.notifyDisconnected(ctx, p, c.address)
	}
	return err
}

func roleLabel(isInitiator bool) string {
	if isInitiator {
		return "initiator"
	}
	return "responder"
}

// runHandshake receives client-hello (responder only) and client-auth,
// determining the client's role and permanent key and establishing the
// shared key and cookie pair.
func (c *serverConn) runHandshake(ctx context.Context) error {
	data, err := c.conn.Receive(ctx)
	if err != nil {
		return err
	}
	nonce, rest, err := parseFrame(data)
	if err != nil {
		return err
	}
	if nonce.Cookie == c.ourCookie {
		return fmt.Errorf("relayserver: client echoed our own cookie back to us")
	}
	c.cookies = crypto.CookiePair{Ours: c.ourCookie, Theirs: nonce.Cookie}
	if err := c.inCSN.Validate(nonce.CSN()); err != nil {
		return err
	}

	authNonce := nonce
	authPayload := rest

	if typ, err := message.PeekType(rest); err == nil && typ == message.TypeClientHello {
		hello, err := message.DecodeClientHello(rest)
		if err != nil {
			return err
		}
		clientKey, err := crypto.ParseKey("client-hello.key", hello.Key)
		if err != nil {
			return err
		}
		c.clientKey = clientKey
		c.isInitiator = false
		c.shared = crypto.Precompute(c.sessionKey.Private, clientKey)

		data, err = c.conn.Receive(ctx)
		if err != nil {
			return err
		}
		nonce2, rest2, err := parseFrame(data)
		if err != nil {
			return err
		}
		if nonce2.Cookie != c.cookies.Theirs {
			return fmt.Errorf("relayserver: cookie changed between client-hello and client-auth")
		}
		if err := c.inCSN.Validate(nonce2.CSN()); err != nil {
			return err
		}
		authNonce = nonce2
		authPayload = rest2
	} else {
		c.isInitiator = true
		c.clientKey = c.initiatorKey
		c.shared = crypto.Precompute(c.sessionKey.Private, c.initiatorKey)
	}

	plaintext, err := c.shared.Open(authNonce.Encode(), authPayload)
	if err != nil {
		return fmt.Errorf("relayserver: could not decrypt client-auth (wrong permanent key for this path?): %w", err)
	}
	auth, err := message.DecodeClientAuth(plaintext)
	if err != nil {
		return err
	}
	if string(auth.YourCookie) != string(c.ourCookie[:]) {
		return fmt.Errorf("relayserver: client-auth your_cookie does not match")
	}
	return nil
}

func (c *serverConn) sendServerAuth(ctx context.Context, s *Server, p *path) error {
	auth := &message.ServerAuth{
		Type:       message.TypeServerAuth,
		YourCookie: c.cookies.Theirs[:],
	}
	if c.isInitiator {
		addrs := p.responderAddresses()
		ids := make([]uint8, len(addrs))
		for i, a := range addrs {
			ids[i] = uint8(a)
		}
		if len(ids) > 0 {
			auth.Responders = ids
		}
	} else {
		connected := p.hasInitiator()
		auth.InitiatorConnected = &connected
	}

	csn, err := c.nextCSN()
	if err != nil {
		return fmt.Errorf("relayserver: %w", err)
	}
	nonce := crypto.NewNonce(c.ourCookie, crypto.ServerAddress, c.address, csn)
	nonceBytes := nonce.Encode()

	if s.cfg.LongTermKey != nil {
		vouch := append(append([]byte{}, c.sessionKey.Public[:]...), c.clientKey[:]...)
		longTermShared := crypto.Precompute(s.cfg.LongTermKey.Private, c.clientKey)
		auth.SignedKeys = longTermShared.Seal(nonceBytes, vouch)
	}

	payload, err := message.Encode(auth)
	if err != nil {
		return err
	}
	ciphertext := c.shared.Seal(nonceBytes, payload)
	out := append(nonceBytes[:], ciphertext...)
	return c.conn.Send(ctx, out)
}

// relayLoop runs once the handshake is complete: frames addressed to the
// server (drop-responder) are decrypted and handled, everything else is
// relayed verbatim by destination address.
func (c *serverConn) relayLoop(ctx context.Context, p *path, m *metrics.Metrics) error {
	for {
		data, err := c.conn.Receive(ctx)
		if err != nil {
			return err
		}
		nonce, rest, err := parseFrame(data)
		if err != nil {
			return err
		}
		if nonce.Source != c.address {
			return fmt.Errorf("relayserver: frame source %s does not match connection address %s", nonce.Source, c.address)
		}

		if nonce.Destination == crypto.ServerAddress {
			if err := c.inCSN.Validate(nonce.CSN()); err != nil {
				return err
			}
			plaintext, err := c.shared.Open(nonce.Encode(), rest)
			if err != nil {
				return err
			}
			c.handleServerAddressedFrame(ctx, p, plaintext, m)
			continue
		}

		dest, ok := p.lookup(nonce.Destination)
		if !ok {
			m.RecordSendError()
			nb := nonce.Encode()
			sendErr := &message.SendError{Type: message.TypeSendError, ID: append([]byte{}, nb[16:24]...)}
			_ = c.sendPush(ctx, sendErr)
			continue
		}
		m.RecordRelayedFrame(len(data))
		_ = dest.conn.Send(ctx, data)
	}
}

func (c *serverConn) handleServerAddressedFrame(ctx context.Context, p *path, plaintext []byte, m *metrics.Metrics) {
	typ, err := message.PeekType(plaintext)
	if err != nil {
		return
	}
	switch typ {
	case message.TypeDropResponder:
		drop, err := message.DecodeDropResponder(plaintext)
		if err != nil {
			return
		}
		addr := crypto.Address(drop.ID)
		if rc, ok := p.lookup(addr); ok {
			rc.conn.Close(int(signaling.CloseDroppedByInitiator), "dropped by initiator")
			p.removeResponder(addr)
			m.RecordResponderDrop("dropped_by_initiator")
		}
	}
}
