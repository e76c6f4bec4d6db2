// Package transport carries SaltyRTC signaling frames over a single duplex
// WebSocket channel between a client and the relay server. SaltyRTC needs
// exactly one ordered, reliable byte channel per client connection — no
// stream multiplexing, so the interfaces here are deliberately flatter than
// a general-purpose transport abstraction.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Subprotocol is the WebSocket subprotocol clients and the server negotiate
// during the handshake, per the signaling-over-WebSocket binding.
const Subprotocol = "saltyrtc-1.0"

// Connection is one client's duplex signaling channel. Send and Receive
// exchange whole binary messages (SaltyRTC never frames partial messages
// across multiple WebSocket messages); Close reports a SaltyRTC close code
// to the peer as the WebSocket close code.
type Connection interface {
	// Send writes one binary message.
	Send(ctx context.Context, data []byte) error

	// Receive blocks for the next binary message. It returns an error
	// (commonly context.Canceled or a *CloseError) once the connection
	// can no longer yield messages.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the connection, reporting code/reason to the peer.
	Close(code int, reason string) error

	// RemoteAddr returns the peer's network address, for logging.
	RemoteAddr() net.Addr
}

// CloseError reports the code and reason a peer (or the local side) closed
// the connection with.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return "transport: connection closed: " + e.Reason
}

// Dialer connects to a relay server as a client.
type Dialer interface {
	// Dial opens a signaling connection to the relay server at addr,
	// identified by path (the lowercase-hex permanent public key of the
	// initiator: an initiator's own key, or for a responder the key of the
	// initiator it pairs with).
	Dial(ctx context.Context, addr string, path string, opts DialOptions) (Connection, error)
}

// Listener accepts incoming signaling connections from clients.
type Listener interface {
	// Accept waits for and returns the next connection. The returned
	// path is the URL path the client dialed, used by the relay server
	// to route the connection to the right signaling path.
	Accept(ctx context.Context) (conn Connection, path string, err error)

	// Addr returns the listener's bound network address.
	Addr() net.Addr

	// Close stops the listener and rejects further connections.
	Close() error
}

// DialOptions configures an outgoing connection.
type DialOptions struct {
	// TLSConfig is the TLS configuration used to dial wss://. If nil, a
	// default config is built from StrictVerify.
	TLSConfig *tls.Config

	// StrictVerify enables certificate chain verification. SaltyRTC's
	// end-to-end encryption does not depend on transport-layer trust, so
	// clients may reasonably pin the server's certificate fingerprint
	// out of band instead and leave this false.
	StrictVerify bool

	// Timeout bounds the WebSocket handshake.
	Timeout time.Duration
}

// ListenOptions configures a listener.
type ListenOptions struct {
	// TLSConfig is the TLS configuration the listener serves with. Nil
	// means plaintext, for use behind a TLS-terminating reverse proxy.
	TLSConfig *tls.Config
}

// DefaultDialOptions returns DialOptions with sensible defaults.
func DefaultDialOptions() DialOptions {
	return DialOptions{Timeout: 30 * time.Second}
}
