package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

// wsReadLimit bounds one signaling message; a TASK message carrying relayed
// SDP/candidates sits well under this.
const wsReadLimit = 16 * 1024 * 1024

// WebSocketDialer dials relay servers over wss://.
type WebSocketDialer struct{}

// NewWebSocketDialer creates a dialer.
func NewWebSocketDialer() *WebSocketDialer { return &WebSocketDialer{} }

// Dial opens a signaling connection at wss://addr/path.
func (d *WebSocketDialer) Dial(ctx context.Context, addr string, path string, opts DialOptions) (Connection, error) {
	wsURL := buildDialURL(addr, path)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: !opts.StrictVerify,
			MinVersion:         tls.VersionTLS12,
		}
	}

	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   opts.Timeout,
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient:   httpClient,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	return &wsConnection{conn: conn, ctx: context.Background()}, nil
}

func buildDialURL(addr, path string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		addr = strings.TrimSuffix(addr, "/")
		return addr + "/" + strings.TrimPrefix(path, "/")
	}
	return "wss://" + addr + "/" + strings.TrimPrefix(path, "/")
}

// WebSocketListener accepts relay-server-side signaling connections.
type WebSocketListener struct {
	server *http.Server
	netLn  net.Listener

	mu      sync.Mutex
	pending chan acceptedConn
	closeCh chan struct{}
	closed  atomic.Bool
}

type acceptedConn struct {
	conn *wsConnection
	path string
}

// ListenWebSocket starts a listener bound to addr, accepting any path; the
// caller inspects the accepted path to route the connection to a
// signaling path (the lowercase-hex permanent public key).
func ListenWebSocket(addr string, opts ListenOptions) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	l := &WebSocketListener{
		netLn:   ln,
		pending: make(chan acceptedConn, 16),
		closeCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)
	l.server = &http.Server{Handler: mux, TLSConfig: opts.TLSConfig}

	go func() {
		if opts.TLSConfig != nil {
			l.server.ServeTLS(ln, "", "")
		} else {
			l.server.Serve(ln)
		}
	}()

	return l, nil
}

func (l *WebSocketListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if l.closed.Load() {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return
	}
	conn.SetReadLimit(wsReadLimit)

	accepted := acceptedConn{
		conn: &wsConnection{conn: conn, ctx: context.Background(), remote: remoteAddr(r)},
		path: strings.TrimPrefix(r.URL.Path, "/"),
	}

	select {
	case l.pending <- accepted:
	case <-l.closeCh:
		conn.Close(websocket.StatusGoingAway, "server closed")
	}
}

func remoteAddr(r *http.Request) net.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return &net.TCPAddr{IP: net.ParseIP(host)}
}

// Accept returns the next connection and the path it was dialed on.
func (l *WebSocketListener) Accept(ctx context.Context) (Connection, string, error) {
	select {
	case a := <-l.pending:
		return a.conn, a.path, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case <-l.closeCh:
		return nil, "", fmt.Errorf("listener closed")
	}
}

// Addr returns the listener's bound address.
func (l *WebSocketListener) Addr() net.Addr {
	return l.netLn.Addr()
}

// Close stops the listener.
func (l *WebSocketListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	close(l.closeCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}

// wsConnection implements Connection over one *websocket.Conn.
type wsConnection struct {
	conn   *websocket.Conn
	ctx    context.Context
	remote net.Addr
	closed atomic.Bool
}

func (c *wsConnection) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("transport: connection closed")
	}
	return c.conn.Write(ctx, websocket.MessageBinary, data)
}

func (c *wsConnection) Receive(ctx context.Context) ([]byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, &CloseError{Code: int(closeErr.Code), Reason: closeErr.Reason}
		}
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("transport: unexpected text message")
	}
	return data, nil
}

func (c *wsConnection) Close(code int, reason string) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close(websocket.StatusCode(code), reason)
}

func (c *wsConnection) RemoteAddr() net.Addr {
	return c.remote
}
