// Package relayserver implements a minimal SaltyRTC relay server: the
// untrusted party the signaling core talks to. It never decrypts a peer
// frame (destination != server); it only runs its own cleartext-then-boxed
// handshake with each client and relays everything else by address.
package relayserver

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/saltyrtc/saltyrtc-go/internal/control"
	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/message"
	"github.com/saltyrtc/saltyrtc-go/internal/metrics"
	"github.com/saltyrtc/saltyrtc-go/internal/recovery"
	"github.com/saltyrtc/saltyrtc-go/internal/signaling"
	"github.com/saltyrtc/saltyrtc-go/internal/transport"
)

// Config configures a Server.
type Config struct {
	// LongTermKey, if set, lets the server vouch for its identity via the
	// auth message's signed_keys field for clients configured with an
	// expected_server_key. Optional — clients that don't pin a server key
	// never ask for it.
	LongTermKey *crypto.KeyPair

	Logger *slog.Logger

	// Metrics receives connection/handshake/relay counters. Defaults to
	// metrics.Default() if nil.
	Metrics *metrics.Metrics
}

// Server accepts client connections from a transport.Listener and relays
// SaltyRTC frames between the initiator and responders registered at each
// path.
type Server struct {
	cfg Config

	listener transport.Listener
	logger   *slog.Logger

	mu    sync.Mutex
	paths map[string]*path

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a Server that will accept connections from listener.
func NewServer(listener transport.Listener, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	return &Server{
		cfg:      cfg,
		listener: listener,
		logger:   cfg.Logger,
		paths:    make(map[string]*path),
	}
}

// Serve accepts connections until ctx is canceled or the listener closes.
// It blocks; callers typically run it in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	for {
		conn, urlPath, err := s.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.wg.Wait()
				return nil
			}
			return err
		}

		pathKey := normalizePath(urlPath)
		initiatorKey, err := parsePathKey(pathKey)
		if err != nil {
			conn.Close(int(signaling.CloseProtocolError), "path is not a valid hex permanent key")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer recovery.RecoverWithLog(s.logger, "relayserver.connection")
			p := s.pathFor(pathKey)
			s.cfg.Metrics.SetPathsActive(s.PathCount())
			c := newServerConn(conn, pathKey, initiatorKey)
			if err := c.handshakeAndServe(ctx, s, p); err != nil {
				s.logger.Debug("relayserver: connection ended", "path", shortPath(pathKey), "error", err)
			}
			s.forgetPathIfEmpty(pathKey)
			s.cfg.Metrics.SetPathsActive(s.PathCount())
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) pathFor(key string) *path {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[key]
	if !ok {
		p = newPath(key)
		s.paths[key] = p
	}
	return p
}

func (s *Server) forgetPathIfEmpty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[key]
	if ok && p.empty() {
		delete(s.paths, key)
	}
}

// PathCount implements control.RelayInfo.
func (s *Server) PathCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// PathStatuses implements control.RelayInfo.
func (s *Server) PathStatuses() []control.PathStatus {
	s.mu.Lock()
	paths := make([]*path, 0, len(s.paths))
	for _, p := range s.paths {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	out := make([]control.PathStatus, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.status())
	}
	return out
}

// broadcastNewInitiator pushes new-initiator to every responder already
// registered on p, after a (re)connecting initiator is registered.
func (s *Server) broadcastNewInitiator(ctx context.Context, p *path) {
	msg := message.NewNewInitiator()
	for _, rc := range p.responderConns() {
		if err := rc.sendPush(ctx, msg); err != nil {
			s.logger.Debug("relayserver: failed to push new-initiator", "error", err)
		}
	}
}

// notifyNewResponder pushes new-responder to the path's initiator, if
// connected, after a responder is registered.
func (s *Server) notifyNewResponder(ctx context.Context, p *path, addr crypto.Address) {
	ic := p.initiatorConn()
	if ic == nil {
		return
	}
	msg := &message.NewResponder{Type: message.TypeNewResponder, ID: uint8(addr)}
	if err := ic.sendPush(ctx, msg); err != nil {
		s.logger.Debug("relayserver: failed to push new-responder", "error", err)
	}
}

// notifyDisconnected pushes disconnected to the path's initiator, if
// connected, after a responder drops off.
func (s *Server) notifyDisconnected(ctx context.Context, p *path, addr crypto.Address) {
	ic := p.initiatorConn()
	if ic == nil {
		return
	}
	msg := &message.Disconnected{Type: message.TypeDisconnected, ID: uint8(addr)}
	if err := ic.sendPush(ctx, msg); err != nil {
		s.logger.Debug("relayserver: failed to push disconnected", "error", err)
	}
}

func normalizePath(urlPath string) string {
	for len(urlPath) > 0 && urlPath[0] == '/' {
		urlPath = urlPath[1:]
	}
	return urlPath
}

func parsePathKey(key string) ([crypto.KeySize]byte, error) {
	var out [crypto.KeySize]byte
	b, err := hex.DecodeString(key)
	if err != nil || len(b) != crypto.KeySize {
		return out, errors.New("relayserver: path must be a 64-character hex public key")
	}
	copy(out[:], b)
	return out, nil
}

func shortPath(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
