package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/message"
	"github.com/saltyrtc/saltyrtc-go/internal/transport"
	"github.com/vmihailenco/msgpack/v5"
)

// roleHandler captures the behavior that differs between the initiator and
// responder roles: path derivation, the client-hello step (responder
// only), post-server-auth address validation, and peer-handshake framing.
// It is implemented by *initiatorRole and *responderRole.
type roleHandler interface {
	role() Role
	path() string
	sendClientHello(s *Signaling) error
	afterServerAuth(s *Signaling, msg *message.ServerAuth) error
	initPeerHandshake(s *Signaling) error
	handlePeerFrame(s *Signaling, nonce crypto.Nonce, ciphertext []byte) error
	handleServerPush(s *Signaling, typ message.Type, payload []byte) error
}

// peerRecord is the subset of peer.Initiator / peer.Responder that the
// shared framing code needs: both types satisfy it structurally via their
// embedded common fields.
type peerRecord interface {
	Address() crypto.Address
	Cookies() (crypto.CookiePair, bool)
	SetCookies(crypto.CookiePair)
	NextOutgoingCSN() (crypto.CombinedSequence, error)
	ValidateIncomingCSN(crypto.CombinedSequence) error
	PermanentKey() ([crypto.KeySize]byte, bool)
	SetPermanentKey(peerPublic, ourPrivate [crypto.KeySize]byte)
	PermanentShared() (crypto.SharedKey, bool)
	SessionKey() ([crypto.KeySize]byte, bool)
	SetSessionKey(peerPublic, ourPrivate [crypto.KeySize]byte)
	SessionShared() (crypto.SharedKey, bool)
}

// Signaling is the shared state machine both roles run: the two chained
// handshakes, CSN/cookie enforcement, envelope selection and post-handshake
// task dispatch. The mutex guards the instance's own fields: state
// transitions and the server-side cookies, CSNs and envelopes. Peer-side
// cookies, CSNs and keys live in the peer records, which guard them with
// their own mutex; peer envelopes are sealed and opened outside s.mu.
type Signaling struct {
	mu sync.Mutex

	logger *slog.Logger
	events EventHandlers
	conn   transport.Connection

	state  State
	server ServerSubState
	role   roleHandler

	permanentKey crypto.KeyPair

	expectedServerKey *[crypto.KeySize]byte
	serverPublicKey   [crypto.KeySize]byte
	serverShared      crypto.SharedKey
	serverSharedSet   bool

	ourAddress crypto.Address

	serverCookies      crypto.CookiePair
	serverCookiesSet   bool
	serverOutgoingCSN  crypto.CombinedSequence
	serverCSNStarted   bool
	serverIncomingCSN  crypto.IncomingTracker

	task  Task
	tasks []Task

	activePeer        peerRecord
	activePeerAddress crypto.Address
}

// setActivePeer records the peer this role will exchange TASK-state
// messages with, once its peer handshake reaches AUTH_RECEIVED.
func (s *Signaling) setActivePeer(rec peerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePeer = rec
	s.activePeerAddress = rec.Address()
}

// newCore builds the shared state, used by NewInitiator and NewResponder.
func newCore(permanentKey crypto.KeyPair, expectedServerKey *[crypto.KeySize]byte, tasks []Task, logger *slog.Logger, events EventHandlers) *Signaling {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signaling{
		logger:            logger,
		events:            events,
		state:             StateNew,
		server:            ServerSubStateNew,
		permanentKey:      permanentKey,
		expectedServerKey: expectedServerKey,
		tasks:             tasks,
	}
}

// State returns the current global signaling state.
func (s *Signaling) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path returns the URL path this instance's role dials/expects, the
// lowercase hex of a permanent public key per spec.md §6.
func (s *Signaling) Path() string {
	return s.role.path()
}

func (s *Signaling) setState(next State) {
	s.state = next
	s.events.stateChanged(next)
}

// Run drives the handshake and post-handshake loop over conn until the
// connection closes or ctx is canceled. It blocks; callers typically run it
// in its own goroutine.
func (s *Signaling) Run(ctx context.Context, conn transport.Connection) error {
	s.mu.Lock()
	s.conn = conn
	s.setState(StateServerHandshake)
	s.mu.Unlock()

	for {
		data, err := s.conn.Receive(ctx)
		if err != nil {
			s.mu.Lock()
			wasClosing := s.state == StateClosing || s.state == StateClosed
			s.mu.Unlock()
			if wasClosing {
				return nil
			}
			if closeErr, ok := err.(*transport.CloseError); ok {
				s.handleTransportClose(CloseCode(closeErr.Code), closeErr.Reason)
				return nil
			}
			s.events.connectionLost()
			return &ConnectionError{Reason: "receive failed", Err: err}
		}

		if err := s.handleFrame(data); err != nil {
			s.resetConnection(closeCodeFor(err), err.Error())
			return err
		}
	}
}

func (s *Signaling) handleTransportClose(code CloseCode, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == CloseHandover {
		// Handover to a data-channel-backed signaling keeps the session
		// alive; it is not a terminal close, per spec.md §9 note 3.
		return
	}
	s.clearSessionLocked()
	s.setState(StateClosed)
	s.events.closed(code, reason)
}

func (s *Signaling) handleFrame(data []byte) error {
	nonce, rest, err := parseFrame(data)
	if err != nil {
		return &ProtocolError{Reason: err.Error()}
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateServerHandshake:
		return s.handleServerHandshakeFrame(nonce, rest)
	case StatePeerHandshake:
		if nonce.Source == crypto.ServerAddress {
			return s.handleServerPushFrame(nonce, rest)
		}
		return s.role.handlePeerFrame(s, nonce, rest)
	case StateTask:
		return s.handleTaskFrame(nonce, rest)
	default:
		return &ProtocolError{Reason: fmt.Sprintf("frame received in state %s", state)}
	}
}

// parseFrame splits nonce[24] || rest off the wire frame.
func parseFrame(data []byte) (crypto.Nonce, []byte, error) {
	if len(data) < crypto.NonceSize {
		return crypto.Nonce{}, nil, fmt.Errorf("frame shorter than nonce (%d bytes)", len(data))
	}
	nonce, err := crypto.DecodeNonce(data[:crypto.NonceSize])
	if err != nil {
		return crypto.Nonce{}, nil, err
	}
	return nonce, data[crypto.NonceSize:], nil
}

// --- server handshake ---

func (s *Signaling) handleServerHandshakeFrame(nonce crypto.Nonce, rest []byte) error {
	s.mu.Lock()
	sub := s.server
	s.mu.Unlock()

	switch sub {
	case ServerSubStateNew:
		return s.handleServerHello(nonce, rest)
	case ServerSubStateHelloSent, ServerSubStateAuthSent:
		return s.handleServerAuth(nonce, rest)
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected server-handshake frame in sub-state %s", sub)}
	}
}

func (s *Signaling) handleServerHello(nonce crypto.Nonce, plaintext []byte) error {
	if nonce.Source != crypto.ServerAddress {
		return &ProtocolError{Reason: "server-hello from non-server address"}
	}
	hello, err := message.DecodeServerHello(plaintext)
	if err != nil {
		return err
	}
	serverKey, err := crypto.ParseKey("server-hello.key", hello.Key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.serverPublicKey = serverKey
	s.serverShared = crypto.Precompute(s.permanentKey.Private, serverKey)
	s.serverSharedSet = true

	pair, err := crypto.NewCookiePair(nonce.Cookie)
	if err != nil {
		s.mu.Unlock()
		return &InternalError{Reason: err.Error()}
	}
	s.serverCookies = pair
	s.serverCookiesSet = true
	if err := s.serverIncomingCSN.Validate(nonce.CSN()); err != nil {
		s.mu.Unlock()
		return &ProtocolError{Reason: err.Error()}
	}
	role := s.role
	s.mu.Unlock()

	if err := role.sendClientHello(s); err != nil {
		return err
	}
	return s.sendClientAuth()
}

func (s *Signaling) sendClientAuth() error {
	s.mu.Lock()
	cookie := s.serverCookies.Theirs
	s.server = ServerSubStateAuthSent
	s.mu.Unlock()

	auth := &message.ClientAuth{
		Type:         message.TypeClientAuth,
		YourCookie:   cookie[:],
		Subprotocols: []string{transport.Subprotocol},
		PingInterval: 20,
	}
	payload, err := message.Encode(auth)
	if err != nil {
		return err
	}
	return s.sendServerFrame(payload)
}

func (s *Signaling) handleServerAuth(nonce crypto.Nonce, ciphertext []byte) error {
	s.mu.Lock()
	if s.server != ServerSubStateAuthSent {
		s.mu.Unlock()
		return &ProtocolError{Reason: "server-auth received before client-auth was sent"}
	}
	if err := s.serverIncomingCSN.Validate(nonce.CSN()); err != nil {
		s.mu.Unlock()
		return &ProtocolError{Reason: err.Error()}
	}
	if nonce.Cookie != s.serverCookies.Theirs {
		s.mu.Unlock()
		return &ProtocolError{Reason: "server-auth nonce cookie mismatch"}
	}
	plaintext, err := s.serverShared.Open(nonce.Encode(), ciphertext)
	s.mu.Unlock()
	if err != nil {
		return &ProtocolError{Reason: err.Error()}
	}

	auth, err := message.DecodeServerAuth(plaintext)
	if err != nil {
		return err
	}

	s.mu.Lock()
	ourCookie := s.serverCookies.Ours
	s.mu.Unlock()
	if string(auth.YourCookie) != string(ourCookie[:]) {
		return &ProtocolError{Reason: "server-auth your_cookie does not match"}
	}

	if s.expectedServerKey != nil {
		if err := s.verifySignedKeys(nonce, auth.SignedKeys); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.ourAddress = nonce.Destination
	role := s.role
	s.mu.Unlock()

	if err := role.afterServerAuth(s, auth); err != nil {
		return err
	}

	s.mu.Lock()
	s.server = ServerSubStateDone
	s.setState(StatePeerHandshake)
	s.mu.Unlock()

	return role.initPeerHandshake(s)
}

// verifySignedKeys authenticates the server's pinned long-term key against
// box(server_session_pk || our_permanent_pk), sealed under the same nonce
// as the server-auth message.
func (s *Signaling) verifySignedKeys(nonce crypto.Nonce, signedKeys []byte) error {
	if len(signedKeys) == 0 {
		return &ProtocolError{Reason: "expected_server_key is configured but server-auth carried no signed_keys"}
	}
	shared := crypto.Precompute(s.permanentKey.Private, *s.expectedServerKey)
	plaintext, err := shared.Open(nonce.Encode(), signedKeys)
	if err != nil {
		return &ProtocolError{Reason: "signed_keys verification failed: " + err.Error()}
	}
	if len(plaintext) != 2*crypto.KeySize {
		return &ProtocolError{Reason: "signed_keys payload has wrong length"}
	}
	var ourKey [crypto.KeySize]byte
	copy(ourKey[:], plaintext[crypto.KeySize:])
	if ourKey != s.permanentKey.Public {
		return &ProtocolError{Reason: "signed_keys does not vouch for our permanent key"}
	}
	return nil
}

// --- outgoing framing ---

func (s *Signaling) sendServerFrame(plaintext []byte) error {
	s.mu.Lock()
	csn, err := s.nextServerCSN()
	if err != nil {
		s.mu.Unlock()
		return &InternalError{Reason: err.Error()}
	}
	cookie := s.serverCookies.Ours
	nonce := crypto.NewNonce(cookie, s.ourAddressOrZero(), crypto.ServerAddress, csn)

	var out []byte
	if s.server == ServerSubStateNew || !s.serverSharedSet {
		nonceBytes := nonce.Encode()
		out = append(nonceBytes[:], plaintext...)
	} else {
		nonceBytes := nonce.Encode()
		ciphertext := s.serverShared.Seal(nonceBytes, plaintext)
		out = append(nonceBytes[:], ciphertext...)
	}
	conn := s.conn
	s.mu.Unlock()

	return conn.Send(context.Background(), out)
}

// sendServerFrameCleartext sends a server-handshake frame with no envelope
// at all. client-hello must use this regardless of our own sub-state: the
// server cannot have a shared key for a responder's permanent key before
// client-hello reveals it, so the frame has to be legible without one.
func (s *Signaling) sendServerFrameCleartext(plaintext []byte) error {
	s.mu.Lock()
	csn, err := s.nextServerCSN()
	if err != nil {
		s.mu.Unlock()
		return &InternalError{Reason: err.Error()}
	}
	cookie := s.serverCookies.Ours
	nonce := crypto.NewNonce(cookie, s.ourAddressOrZero(), crypto.ServerAddress, csn)
	nonceBytes := nonce.Encode()
	out := append(nonceBytes[:], plaintext...)
	conn := s.conn
	s.mu.Unlock()

	return conn.Send(context.Background(), out)
}

func (s *Signaling) nextServerCSN() (crypto.CombinedSequence, error) {
	if !s.serverCSNStarted {
		csn, err := crypto.NewCombinedSequence()
		if err != nil {
			return crypto.CombinedSequence{}, err
		}
		s.serverOutgoingCSN = csn
		s.serverCSNStarted = true
	}
	return s.serverOutgoingCSN.Next()
}

func (s *Signaling) ourAddressOrZero() crypto.Address {
	if s.ourAddress == 0 && s.role.role() == RoleInitiator {
		return 0
	}
	return s.ourAddress
}

// --- post-handshake (TASK) ---

func (s *Signaling) handleTaskFrame(nonce crypto.Nonce, ciphertext []byte) error {
	if nonce.Source == crypto.ServerAddress {
		return s.handleServerPushFrame(nonce, ciphertext)
	}
	return s.role.handlePeerFrame(s, nonce, ciphertext)
}

func (s *Signaling) handleServerPushFrame(nonce crypto.Nonce, ciphertext []byte) error {
	s.mu.Lock()
	if err := s.serverIncomingCSN.Validate(nonce.CSN()); err != nil {
		s.mu.Unlock()
		return &ProtocolError{Reason: err.Error()}
	}
	plaintext, err := s.serverShared.Open(nonce.Encode(), ciphertext)
	s.mu.Unlock()
	if err != nil {
		return &ProtocolError{Reason: err.Error()}
	}

	typ, err := message.PeekType(plaintext)
	if err != nil {
		s.logger.Warn("ignoring malformed server push", "error", err)
		return nil
	}
	switch typ {
	case message.TypeSendError, message.TypeDisconnected, message.TypeNewInitiator, message.TypeNewResponder:
		return s.role.handleServerPush(s, typ, plaintext)
	default:
		s.logger.Debug("ignoring server message", "type", typ)
		return nil
	}
}

func (s *Signaling) sendTaskMessage(msgType string, payload map[string]interface{}) error {
	s.mu.Lock()
	peer := s.activePeer
	s.mu.Unlock()
	if peer == nil {
		return &InternalError{Reason: "no active peer to send a task message to"}
	}
	if _, ok := peer.SessionShared(); !ok {
		return &InternalError{Reason: "no session key established"}
	}

	merged := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["type"] = msgType
	plaintext, err := msgpack.Marshal(merged)
	if err != nil {
		return &message.SerializationError{Op: "encode task message", Reason: err.Error()}
	}
	return s.sendPeerSessionFrame(peer, plaintext)
}

// --- reset & close ---

func (s *Signaling) resetConnection(code CloseCode, reason string) {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.setState(StateClosing)
	conn := s.conn
	task := s.task
	s.mu.Unlock()

	if conn != nil {
		conn.Close(int(code), reason)
	}
	if task != nil {
		task.Close(reason)
	}

	s.mu.Lock()
	s.clearSessionLocked()
	s.setState(StateClosed)
	s.mu.Unlock()

	s.events.closed(code, reason)
}

func (s *Signaling) clearSessionLocked() {
	s.activePeer = nil
	s.task = nil
}
