package signaling

import (
	"encoding/hex"
	"log/slog"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/message"
	"github.com/saltyrtc/saltyrtc-go/internal/peer"
)

// responderStep tracks where a responder-role connection is in its single
// peer handshake with the initiator, independent of peer.Initiator's own
// substate (which only models the frames we receive, not the ones we send).
type responderStep int

const (
	responderStepNotStarted responderStep = iota
	responderStepAwaitingKey
	responderStepAwaitingAuth
	responderStepDone
)

// ResponderConfig selects how a responder identifies and trusts the
// initiator it will pair with. Exactly one of the two shapes below is
// valid:
//
//   - Untrusted: InitiatorPublicKey and AuthToken are both set. The
//     responder proves its own identity by sending a token message
//     encrypted with the shared auth token.
//   - Trusted: InitiatorTrustedKey is set alone. The initiator already
//     trusts this responder's permanent key out-of-band, so the token
//     message is skipped.
type ResponderConfig struct {
	InitiatorPublicKey  *[crypto.KeySize]byte
	AuthToken           *crypto.AuthToken
	InitiatorTrustedKey *[crypto.KeySize]byte
}

func (c ResponderConfig) initiatorKey() *[crypto.KeySize]byte {
	if c.InitiatorTrustedKey != nil {
		return c.InitiatorTrustedKey
	}
	return c.InitiatorPublicKey
}

func (c ResponderConfig) trusted() bool {
	return c.InitiatorTrustedKey != nil
}

func (c ResponderConfig) validate() error {
	if c.InitiatorTrustedKey != nil && (c.InitiatorPublicKey != nil || c.AuthToken != nil) {
		return &ErrConfigConflict{Reason: "a responder may be configured with initiator_trusted_key or with initiator_public_key+auth_token, not both"}
	}
	if c.InitiatorTrustedKey == nil {
		if c.InitiatorPublicKey == nil {
			return &ErrConfigConflict{Reason: "missing initiator_public_key or initiator_trusted_key"}
		}
		if c.AuthToken == nil {
			return &ErrConfigConflict{Reason: "initiator_public_key requires an auth_token"}
		}
	}
	return nil
}

type responderRole struct {
	cfg ResponderConfig

	initiator *peer.Initiator

	ourCookie      crypto.Cookie
	sessionKeyPair crypto.KeyPair
	step           responderStep

	initiatorConnected bool
}

// NewResponder constructs a responder-role Signaling instance paired with
// one initiator identified by cfg.
func NewResponder(permanentKey crypto.KeyPair, cfg ResponderConfig, tasks []Task, expectedServerKey *[crypto.KeySize]byte, logger *slog.Logger, events EventHandlers) (*Signaling, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rr := &responderRole{cfg: cfg}
	s := newCore(permanentKey, expectedServerKey, tasks, logger, events)
	s.role = rr
	return s, nil
}

func (rr *responderRole) role() Role { return RoleResponder }

func (rr *responderRole) path() string {
	key := rr.cfg.initiatorKey()
	return hex.EncodeToString(key[:])
}

// sendClientHello is the responder-only step of the client<->server
// handshake: present our permanent public key before the server knows
// which initiator path we belong to.
func (rr *responderRole) sendClientHello(s *Signaling) error {
	s.mu.Lock()
	s.server = ServerSubStateHelloSent
	s.mu.Unlock()
	hello := message.NewClientHello(s.permanentKey.Public)
	payload, err := message.Encode(hello)
	if err != nil {
		return err
	}
	return s.sendServerFrameCleartext(payload)
}

func (rr *responderRole) afterServerAuth(s *Signaling, msg *message.ServerAuth) error {
	if !s.ourAddress.IsResponder() {
		return &ProtocolError{Reason: "server assigned a non-responder address to a responder connection"}
	}
	rr.initiatorConnected = msg.InitiatorConnected != nil && *msg.InitiatorConnected

	rr.initiator = peer.NewInitiator()
	key := rr.cfg.initiatorKey()
	rr.initiator.SetPermanentKey(*key, s.permanentKey.Private)
	return nil
}

func (rr *responderRole) initPeerHandshake(s *Signaling) error {
	if !rr.initiatorConnected {
		s.logger.Debug("responder: initiator not yet connected, waiting for new-initiator push")
		return nil
	}
	return rr.beginHandshake(s)
}

// beginHandshake sends the responder's half of the peer handshake: an
// optional token (untrusted mode) followed by our ephemeral session key.
func (rr *responderRole) beginHandshake(s *Signaling) error {
	cookie, err := crypto.NewCookie()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	rr.ourCookie = cookie

	if !rr.cfg.trusted() {
		token := message.NewToken(s.permanentKey.Public)
		payload, err := message.Encode(token)
		if err != nil {
			return err
		}
		if err := s.sendAuthTokenFrameBootstrap(rr.initiator, rr.ourCookie, *rr.cfg.AuthToken, payload); err != nil {
			return err
		}
	}

	sessionPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	rr.sessionKeyPair = sessionPair

	key := message.NewKey(sessionPair.Public)
	payload, err := message.Encode(key)
	if err != nil {
		return err
	}
	if err := s.sendPeerPermanentFrameBootstrap(rr.initiator, rr.ourCookie, payload); err != nil {
		return err
	}

	rr.step = responderStepAwaitingKey
	return nil
}

func (rr *responderRole) handlePeerFrame(s *Signaling, nonce crypto.Nonce, ciphertext []byte) error {
	if nonce.Source != crypto.InitiatorAddress {
		return &ProtocolError{Reason: "peer frame from an address other than the initiator"}
	}

	if s.State() == StateTask {
		return rr.handleTaskFrame(s, nonce, ciphertext)
	}

	switch rr.step {
	case responderStepAwaitingKey:
		return rr.handleKey(s, nonce, ciphertext)
	case responderStepAwaitingAuth:
		return rr.handleAuth(s, nonce, ciphertext)
	default:
		return &ProtocolError{Reason: "unexpected peer frame from initiator"}
	}
}

func (rr *responderRole) handleKey(s *Signaling, nonce crypto.Nonce, ciphertext []byte) error {
	plaintext, err := s.openPeerPermanent(rr.initiator, nonce, ciphertext)
	if err != nil {
		return err
	}
	key, err := message.DecodeKey(plaintext)
	if err != nil {
		return err
	}
	peerSessionKey, err := crypto.ParseKey("key.key", key.Key)
	if err != nil {
		return err
	}

	if _, ok := rr.initiator.Cookies(); !ok {
		if nonce.Cookie == rr.ourCookie {
			return &ProtocolError{Reason: "initiator echoed our own cookie"}
		}
		rr.initiator.SetCookies(crypto.CookiePair{Ours: rr.ourCookie, Theirs: nonce.Cookie})
	}

	rr.initiator.SetSessionKey(peerSessionKey, rr.sessionKeyPair.Private)
	rr.step = responderStepAwaitingAuth
	return rr.sendAuth(s)
}

func (rr *responderRole) sendAuth(s *Signaling) error {
	pair, _ := rr.initiator.Cookies()
	data := make(map[string]map[string]interface{}, len(s.tasks))
	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name())
		data[t.Name()] = t.Data()
	}
	auth := &message.AuthResponder{
		Type:       message.TypeAuth,
		YourCookie: pair.Theirs[:],
		Tasks:      names,
		Data:       data,
	}
	payload, err := message.Encode(auth)
	if err != nil {
		return err
	}
	return s.sendPeerSessionFrame(rr.initiator, payload)
}

func (rr *responderRole) handleAuth(s *Signaling, nonce crypto.Nonce, ciphertext []byte) error {
	plaintext, err := s.openPeerSession(rr.initiator, nonce, ciphertext)
	if err != nil {
		return err
	}
	auth, err := message.DecodeAuthInitiator(plaintext)
	if err != nil {
		return err
	}
	pair, _ := rr.initiator.Cookies()
	if string(auth.YourCookie) != string(pair.Ours[:]) {
		return &ProtocolError{Reason: "auth.your_cookie does not match the cookie we sent"}
	}

	var task Task
	for _, t := range s.tasks {
		if t.Name() == auth.Task {
			task = t
			break
		}
	}
	if task == nil {
		return &NoSharedTaskError{Reason: "initiator selected a task we did not offer: " + auth.Task}
	}

	task.Init(newHandle(s), auth.Data)
	s.mu.Lock()
	s.task = task
	s.setState(StateTask)
	s.mu.Unlock()
	s.setActivePeer(rr.initiator)
	rr.step = responderStepDone
	task.OnPeerHandshakeDone()
	return nil
}

func (rr *responderRole) handleTaskFrame(s *Signaling, nonce crypto.Nonce, ciphertext []byte) error {
	plaintext, err := s.openPeerSession(rr.initiator, nonce, ciphertext)
	if err != nil {
		return err
	}
	typ, payload, err := decodeTaskMessage(plaintext)
	if err != nil {
		return err
	}
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if task == nil {
		return &InternalError{Reason: "task frame received with no active task"}
	}
	if !supportsType(task, typ) {
		return &ProtocolError{Reason: "task message type not supported by the active task: " + typ}
	}
	task.OnTaskMessage(typ, payload)
	return nil
}

func (rr *responderRole) handleServerPush(s *Signaling, typ message.Type, payload []byte) error {
	switch typ {
	case message.TypeNewInitiator:
		if _, err := message.DecodeNewInitiator(payload); err != nil {
			return err
		}
		s.logger.Info("responder: initiator reconnected, restarting peer handshake")
		s.mu.Lock()
		if s.state == StateTask {
			if s.task != nil {
				s.task.Close("new-initiator")
			}
			s.clearSessionLocked()
			s.setState(StatePeerHandshake)
		}
		s.mu.Unlock()
		rr.step = responderStepNotStarted
		rr.initiator = peer.NewInitiator()
		key := rr.cfg.initiatorKey()
		rr.initiator.SetPermanentKey(*key, s.permanentKey.Private)
		return rr.beginHandshake(s)
	case message.TypeSendError:
		if _, err := message.DecodeSendError(payload); err != nil {
			return err
		}
		s.logger.Warn("responder: server could not relay an outbound frame")
		s.events.connectionLost()
		s.resetConnection(CloseProtocolError, "server could not relay an outbound frame")
		return nil
	case message.TypeDisconnected:
		m, err := message.DecodeDisconnected(payload)
		if err != nil {
			return err
		}
		s.logger.Debug("responder: sibling responder disconnected", "id", m.ID)
		s.events.peerDisconnected(m.ID)
		return nil
	default:
		return nil
	}
}
