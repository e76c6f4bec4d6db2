package signaling

import (
	"encoding/hex"
	"log/slog"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/message"
	"github.com/saltyrtc/saltyrtc-go/internal/peer"
)

// responderProgress tracks one responder's position in the initiator's side
// of the peer handshake, independent of peer.Responder's own substate
// (which only models events relevant to the responder it's held for).
type responderProgress int

const (
	progressAwaitingToken responderProgress = iota
	progressAwaitingKey
	progressAwaitingAuth
	progressDone
)

// InitiatorConfig optionally names a single responder permanent key the
// initiator already trusts out-of-band, letting that responder skip the
// token message. It is an extension beyond untrusted pairing, not required
// by every deployment.
type InitiatorConfig struct {
	TrustedResponderKey *[crypto.KeySize]byte
	AuthToken           *crypto.AuthToken
}

type initiatorRole struct {
	cfg InitiatorConfig

	permanentPublic [crypto.KeySize]byte

	table    *peer.ResponderTable
	progress map[crypto.Address]responderProgress

	sessionKeys map[crypto.Address]crypto.KeyPair
}

// NewInitiator constructs an initiator-role Signaling instance, ready to
// pair with zero, one, or many responders.
func NewInitiator(permanentKey crypto.KeyPair, cfg InitiatorConfig, tasks []Task, expectedServerKey *[crypto.KeySize]byte, logger *slog.Logger, events EventHandlers) *Signaling {
	ir := &initiatorRole{
		cfg:             cfg,
		permanentPublic: permanentKey.Public,
		table:           peer.NewResponderTable(),
		progress:        make(map[crypto.Address]responderProgress),
		sessionKeys:     make(map[crypto.Address]crypto.KeyPair),
	}
	s := newCore(permanentKey, expectedServerKey, tasks, logger, events)
	s.role = ir
	return s
}

func (ir *initiatorRole) role() Role { return RoleInitiator }

func (ir *initiatorRole) path() string {
	return hex.EncodeToString(ir.permanentPublic[:])
}

func (ir *initiatorRole) sendClientHello(s *Signaling) error { return nil }

func (ir *initiatorRole) afterServerAuth(s *Signaling, msg *message.ServerAuth) error {
	if s.ourAddress != crypto.InitiatorAddress {
		return &ProtocolError{Reason: "server assigned a non-initiator address to an initiator connection"}
	}
	for _, addr := range msg.Responders {
		ir.registerResponder(s, crypto.Address(addr))
	}
	return nil
}

func (ir *initiatorRole) initPeerHandshake(s *Signaling) error {
	return nil
}

func (ir *initiatorRole) registerResponder(s *Signaling, addr crypto.Address) *peer.Responder {
	rec := ir.table.GetOrCreate(addr)
	if ir.cfg.TrustedResponderKey != nil {
		if _, ok := rec.PermanentKey(); !ok {
			rec.SetPermanentKey(*ir.cfg.TrustedResponderKey, s.permanentKey.Private)
		}
		if _, ok := ir.progress[addr]; !ok {
			ir.progress[addr] = progressAwaitingKey
		}
	} else if _, ok := ir.progress[addr]; !ok {
		ir.progress[addr] = progressAwaitingToken
	}
	return rec
}

func (ir *initiatorRole) handlePeerFrame(s *Signaling, nonce crypto.Nonce, ciphertext []byte) error {
	if !nonce.Source.IsResponder() {
		return &ProtocolError{Reason: "peer frame from an address outside the responder range"}
	}
	addr := nonce.Source

	s.mu.Lock()
	state := s.state
	activeAddr := s.activePeerAddress
	s.mu.Unlock()

	if state == StateTask && activeAddr == addr {
		rec, _ := ir.table.Get(addr)
		return ir.handleTaskFrame(s, rec, nonce, ciphertext)
	}
	if state == StateTask {
		// A late responder trying to speak after another already won the
		// handshake; drop it rather than processing further.
		return ir.dropResponder(s, addr)
	}

	rec := ir.registerResponder(s, addr)
	switch ir.progress[addr] {
	case progressAwaitingToken:
		return ir.handleToken(s, rec, nonce, ciphertext)
	case progressAwaitingKey:
		return ir.handleKey(s, rec, nonce, ciphertext)
	case progressAwaitingAuth:
		return ir.handleAuth(s, rec, nonce, ciphertext)
	default:
		return &ProtocolError{Reason: "unexpected peer frame from a responder past its handshake"}
	}
}

func (ir *initiatorRole) handleToken(s *Signaling, rec *peer.Responder, nonce crypto.Nonce, ciphertext []byte) error {
	if ir.cfg.AuthToken == nil {
		return &ProtocolError{Reason: "received a token message but no auth token is configured"}
	}
	plaintext, err := s.openAuthToken(rec, *ir.cfg.AuthToken, nonce, ciphertext)
	if err != nil {
		return err
	}
	tok, err := message.DecodeToken(plaintext)
	if err != nil {
		return err
	}
	peerPermanent, err := crypto.ParseKey("token.key", tok.Key)
	if err != nil {
		return err
	}
	rec.SetPermanentKey(peerPermanent, s.permanentKey.Private)

	pair, err := crypto.NewCookiePair(nonce.Cookie)
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	rec.SetCookies(pair)

	ir.progress[rec.Address()] = progressAwaitingKey
	return nil
}

func (ir *initiatorRole) handleKey(s *Signaling, rec *peer.Responder, nonce crypto.Nonce, ciphertext []byte) error {
	if _, ok := rec.Cookies(); !ok {
		// Trusted responder: this is the first frame we've seen from it.
		pair, err := crypto.NewCookiePair(nonce.Cookie)
		if err != nil {
			return &InternalError{Reason: err.Error()}
		}
		rec.SetCookies(pair)
	}
	plaintext, err := s.openPeerPermanent(rec, nonce, ciphertext)
	if err != nil {
		return err
	}
	key, err := message.DecodeKey(plaintext)
	if err != nil {
		return err
	}
	peerSession, err := crypto.ParseKey("key.key", key.Key)
	if err != nil {
		return err
	}

	sessionPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	ir.sessionKeys[rec.Address()] = sessionPair
	rec.SetSessionKey(peerSession, sessionPair.Private)

	reply := message.NewKey(sessionPair.Public)
	payload, err := message.Encode(reply)
	if err != nil {
		return err
	}
	if err := s.sendPeerPermanentFrame(rec, payload); err != nil {
		return err
	}

	ir.progress[rec.Address()] = progressAwaitingAuth
	return nil
}

func (ir *initiatorRole) handleAuth(s *Signaling, rec *peer.Responder, nonce crypto.Nonce, ciphertext []byte) error {
	plaintext, err := s.openPeerSession(rec, nonce, ciphertext)
	if err != nil {
		return err
	}
	auth, err := message.DecodeAuthResponder(plaintext)
	if err != nil {
		return err
	}
	pair, _ := rec.Cookies()
	if string(auth.YourCookie) != string(pair.Ours[:]) {
		return &ProtocolError{Reason: "auth.your_cookie does not match the cookie we sent"}
	}

	s.mu.Lock()
	alreadyWon := s.activePeer != nil
	s.mu.Unlock()
	if alreadyWon {
		return ir.dropResponder(s, rec.Address())
	}

	var chosen string
	var chosenData map[string]interface{}
	for _, t := range s.tasks {
		for _, offered := range auth.Tasks {
			if t.Name() == offered {
				chosen = t.Name()
				chosenData = auth.Data[offered]
				break
			}
		}
		if chosen != "" {
			break
		}
	}
	if chosen == "" {
		return &NoSharedTaskError{Reason: "no task in common with responder " + nonce.Source.String()}
	}
	var task Task
	for _, t := range s.tasks {
		if t.Name() == chosen {
			task = t
			break
		}
	}

	reply := &message.AuthInitiator{
		Type:       message.TypeAuth,
		YourCookie: pair.Theirs[:],
		Task:       chosen,
		Data:       task.Data(),
	}
	payload, err := message.Encode(reply)
	if err != nil {
		return err
	}
	if err := s.sendPeerSessionFrame(rec, payload); err != nil {
		return err
	}

	task.Init(newHandle(s), chosenData)
	s.mu.Lock()
	s.task = task
	s.setState(StateTask)
	s.mu.Unlock()
	s.setActivePeer(rec)
	ir.progress[rec.Address()] = progressDone

	ir.dropOtherResponders(s, rec.Address())
	task.OnPeerHandshakeDone()
	return nil
}

// dropOtherResponders instructs the server to disconnect every responder
// except winner, per spec.md's "first responder to authenticate wins" rule.
func (ir *initiatorRole) dropOtherResponders(s *Signaling, winner crypto.Address) {
	for _, addr := range ir.table.Addresses() {
		if addr == winner {
			continue
		}
		if err := ir.sendDropResponder(s, addr); err != nil {
			s.logger.Warn("initiator: failed to send drop-responder", "address", addr, "error", err)
		}
		ir.table.Remove(addr)
		delete(ir.progress, addr)
		delete(ir.sessionKeys, addr)
	}
}

func (ir *initiatorRole) dropResponder(s *Signaling, addr crypto.Address) error {
	if err := ir.sendDropResponder(s, addr); err != nil {
		return err
	}
	ir.table.Remove(addr)
	delete(ir.progress, addr)
	delete(ir.sessionKeys, addr)
	return nil
}

func (ir *initiatorRole) sendDropResponder(s *Signaling, addr crypto.Address) error {
	drop := &message.DropResponder{Type: message.TypeDropResponder, ID: uint8(addr)}
	payload, err := message.Encode(drop)
	if err != nil {
		return err
	}
	return s.sendServerFrame(payload)
}

func (ir *initiatorRole) handleTaskFrame(s *Signaling, rec *peer.Responder, nonce crypto.Nonce, ciphertext []byte) error {
	if rec == nil {
		return &InternalError{Reason: "task frame from an address with no peer record"}
	}
	plaintext, err := s.openPeerSession(rec, nonce, ciphertext)
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

func (ir *initiatorRole) handleServerPush(s *Signaling, typ message.Type, payload []byte) error {
	switch typ {
	case message.TypeNewResponder:
		m, err := message.DecodeNewResponder(payload)
		if err != nil {
			return err
		}
		ir.registerResponder(s, crypto.Address(m.ID))
		return nil
	case message.TypeDisconnected:
		m, err := message.DecodeDisconnected(payload)
		if err != nil {
			return err
		}
		addr := crypto.Address(m.ID)
		ir.table.Remove(addr)
		delete(ir.progress, addr)
		delete(ir.sessionKeys, addr)
		s.mu.Lock()
		wasActive := s.activePeerAddress == addr && s.activePeer != nil
		s.mu.Unlock()
		if wasActive {
			s.resetConnection(CloseAbnormal, "active responder disconnected")
		}
		return nil
	case message.TypeSendError:
		if _, err := message.DecodeSendError(payload); err != nil {
			return err
		}
		s.logger.Warn("initiator: server could not relay an outbound frame")
		return nil
	default:
		return nil
	}
}
