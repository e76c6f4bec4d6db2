package signaling

import (
	"context"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

// frameToPeer builds nonce[24] || ciphertext addressed to peer, advancing
// its outgoing CSN and sealing plaintext with shared.
func (s *Signaling) frameToPeer(peer peerRecord, shared crypto.SharedKey, plaintext []byte) ([]byte, error) {
	pair, ok := peer.Cookies()
	if !ok {
		return nil, &InternalError{Reason: "no cookie pair established for peer"}
	}
	csn, err := peer.NextOutgoingCSN()
	if err != nil {
		return nil, &InternalError{Reason: err.Error()}
	}
	nonce := crypto.NewNonce(pair.Ours, s.ourAddress, peer.Address(), csn)
	nonceBytes := nonce.Encode()
	ciphertext := shared.Seal(nonceBytes, plaintext)
	return append(nonceBytes[:], ciphertext...), nil
}

func (s *Signaling) send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn.Send(context.Background(), data)
}

// sendPeerPermanentFrame encrypts plaintext with the permanent-key box
// envelope (our permanent sk, peer permanent pk) and transmits it.
func (s *Signaling) sendPeerPermanentFrame(peer peerRecord, plaintext []byte) error {
	shared, ok := peer.PermanentShared()
	if !ok {
		return &InternalError{Reason: "peer permanent key not yet known"}
	}
	data, err := s.frameToPeer(peer, shared, plaintext)
	if err != nil {
		return err
	}
	return s.send(data)
}

// sendPeerSessionFrame encrypts plaintext with the session-key box
// envelope (our session sk, peer session pk) and transmits it.
func (s *Signaling) sendPeerSessionFrame(peer peerRecord, plaintext []byte) error {
	shared, ok := peer.SessionShared()
	if !ok {
		return &InternalError{Reason: "peer session key not yet known"}
	}
	data, err := s.frameToPeer(peer, shared, plaintext)
	if err != nil {
		return err
	}
	return s.send(data)
}

// sendAuthTokenFrame encrypts plaintext with the one-use auth-token
// secretbox envelope and transmits it.
func (s *Signaling) sendAuthTokenFrame(peer peerRecord, token crypto.AuthToken, plaintext []byte) error {
	pair, ok := peer.Cookies()
	if !ok {
		return &InternalError{Reason: "no cookie pair established for peer"}
	}
	csn, err := peer.NextOutgoingCSN()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	nonce := crypto.NewNonce(pair.Ours, s.ourAddress, peer.Address(), csn)
	nonceBytes := nonce.Encode()
	ciphertext := token.Seal(nonceBytes, plaintext)
	return s.send(append(nonceBytes[:], ciphertext...))
}

// openPeerPermanent authenticates and decrypts ciphertext with the
// permanent-key box envelope, validating the nonce's cookie and CSN first.
func (s *Signaling) openPeerPermanent(peer peerRecord, nonce crypto.Nonce, ciphertext []byte) ([]byte, error) {
	if err := s.checkPeerNonce(peer, nonce); err != nil {
		return nil, err
	}
	shared, ok := peer.PermanentShared()
	if !ok {
		return nil, &InternalError{Reason: "peer permanent key not yet known"}
	}
	plaintext, err := shared.Open(nonce.Encode(), ciphertext)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error()}
	}
	return plaintext, nil
}

// openPeerSession authenticates and decrypts ciphertext with the
// session-key box envelope, validating the nonce's cookie and CSN first.
func (s *Signaling) openPeerSession(peer peerRecord, nonce crypto.Nonce, ciphertext []byte) ([]byte, error) {
	if err := s.checkPeerNonce(peer, nonce); err != nil {
		return nil, err
	}
	shared, ok := peer.SessionShared()
	if !ok {
		return nil, &InternalError{Reason: "peer session key not yet known"}
	}
	plaintext, err := shared.Open(nonce.Encode(), ciphertext)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error()}
	}
	return plaintext, nil
}

// openAuthToken authenticates and decrypts ciphertext with the one-use
// auth-token secretbox envelope.
func (s *Signaling) openAuthToken(peer peerRecord, token crypto.AuthToken, nonce crypto.Nonce, ciphertext []byte) ([]byte, error) {
	if err := s.checkPeerNonce(peer, nonce); err != nil {
		return nil, err
	}
	plaintext, err := token.Open(nonce.Encode(), ciphertext)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error()}
	}
	return plaintext, nil
}

// sendPeerPermanentFrameBootstrap sends the first frame of a handshake we
// initiate toward a peer whose cookie pair isn't established yet — we know
// our own outgoing cookie but haven't seen the peer's, so frameToPeer's
// lookup via peer.Cookies() doesn't apply.
func (s *Signaling) sendPeerPermanentFrameBootstrap(peer peerRecord, ourCookie crypto.Cookie, plaintext []byte) error {
	shared, ok := peer.PermanentShared()
	if !ok {
		return &InternalError{Reason: "peer permanent key not yet known"}
	}
	csn, err := peer.NextOutgoingCSN()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	nonce := crypto.NewNonce(ourCookie, s.ourAddress, peer.Address(), csn)
	nonceBytes := nonce.Encode()
	ciphertext := shared.Seal(nonceBytes, plaintext)
	return s.send(append(nonceBytes[:], ciphertext...))
}

// sendAuthTokenFrameBootstrap is sendPeerPermanentFrameBootstrap's
// counterpart for the one-use auth-token envelope.
func (s *Signaling) sendAuthTokenFrameBootstrap(peer peerRecord, ourCookie crypto.Cookie, token crypto.AuthToken, plaintext []byte) error {
	csn, err := peer.NextOutgoingCSN()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	nonce := crypto.NewNonce(ourCookie, s.ourAddress, peer.Address(), csn)
	nonceBytes := nonce.Encode()
	ciphertext := token.Seal(nonceBytes, plaintext)
	return s.send(append(nonceBytes[:], ciphertext...))
}

// checkPeerNonce validates an inbound frame's cookie and CSN against the
// sending peer's record, per spec.md §4.1.
func (s *Signaling) checkPeerNonce(peer peerRecord, nonce crypto.Nonce) error {
	pair, ok := peer.Cookies()
	if ok && nonce.Cookie != pair.Theirs {
		return &ProtocolError{Reason: "peer frame cookie mismatch"}
	}
	if err := peer.ValidateIncomingCSN(nonce.CSN()); err != nil {
		return &ProtocolError{Reason: err.Error()}
	}
	return nil
}
