package message

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
)

// Type is the "type" discriminator carried by every message.
type Type string

const (
	TypeServerHello   Type = "server-hello"
	TypeClientHello   Type = "client-hello"
	TypeClientAuth    Type = "client-auth"
	TypeServerAuth    Type = "server-auth"
	TypeNewInitiator  Type = "new-initiator"
	TypeNewResponder  Type = "new-responder"
	TypeDropResponder Type = "drop-responder"
	TypeSendError     Type = "send-error"
	TypeDisconnected  Type = "disconnected"
	TypeToken         Type = "token"
	TypeKey           Type = "key"
	TypeAuth          Type = "auth"
)

// typeOnly is used to sniff the "type" field before decoding the full
// message into its concrete struct.
type typeOnly struct {
	Type Type `msgpack:"type"`
}

// PeekType decodes just enough of a MessagePack map to learn its message
// type, without committing to a concrete payload struct.
func PeekType(data []byte) (Type, error) {
	var t typeOnly
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return "", &SerializationError{Op: "peek-type", Reason: err.Error()}
	}
	if t.Type == "" {
		return "", &ValidationError{Type: "(unknown)", Field: "type", Want: "non-empty string"}
	}
	return t.Type, nil
}

// Encode MessagePack-encodes any message payload.
func Encode(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Op: "encode", Reason: err.Error()}
	}
	return data, nil
}

// ServerHello is the first message sent by the server to any client,
// carrying the server's ephemeral-per-connection session key.
type ServerHello struct {
	Type Type   `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

func NewServerHello(key [crypto.KeySize]byte) *ServerHello {
	return &ServerHello{Type: TypeServerHello, Key: key[:]}
}

func (m *ServerHello) Validate() error {
	if len(m.Key) != crypto.KeySize {
		return &ValidationError{Type: string(TypeServerHello), Field: "key", Want: "32 bytes"}
	}
	return nil
}

func DecodeServerHello(data []byte) (*ServerHello, error) {
	var m ServerHello
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode server-hello", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ClientHello is sent by a responder (never an initiator) to present its
// permanent public key before the server knows which initiator it targets.
type ClientHello struct {
	Type Type   `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

func NewClientHello(key [crypto.KeySize]byte) *ClientHello {
	return &ClientHello{Type: TypeClientHello, Key: key[:]}
}

func (m *ClientHello) Validate() error {
	if len(m.Key) != crypto.KeySize {
		return &ValidationError{Type: string(TypeClientHello), Field: "key", Want: "32 bytes"}
	}
	return nil
}

func DecodeClientHello(data []byte) (*ClientHello, error) {
	var m ClientHello
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode client-hello", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ClientAuth completes the client->server handshake, echoing the cookie the
// server sent and negotiating the WebSocket ping interval.
type ClientAuth struct {
	Type         Type     `msgpack:"type"`
	YourCookie   []byte   `msgpack:"your_cookie"`
	Subprotocols []string `msgpack:"subprotocols"`
	PingInterval uint32   `msgpack:"ping_interval"`
	YourKey      []byte   `msgpack:"your_key,omitempty"`
}

func (m *ClientAuth) Validate() error {
	if len(m.YourCookie) != crypto.CookieSize {
		return &ValidationError{Type: string(TypeClientAuth), Field: "your_cookie", Want: "16 bytes"}
	}
	if len(m.Subprotocols) == 0 {
		return &ValidationError{Type: string(TypeClientAuth), Field: "subprotocols", Want: "at least one entry"}
	}
	if m.YourKey != nil && len(m.YourKey) != crypto.KeySize {
		return &ValidationError{Type: string(TypeClientAuth), Field: "your_key", Want: "32 bytes when present"}
	}
	return nil
}

func DecodeClientAuth(data []byte) (*ClientAuth, error) {
	var m ClientAuth
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode client-auth", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ServerAuth completes the server->client handshake. Responders is sent
// only to initiators (omitted when no responder is connected) and
// InitiatorConnected only to responders; both nil is valid, both set is not.
type ServerAuth struct {
	Type               Type    `msgpack:"type"`
	YourCookie         []byte  `msgpack:"your_cookie"`
	SignedKeys         []byte  `msgpack:"signed_keys,omitempty"`
	InitiatorConnected *bool   `msgpack:"initiator_connected,omitempty"`
	Responders         []uint8 `msgpack:"responders,omitempty"`
}

func (m *ServerAuth) Validate() error {
	if len(m.YourCookie) != crypto.CookieSize {
		return &ValidationError{Type: string(TypeServerAuth), Field: "your_cookie", Want: "16 bytes"}
	}
	if m.InitiatorConnected != nil && m.Responders != nil {
		return &ValidationError{Type: string(TypeServerAuth), Field: "responders/initiator_connected", Want: "exactly one of the two, not both"}
	}
	for _, id := range m.Responders {
		if id < 0x02 {
			return &ValidationError{Type: string(TypeServerAuth), Field: "responders", Want: "ids in [0x02, 0xff]"}
		}
	}
	return nil
}

func DecodeServerAuth(data []byte) (*ServerAuth, error) {
	var m ServerAuth
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode server-auth", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewInitiator notifies connected responders that a (re)connecting
// initiator is now present.
type NewInitiator struct {
	Type Type `msgpack:"type"`
}

func NewNewInitiator() *NewInitiator { return &NewInitiator{Type: TypeNewInitiator} }

func DecodeNewInitiator(data []byte) (*NewInitiator, error) {
	var m NewInitiator
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode new-initiator", Reason: err.Error()}
	}
	return &m, nil
}

// NewResponder notifies the initiator that a responder has connected.
type NewResponder struct {
	Type Type  `msgpack:"type"`
	ID   uint8 `msgpack:"id"`
}

func (m *NewResponder) Validate() error {
	if m.ID < 0x02 {
		return &ValidationError{Type: string(TypeNewResponder), Field: "id", Want: "in [0x02, 0xff]"}
	}
	return nil
}

func DecodeNewResponder(data []byte) (*NewResponder, error) {
	var m NewResponder
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode new-responder", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DropResponder instructs the server to disconnect a stale responder, e.g.
// when a new one with an identical permanent key connects.
type DropResponder struct {
	Type   Type    `msgpack:"type"`
	ID     uint8   `msgpack:"id"`
	Reason *uint16 `msgpack:"reason,omitempty"`
}

func (m *DropResponder) Validate() error {
	if m.ID < 0x02 {
		return &ValidationError{Type: string(TypeDropResponder), Field: "id", Want: "in [0x02, 0xff]"}
	}
	return nil
}

func DecodeDropResponder(data []byte) (*DropResponder, error) {
	var m DropResponder
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode drop-responder", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendError is relayed by the server when it cannot deliver a message,
// identifying the undeliverable message by the last 8 bytes of its nonce
// (source, destination, overflow and sequence number).
type SendError struct {
	Type Type   `msgpack:"type"`
	ID   []byte `msgpack:"id"`
}

func (m *SendError) Validate() error {
	if len(m.ID) != 8 {
		return &ValidationError{Type: string(TypeSendError), Field: "id", Want: "8 bytes"}
	}
	return nil
}

func DecodeSendError(data []byte) (*SendError, error) {
	var m SendError
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode send-error", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Disconnected notifies the initiator that a previously-connected
// responder has dropped off.
type Disconnected struct {
	Type Type  `msgpack:"type"`
	ID   uint8 `msgpack:"id"`
}

func (m *Disconnected) Validate() error {
	if m.ID < 0x02 {
		return &ValidationError{Type: string(TypeDisconnected), Field: "id", Want: "in [0x02, 0xff]"}
	}
	return nil
}

func DecodeDisconnected(data []byte) (*Disconnected, error) {
	var m Disconnected
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode disconnected", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Token carries the responder's permanent public key to the initiator, for
// a responder whose key the initiator does not yet trust. Encrypted with
// the shared auth token (secretbox), not a box envelope.
type Token struct {
	Type Type   `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

func NewToken(key [crypto.KeySize]byte) *Token {
	return &Token{Type: TypeToken, Key: key[:]}
}

func (m *Token) Validate() error {
	if len(m.Key) != crypto.KeySize {
		return &ValidationError{Type: string(TypeToken), Field: "key", Want: "32 bytes"}
	}
	return nil
}

func DecodeToken(data []byte) (*Token, error) {
	var m Token
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode token", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Key carries a peer's ephemeral session public key.
type Key struct {
	Type Type   `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

func NewKey(key [crypto.KeySize]byte) *Key {
	return &Key{Type: TypeKey, Key: key[:]}
}

func (m *Key) Validate() error {
	if len(m.Key) != crypto.KeySize {
		return &ValidationError{Type: string(TypeKey), Field: "key", Want: "32 bytes"}
	}
	return nil
}

func DecodeKey(data []byte) (*Key, error) {
	var m Key
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode key", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// AuthResponder is the responder's offer, proposing the set of tasks it
// supports along with each task's negotiation data.
type AuthResponder struct {
	Type       Type                              `msgpack:"type"`
	YourCookie []byte                             `msgpack:"your_cookie"`
	Tasks      []string                          `msgpack:"tasks"`
	Data       map[string]map[string]interface{} `msgpack:"data"`
}

func (m *AuthResponder) Validate() error {
	if len(m.YourCookie) != crypto.CookieSize {
		return &ValidationError{Type: string(TypeAuth), Field: "your_cookie", Want: "16 bytes"}
	}
	if len(m.Tasks) == 0 {
		return &ValidationError{Type: string(TypeAuth), Field: "tasks", Want: "at least one entry"}
	}
	return nil
}

func DecodeAuthResponder(data []byte) (*AuthResponder, error) {
	var m AuthResponder
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode auth (responder)", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// AuthInitiator is the initiator's answer, selecting exactly one task from
// the responder's offer.
type AuthInitiator struct {
	Type       Type                   `msgpack:"type"`
	YourCookie []byte                 `msgpack:"your_cookie"`
	Task       string                 `msgpack:"task"`
	Data       map[string]interface{} `msgpack:"data"`
}

func (m *AuthInitiator) Validate() error {
	if len(m.YourCookie) != crypto.CookieSize {
		return &ValidationError{Type: string(TypeAuth), Field: "your_cookie", Want: "16 bytes"}
	}
	if m.Task == "" {
		return &ValidationError{Type: string(TypeAuth), Field: "task", Want: "non-empty"}
	}
	return nil
}

func DecodeAuthInitiator(data []byte) (*AuthInitiator, error) {
	var m AuthInitiator
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, &SerializationError{Op: "decode auth (initiator)", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
