package signaling

import "github.com/vmihailenco/msgpack/v5"

// Task is the post-handshake protocol that takes over the encrypted
// channel once PEER_HANDSHAKE completes. The signaling core only ever
// calls these methods on its own serialization domain; a Task must not
// call back into the Signaling handle from another goroutine.
type Task interface {
	// Name identifies the task; it is what gets advertised/selected in
	// the auth message's tasks/task fields.
	Name() string

	// SupportedMessageTypes lists the application-level "type" values
	// this task will accept via OnTaskMessage once selected.
	SupportedMessageTypes() []string

	// Data returns this task's negotiation data to advertise in the
	// auth message, or nil if it has none.
	Data() map[string]interface{}

	// Init is called once this task has been selected, carrying the
	// handle the task uses to send messages back and the peer's
	// negotiation data for this task (from the other side's auth
	// message), which may be nil.
	Init(handle *Handle, peerData map[string]interface{})

	// OnPeerHandshakeDone fires once the peer handshake completes and
	// State has transitioned to StateTask.
	OnPeerHandshakeDone()

	// OnTaskMessage delivers one decrypted, decoded post-handshake
	// message whose "type" is in SupportedMessageTypes.
	OnTaskMessage(msgType string, payload map[string]interface{})

	// Close notifies the task that the signaling connection is closing.
	Close(reason string)
}

// Handle is the narrow surface a Task uses to drive the signaling core,
// instead of holding a reference to the full Signaling struct.
type Handle struct {
	s *Signaling
}

func newHandle(s *Signaling) *Handle { return &Handle{s: s} }

// SendTaskMessage encrypts payload with the peer-session envelope and
// transmits it to the peer, tagging it with msgType as the "type" field.
func (h *Handle) SendTaskMessage(msgType string, payload map[string]interface{}) error {
	return h.s.sendTaskMessage(msgType, payload)
}

// State returns the current signaling state.
func (h *Handle) State() State {
	return h.s.State()
}

// decodeTaskMessage unpacks a post-handshake payload into its "type" tag and
// the remaining fields.
func decodeTaskMessage(plaintext []byte) (string, map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := msgpack.Unmarshal(plaintext, &payload); err != nil {
		return "", nil, &ProtocolError{Reason: "malformed task message: " + err.Error()}
	}
	typ, _ := payload["type"].(string)
	if typ == "" {
		return "", nil, &ProtocolError{Reason: "task message missing a type field"}
	}
	delete(payload, "type")
	return typ, payload, nil
}

// supportsType reports whether task advertises msgType among the
// application-level message types it accepts.
func supportsType(task Task, msgType string) bool {
	for _, t := range task.SupportedMessageTypes() {
		if t == msgType {
			return true
		}
	}
	return false
}
