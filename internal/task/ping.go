// Package task holds example Task implementations for exercising the
// signaling core without a real WebRTC stack.
package task

import (
	"sync/atomic"

	"github.com/saltyrtc/saltyrtc-go/internal/signaling"
)

// PingTask is a minimal post-handshake task: either side may send a "ping"
// and expects a "pong" back. It carries no negotiation data and exists to
// give the signaling core something concrete to select and drive end to
// end in tests.
type PingTask struct {
	handle *signaling.Handle

	sent     atomic.Uint64
	received atomic.Uint64

	onPong func()
}

// NewPingTask constructs a PingTask. onPong, if non-nil, is invoked every
// time a pong is received (from a test goroutine's perspective, on the
// signaling core's own serialization domain — it must not block).
func NewPingTask(onPong func()) *PingTask {
	return &PingTask{onPong: onPong}
}

func (t *PingTask) Name() string { return "ping.saltyrtc.org" }

func (t *PingTask) SupportedMessageTypes() []string {
	return []string{"ping", "pong"}
}

func (t *PingTask) Data() map[string]interface{} { return nil }

func (t *PingTask) Init(handle *signaling.Handle, peerData map[string]interface{}) {
	t.handle = handle
}

func (t *PingTask) OnPeerHandshakeDone() {}

func (t *PingTask) OnTaskMessage(msgType string, payload map[string]interface{}) {
	switch msgType {
	case "ping":
		t.received.Add(1)
		_ = t.handle.SendTaskMessage("pong", nil)
	case "pong":
		t.received.Add(1)
		if t.onPong != nil {
			t.onPong()
		}
	}
}

func (t *PingTask) Close(reason string) {}

// Ping sends a ping message to the peer.
func (t *PingTask) Ping() error {
	t.sent.Add(1)
	return t.handle.SendTaskMessage("ping", nil)
}

// Sent reports how many pings this task has sent through Ping; pong
// replies are not counted.
func (t *PingTask) Sent() uint64 { return t.sent.Load() }

// Received reports how many messages this task has received.
func (t *PingTask) Received() uint64 { return t.received.Load() }
