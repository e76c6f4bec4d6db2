package task

import "testing"

func TestPingTaskIdentity(t *testing.T) {
	pt := NewPingTask(nil)

	if pt.Name() != "ping.saltyrtc.org" {
		t.Errorf("Name() = %q", pt.Name())
	}

	types := pt.SupportedMessageTypes()
	if len(types) != 2 || types[0] != "ping" || types[1] != "pong" {
		t.Errorf("SupportedMessageTypes() = %v", types)
	}

	if pt.Data() != nil {
		t.Errorf("Data() = %v, want nil", pt.Data())
	}
}

func TestPingTaskCountersStartAtZero(t *testing.T) {
	pt := NewPingTask(nil)
	if pt.Sent() != 0 {
		t.Errorf("Sent() = %d, want 0", pt.Sent())
	}
	if pt.Received() != 0 {
		t.Errorf("Received() = %d, want 0", pt.Received())
	}
}

func TestPingTaskCloseIsNoop(t *testing.T) {
	pt := NewPingTask(nil)
	pt.Close("test")
	pt.OnPeerHandshakeDone()
}
