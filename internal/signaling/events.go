package signaling

// EventHandlers holds the application's callbacks. All of them are invoked
// synchronously on the signaling instance's single serialization domain, so
// handlers must not block or re-enter the instance's exported methods.
type EventHandlers struct {
	OnStateChanged      func(State)
	OnChannelChanged    func(channel string)
	OnConnectionLost    func()
	OnPeerDisconnected  func(id uint8)
	OnData              func(payload []byte)
	OnClose             func(code CloseCode, reason string)
}

func (h *EventHandlers) stateChanged(s State) {
	if h != nil && h.OnStateChanged != nil {
		h.OnStateChanged(s)
	}
}

func (h *EventHandlers) channelChanged(channel string) {
	if h != nil && h.OnChannelChanged != nil {
		h.OnChannelChanged(channel)
	}
}

func (h *EventHandlers) connectionLost() {
	if h != nil && h.OnConnectionLost != nil {
		h.OnConnectionLost()
	}
}

func (h *EventHandlers) peerDisconnected(id uint8) {
	if h != nil && h.OnPeerDisconnected != nil {
		h.OnPeerDisconnected(id)
	}
}

func (h *EventHandlers) data(payload []byte) {
	if h != nil && h.OnData != nil {
		h.OnData(payload)
	}
}

func (h *EventHandlers) closed(code CloseCode, reason string) {
	if h != nil && h.OnClose != nil {
		h.OnClose(code, reason)
	}
}
