package signaling

// CloseCode is the WebSocket close code a reset_connection reports to the
// transport and, where relevant, to the peer.
type CloseCode int

const (
	CloseNormal                  CloseCode = 1000
	CloseGoingAway               CloseCode = 1001
	CloseProtocolErrorTransport  CloseCode = 1002
	CloseAbnormal                CloseCode = 1006
	ClosePathFull                CloseCode = 3000
	CloseProtocolError           CloseCode = 3001
	CloseInternalError           CloseCode = 3002
	CloseHandover                CloseCode = 3003
	CloseDroppedByInitiator      CloseCode = 3004
	CloseInitiatorCouldNotDecrypt CloseCode = 3005
	CloseNoSharedTask            CloseCode = 3006
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "CLOSING_NORMAL"
	case CloseGoingAway:
		return "GOING_AWAY"
	case CloseProtocolErrorTransport:
		return "PROTOCOL_ERROR"
	case CloseAbnormal:
		return "ABNORMAL"
	case ClosePathFull:
		return "PATH_FULL"
	case CloseProtocolError:
		return "PROTOCOL_ERROR"
	case CloseInternalError:
		return "INTERNAL_ERROR"
	case CloseHandover:
		return "HANDOVER"
	case CloseDroppedByInitiator:
		return "DROPPED_BY_INITIATOR"
	case CloseInitiatorCouldNotDecrypt:
		return "INITIATOR_COULD_NOT_DECRYPT"
	case CloseNoSharedTask:
		return "NO_SHARED_TASK"
	default:
		return "UNKNOWN"
	}
}
