package session

// State is a step of one script run.
type State int

const (
	StateIdle State = iota
	StateAddressResolving
	StateBridgeStarting
	StateRequestSent
	StateAwaitingResponse
	StateDecoding
	StateReported
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAddressResolving:
		return "address_resolving"
	case StateBridgeStarting:
		return "bridge_starting"
	case StateRequestSent:
		return "request_sent"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateDecoding:
		return "decoding"
	case StateReported:
		return "reported"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateReported || s == StateAborted
}
