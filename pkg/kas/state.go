package kas

// State is the position of a rewrap attempt in its lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateTokenAcquired
	StateRequestSent
	StateKeyReceived
	StateDenied
	StateTransientFailure
	StateCanceled
)

var stateNames = [...]string{
	StateUnauthenticated:  "UNAUTHENTICATED",
	StateTokenAcquired:    "TOKEN_ACQUIRED",
	StateRequestSent:      "REQUEST_SENT",
	StateKeyReceived:      "KEY_RECEIVED",
	StateDenied:           "DENIED",
	StateTransientFailure: "TRANSIENT_FAILURE",
	StateCanceled:         "CANCELED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s >= StateKeyReceived
}

// stateForKind is the terminal state a failure of kind k ends in.
func stateForKind(k Kind) State {
	switch k {
	case KindTransient:
		return StateTransientFailure
	case KindCanceled:
		return StateCanceled
	default:
		return StateDenied
	}
}
