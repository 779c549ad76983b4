package auth

// State is the handshake state
type State int

const (
	Unauthenticated State = iota
	AwaitingRandomNumber
	AwaitingAuthResult
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingRandomNumber:
		return "awaiting_random_number"
	case AwaitingAuthResult:
		return "awaiting_auth_result"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

// Terminal reports whether no further transitions happen without Reset
func (s State) Terminal() bool {
	return s == Authenticated || s == Failed
}

func (s State) awaiting() bool {
	return s == AwaitingRandomNumber || s == AwaitingAuthResult
}

// Reason explains a Failed state
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonKeySendingFailed    Reason = "key_sending_failed"
	ReasonRandomRequestFailed Reason = "random_request_failed"
	ReasonEncryptionFailed    Reason = "encryption_key_failed"
	ReasonTimeout             Reason = "timeout"
	ReasonTransportError      Reason = "transport_error"
)

// Status is a snapshot of the handshake
type Status struct {
	State  State
	Reason Reason
}
