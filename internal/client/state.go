package client

// State is the session lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateLoggedIn
	StateLoggingOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateLoggedIn:
		return "logged_in"
	case StateLoggingOut:
		return "logging_out"
	default:
		return "unknown"
	}
}
