package channel

// State is the lifecycle of a client's push channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

func (s State) String() string {
	return string(s)
}

// Live reports whether messages can currently be sent.
func (s State) Live() bool {
	return s == StateConnected
}
