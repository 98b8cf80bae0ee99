package ports

// ConnectionState is the lifecycle state of the remote timecode channel.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Registered
	Reconnecting
	Refused
	Errored
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Registered:
		return "registered"
	case Reconnecting:
		return "reconnecting"
	case Refused:
		return "refused"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}
