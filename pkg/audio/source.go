package audio

// Source is a live audio stream that any number of consumers can tap.
//
// Implementations are provided by transport packages (e.g. the websocket
// ingest hub). Subscribers that fall behind may miss frames; a Source never
// blocks its producer on a slow consumer.
type Source interface {
	// Subscribe returns a channel of frames and a function that detaches the
	// subscriber. The channel is closed after cancel is called or when the
	// stream ends. cancel is safe to call more than once.
	Subscribe() (frames <-chan AudioFrame, cancel func())

	// Format returns the format the producer announced for its frames.
	Format() Format
}

// EventType classifies stream lifecycle events.
type EventType int

const (
	// EventConnect is emitted when a client starts streaming.
	EventConnect EventType = iota

	// EventDisconnect is emitted when a client's stream ends.
	EventDisconnect
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventConnect:
		return "CONNECT"
	case EventDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Event describes a stream starting or ending.
type Event struct {
	// Type indicates whether the stream started or ended.
	Type EventType

	// ClientID identifies the streaming client.
	ClientID string

	// Format is the announced stream format. Zero for disconnects.
	Format Format
}
