// Package ingest receives live microphone audio from guide clients.
//
// Each client streams over a websocket (see [Handler]); the [Hub] keeps one
// [Stream] per connected client and lets any number of consumers, such as
// recording devices, subscribe to it by client ID.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/museguide/pkg/audio"
)

var (
	// ErrNoStream is returned by [Hub.Resolve] when the client is not
	// streaming.
	ErrNoStream = errors.New("ingest: no live stream for client")

	// ErrClientConnected is returned by [Hub.Open] when the client already
	// has a live stream.
	ErrClientConnected = errors.New("ingest: client already streaming")
)

// subscriberBuffer is how many frames a subscriber may lag behind before
// frames are dropped for it.
const subscriberBuffer = 64

// Hub is the registry of live client streams. It is safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	streams  map[string]*Stream
	handlers []func(audio.Event)
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*Stream)}
}

// OnClientChange registers fn to be called when a client starts or stops
// streaming. Callbacks run synchronously on the connecting goroutine.
func (h *Hub) OnClientChange(fn func(audio.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, fn)
}

func (h *Hub) emit(ev audio.Event) {
	h.mu.RLock()
	handlers := slices.Clone(h.handlers)
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// Open registers a new stream for clientID.
func (h *Hub) Open(clientID string, format audio.Format) (*Stream, error) {
	if clientID == "" {
		return nil, errors.New("ingest: client ID is required")
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	h.mu.Lock()
	if _, ok := h.streams[clientID]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrClientConnected, clientID)
	}
	s := &Stream{
		id:     clientID,
		format: format,
		hub:    h,
		subs:   make(map[int]chan audio.AudioFrame),
		done:   make(chan struct{}),
	}
	h.streams[clientID] = s
	h.mu.Unlock()

	slog.Info("ingest: client connected", "client_id", clientID, "format", format)
	h.emit(audio.Event{Type: audio.EventConnect, ClientID: clientID, Format: format})
	return s, nil
}

// Resolve returns the live stream of the named client.
func (h *Hub) Resolve(clientID string) (audio.Source, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.streams[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStream, clientID)
	}
	return s, nil
}

// Clients returns the IDs of all streaming clients, sorted.
func (h *Hub) Clients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.streams))
	for id := range h.streams {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close ends every live stream.
func (h *Hub) Close() {
	h.mu.RLock()
	streams := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.RUnlock()

	for _, s := range streams {
		s.Close()
	}
}

func (h *Hub) remove(s *Stream) {
	h.mu.Lock()
	if h.streams[s.id] == s {
		delete(h.streams, s.id)
	}
	h.mu.Unlock()

	slog.Info("ingest: client disconnected", "client_id", s.id)
	h.emit(audio.Event{Type: audio.EventDisconnect, ClientID: s.id})
}

// Stream is one client's live audio. It implements [audio.Source].
type Stream struct {
	id     string
	format audio.Format
	hub    *Hub

	done chan struct{}

	mu      sync.Mutex
	subs    map[int]chan audio.AudioFrame
	nextID  int
	closed  bool
	dropped int64
}

var _ audio.Source = (*Stream)(nil)

// ClientID returns the ID of the streaming client.
func (s *Stream) ClientID() string { return s.id }

// Format implements [audio.Source].
func (s *Stream) Format() audio.Format { return s.format }

// Subscribe implements [audio.Source].
func (s *Stream) Subscribe() (<-chan audio.AudioFrame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan audio.AudioFrame, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers f to every subscriber without blocking. Subscribers whose
// buffer is full miss the frame. It returns how many subscribers received it.
func (s *Stream) Publish(f audio.AudioFrame) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := 0
	for _, ch := range s.subs {
		select {
		case ch <- f:
			delivered++
		default:
			s.dropped++
		}
	}
	return delivered
}

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Dropped returns how many frame deliveries were skipped for slow
// subscribers.
func (s *Stream) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close ends the stream: subscriber channels are closed and the client is
// removed from the hub. Close is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	close(s.done)
	s.mu.Unlock()

	s.hub.remove(s)
}
