package ingest

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/museguide/pkg/audio"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

func TestHub_OpenResolve(t *testing.T) {
	t.Parallel()

	h := NewHub()
	if _, err := h.Resolve("a"); !errors.Is(err, ErrNoStream) {
		t.Fatalf("Resolve before Open error = %v, want ErrNoStream", err)
	}

	s, err := h.Open("a", mono16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	src, err := h.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src != audio.Source(s) {
		t.Error("Resolve returned a different stream")
	}
	if src.Format() != mono16k {
		t.Errorf("Format = %v, want %v", src.Format(), mono16k)
	}

	if _, err := h.Open("a", mono16k); !errors.Is(err, ErrClientConnected) {
		t.Errorf("duplicate Open error = %v, want ErrClientConnected", err)
	}

	s.Close()
	s.Close()
	if _, err := h.Resolve("a"); !errors.Is(err, ErrNoStream) {
		t.Errorf("Resolve after Close error = %v, want ErrNoStream", err)
	}
	if _, err := h.Open("a", mono16k); err != nil {
		t.Errorf("reopen after Close: %v", err)
	}
}

func TestHub_OpenValidation(t *testing.T) {
	t.Parallel()

	h := NewHub()
	if _, err := h.Open("", mono16k); err == nil {
		t.Error("Open with empty client ID succeeded")
	}
	if _, err := h.Open("a", audio.Format{SampleRate: 16000, Channels: 5}); err == nil {
		t.Error("Open with invalid format succeeded")
	}
}

func TestHub_Events(t *testing.T) {
	t.Parallel()

	h := NewHub()
	var (
		mu     sync.Mutex
		events []audio.Event
	)
	h.OnClientChange(func(ev audio.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	s, err := h.Open("phone-7", mono16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("events = %v, want connect and disconnect", events)
	}
	if events[0].Type != audio.EventConnect || events[0].ClientID != "phone-7" || events[0].Format != mono16k {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Type != audio.EventDisconnect || events[1].ClientID != "phone-7" {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestHub_ClientsAndClose(t *testing.T) {
	t.Parallel()

	h := NewHub()
	for _, id := range []string{"c", "a", "b"} {
		if _, err := h.Open(id, mono16k); err != nil {
			t.Fatalf("Open(%s): %v", id, err)
		}
	}
	if got := h.Clients(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Clients = %v", got)
	}

	src, _ := h.Resolve("b")
	frames, _ := src.Subscribe()

	h.Close()
	if got := h.Clients(); len(got) != 0 {
		t.Errorf("Clients after Close = %v", got)
	}
	if _, ok := <-frames; ok {
		t.Error("subscriber channel still open after hub Close")
	}
}

func TestStream_PublishFanOut(t *testing.T) {
	t.Parallel()

	h := NewHub()
	s, err := h.Open("a", mono16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	f1, cancel1 := s.Subscribe()
	f2, cancel2 := s.Subscribe()
	defer cancel2()

	frame := audio.AudioFrame{Data: []byte{1, 0}, SampleRate: 16000, Channels: 1}
	if got := s.Publish(frame); got != 2 {
		t.Errorf("Publish delivered to %d, want 2", got)
	}
	for i, ch := range []<-chan audio.AudioFrame{f1, f2} {
		if got := <-ch; got.Data[0] != 1 {
			t.Errorf("subscriber %d got %v", i, got.Data)
		}
	}

	cancel1()
	cancel1()
	if _, ok := <-f1; ok {
		t.Error("cancelled subscriber channel still open")
	}
	if got := s.Publish(frame); got != 1 {
		t.Errorf("Publish after cancel delivered to %d, want 1", got)
	}
}

func TestStream_PublishNeverBlocks(t *testing.T) {
	t.Parallel()

	h := NewHub()
	s, err := h.Open("a", mono16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_, cancel := s.Subscribe() // never read
	defer cancel()

	frame := audio.AudioFrame{Data: []byte{0, 0}, SampleRate: 16000, Channels: 1}
	for range subscriberBuffer + 10 {
		s.Publish(frame)
	}
	if got := s.Dropped(); got != 10 {
		t.Errorf("Dropped = %d, want 10", got)
	}
}

func TestStream_SubscribeAfterClose(t *testing.T) {
	t.Parallel()

	h := NewHub()
	s, err := h.Open("a", mono16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after Close")
	}

	frames, cancel := s.Subscribe()
	cancel()
	if _, ok := <-frames; ok {
		t.Error("Subscribe on closed stream returned an open channel")
	}
}
