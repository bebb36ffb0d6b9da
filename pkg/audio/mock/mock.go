// Package mock provides an in-memory implementation of [audio.Source] for
// use in unit tests.
//
// The mock is safe for concurrent use. Tests push frames with
// [Source.Emit] and end the stream with [Source.Close]; every subscriber
// receives every frame (delivery blocks, unlike a real hub).
//
// Typical usage:
//
//	src := mock.NewSource(audio.Format{SampleRate: 16000, Channels: 1})
//	frames, cancel := src.Subscribe()
//	defer cancel()
//	src.Emit(audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"sync"

	"github.com/MrWong99/museguide/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu     sync.Mutex
	format audio.Format
	subs   map[int]chan audio.AudioFrame
	nextID int
	closed bool

	// CallCountSubscribe records how many times Subscribe was called.
	CallCountSubscribe int

	// CallCountCancel records how many subscriptions were cancelled.
	CallCountCancel int
}

// NewSource returns an open Source announcing format.
func NewSource(format audio.Format) *Source {
	return &Source{format: format, subs: make(map[int]chan audio.AudioFrame)}
}

// Subscribe implements [audio.Source]. Subscribing to a closed source
// returns an already closed channel.
func (s *Source) Subscribe() (<-chan audio.AudioFrame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountSubscribe++

	ch := make(chan audio.AudioFrame, 16)
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
			s.CallCountCancel++
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	return s.format
}

// Emit delivers f to every current subscriber.
func (s *Source) Emit(f audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		ch <- f
	}
}

// Subscribers returns the number of attached subscribers.
func (s *Source) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close ends the stream and closes every subscriber channel.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
