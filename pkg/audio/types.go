// Package audio holds the frame type and PCM plumbing shared by the ingest
// and recording paths.
//
// Audio enters museguide as frames of little-endian signed 16-bit PCM. A
// [Source] fans one live stream out to any number of subscribers; consumers
// normalise frames to the format they need with a [FormatConverter].
package audio

import (
	"fmt"
	"time"
)

// AudioFrame represents a single frame of audio data flowing through the
// service. Frames are captured by a client, decoded by ingest and consumed by
// recorders.
type AudioFrame struct {
	// PCM audio data, little-endian int16, channels interleaved.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for Opus, 16000 for speech recordings).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns how much audio the frame holds.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels"`
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Validate reports whether f describes a usable PCM stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("audio: channels must be 1 or 2, got %d", f.Channels)
	}
	return nil
}
