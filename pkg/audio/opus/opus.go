// Package opus decodes Opus packets streamed by clients into PCM frames.
package opus

import (
	"fmt"
	"slices"

	"layeh.com/gopus"

	"github.com/MrWong99/museguide/pkg/audio"
)

// Opus packets carry at most 120 ms of audio.
const maxPacketMs = 120

// validRates are the sample rates libopus can decode to.
var validRates = []int{8000, 12000, 16000, 24000, 48000}

// Decoder wraps a gopus Opus decoder for a single client stream. Each stream
// gets its own decoder to maintain decoder state across consecutive packets.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	dec       *gopus.Decoder
	format    audio.Format
	frameSize int
}

// NewDecoder creates a decoder producing PCM at the given format.
func NewDecoder(format audio.Format) (*Decoder, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	if !slices.Contains(validRates, format.SampleRate) {
		return nil, fmt.Errorf("opus: unsupported sample rate %d", format.SampleRate)
	}
	dec, err := gopus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{
		dec:       dec,
		format:    format,
		frameSize: format.SampleRate * maxPacketMs / 1000,
	}, nil
}

// Format returns the PCM format the decoder produces.
func (d *Decoder) Format() audio.Format {
	return d.format
}

// Decode decodes one Opus packet into little-endian int16 PCM.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("opus: decode: empty packet")
	}
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
