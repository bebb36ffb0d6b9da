// Package wav writes PCM16 audio as RIFF/WAVE files.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/MrWong99/museguide/pkg/audio"
)

const (
	// HeaderSize is the size of the canonical 44-byte PCM header.
	HeaderSize    = 44
	bitsPerSample = 16
)

// ErrClosed is returned when writing to a closed [Writer].
var ErrClosed = errors.New("wav: writer closed")

// ErrTooLarge is returned when the data would exceed the 4 GiB RIFF limit.
var ErrTooLarge = errors.New("wav: data exceeds RIFF size limit")

// Header returns a canonical PCM16 WAV header for dataSize bytes of audio.
func Header(format audio.Format, dataSize uint32) []byte {
	byteRate := format.SampleRate * format.Channels * bitsPerSample / 8
	blockAlign := format.Channels * bitsPerSample / 8

	buf := make([]byte, HeaderSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                        // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                         // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(format.Channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(format.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))          // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))        // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)             // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)
	return buf
}

// Encode returns pcm wrapped in a complete WAV file.
func Encode(pcm []byte, format audio.Format) []byte {
	return append(Header(format, uint32(len(pcm))), pcm...)
}

// Writer streams PCM16 audio into a WAV file whose final length is unknown
// up front. It writes a placeholder header on creation and patches the size
// fields on [Writer.Close]. Writer is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	ws     io.WriteSeeker
	format audio.Format
	size   uint32
	closed bool
}

// NewWriter writes a placeholder header to ws and returns a Writer that
// appends PCM after it. ws must be positioned at offset 0.
func NewWriter(ws io.WriteSeeker, format audio.Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	if _, err := ws.Write(Header(format, 0)); err != nil {
		return nil, fmt.Errorf("wav: write header: %w", err)
	}
	return &Writer{ws: ws, format: format}, nil
}

// Write appends little-endian int16 PCM.
func (w *Writer) Write(pcm []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if uint64(w.size)+uint64(len(pcm)) > math.MaxUint32-36 {
		return 0, ErrTooLarge
	}
	n, err := w.ws.Write(pcm)
	w.size += uint32(n)
	if err != nil {
		return n, fmt.Errorf("wav: write data: %w", err)
	}
	return n, nil
}

// DataSize returns the number of PCM bytes written so far.
func (w *Writer) DataSize() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Format returns the format recorded in the header.
func (w *Writer) Format() audio.Format {
	return w.format
}

// Close rewrites the header with the final sizes and leaves ws positioned
// at its end. It does not close ws. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek header: %w", err)
	}
	if _, err := w.ws.Write(Header(w.format, w.size)); err != nil {
		return fmt.Errorf("wav: patch header: %w", err)
	}
	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wav: seek end: %w", err)
	}
	return nil
}
