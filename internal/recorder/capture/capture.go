// Package capture implements [recorder.Device] on top of a live
// [audio.Source], writing the subscribed stream to a WAV file.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/pkg/audio"
	"github.com/MrWong99/museguide/pkg/audio/wav"
)

// FormatWAV is the only container the capture device writes.
const FormatWAV = "wav"

var (
	// ErrUnsupportedFormat is returned by Configure for containers other
	// than WAV.
	ErrUnsupportedFormat = errors.New("capture: unsupported output format")

	// ErrState is returned when a lifecycle method is called out of order.
	ErrState = errors.New("capture: invalid device state")
)

// SourceResolver looks up a live audio source by name.
type SourceResolver interface {
	Resolve(name string) (audio.Source, error)
}

// DefaultFormat is what recordings are written as unless overridden: 16 kHz
// mono suits speech recognisers downstream.
var DefaultFormat = audio.Format{SampleRate: 16000, Channels: 1}

type state int

const (
	stateNew state = iota
	stateConfigured
	statePrepared
	stateStarted
	stateStopped
	stateReleased
)

// Option is a functional option for configuring a [Device].
type Option func(*Device)

// WithFormat sets the PCM format written to the file. Incoming frames are
// converted to it.
func WithFormat(f audio.Format) Option {
	return func(d *Device) { d.format = f }
}

// Device records one session from an [audio.Source] into a WAV file. All
// methods are safe for concurrent use.
type Device struct {
	resolver SourceResolver
	format   audio.Format

	mu      sync.Mutex
	state   state
	cfg     recorder.DeviceConfig
	src     audio.Source
	file    *os.File
	writer  *wav.Writer
	cancel  func()
	done    chan struct{}
	copyErr error
}

var _ recorder.Device = (*Device)(nil)

// New creates an unconfigured Device.
func New(resolver SourceResolver, opts ...Option) *Device {
	d := &Device{resolver: resolver, format: DefaultFormat}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Factory returns a [recorder.DeviceFactory] producing fresh capture devices.
func Factory(resolver SourceResolver, opts ...Option) recorder.DeviceFactory {
	return func() (recorder.Device, error) {
		return New(resolver, opts...), nil
	}
}

// Configure resolves the source and checks the output settings.
func (d *Device) Configure(cfg recorder.DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateNew {
		return fmt.Errorf("%w: already configured", ErrState)
	}
	if f := strings.ToLower(cfg.Format); f != "" && f != FormatWAV {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
	}
	if cfg.OutputPath == "" {
		return errors.New("capture: output path is required")
	}
	if err := d.format.Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	src, err := d.resolver.Resolve(cfg.Source)
	if err != nil {
		return fmt.Errorf("capture: resolve source %q: %w", cfg.Source, err)
	}

	d.cfg = cfg
	d.src = src
	d.state = stateConfigured
	return nil
}

// Prepare creates the output file and writes a placeholder header.
func (d *Device) Prepare() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateConfigured {
		return fmt.Errorf("%w: prepare before configure", ErrState)
	}
	if err := os.MkdirAll(filepath.Dir(d.cfg.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: create output dir: %w", err)
	}
	f, err := os.Create(d.cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("capture: create output: %w", err)
	}
	w, err := wav.NewWriter(f, d.format)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("capture: %w", err)
	}

	d.file = f
	d.writer = w
	d.state = statePrepared
	return nil
}

// Start subscribes to the source and begins copying audio to the file.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != statePrepared {
		return fmt.Errorf("%w: start before prepare", ErrState)
	}

	frames, cancel := d.src.Subscribe()
	converted := audio.ConvertStream(frames, d.format)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.state = stateStarted

	go d.copy(converted, d.writer, d.done)
	return nil
}

func (d *Device) copy(frames <-chan audio.AudioFrame, w *wav.Writer, done chan struct{}) {
	defer close(done)
	for f := range frames {
		if _, err := w.Write(f.Data); err != nil {
			d.mu.Lock()
			d.copyErr = err
			d.mu.Unlock()
			slog.Warn("capture: write failed, dropping remaining audio", "path", d.cfg.OutputPath, "err", err)
			audio.Drain(frames)
			return
		}
	}
}

// Stop detaches from the source, waits for buffered audio to be written and
// finalises the WAV header. Calling Stop on a device that never started is a
// no-op.
func (d *Device) Stop() error {
	d.mu.Lock()
	if d.state != stateStarted {
		d.mu.Unlock()
		return nil
	}
	d.state = stateStopped
	cancel, done, w := d.cancel, d.done, d.writer
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(d.copyErr, w.Close())
}

// Release stops the device if needed and closes the output file.
func (d *Device) Release() error {
	stopErr := d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateReleased {
		return nil
	}
	d.state = stateReleased

	var errs []error
	if d.writer != nil {
		errs = append(errs, d.writer.Close())
	}
	if d.file != nil {
		errs = append(errs, d.file.Close())
	}
	return errors.Join(append(errs, stopErr)...)
}

// DataSize returns the number of PCM bytes written so far.
func (d *Device) DataSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer == nil {
		return 0
	}
	return d.writer.DataSize()
}
