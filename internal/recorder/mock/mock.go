// Package mock provides an in-memory implementation of [recorder.Device]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every call so that tests
// can assert on call counts, arguments and timing, and exposes exported
// error fields that the test can set to control return values.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/museguide/internal/recorder"
)

var _ recorder.Device = (*Device)(nil)

// Device is a mock implementation of [recorder.Device].
// Set the exported Err fields before use; inspect the Call* fields through
// the accessor methods after.
type Device struct {
	mu sync.Mutex

	// ConfigureErr is returned by [Device.Configure].
	ConfigureErr error

	// PrepareErr is returned by [Device.Prepare].
	PrepareErr error

	// StartErr is returned by [Device.Start].
	StartErr error

	// StopErr is returned by [Device.Stop].
	StopErr error

	// ReleaseErr is returned by [Device.Release].
	ReleaseErr error

	// StopDelay makes [Device.Stop] block for this long before returning.
	StopDelay time.Duration

	config   recorder.DeviceConfig
	calls    map[string]int
	started  time.Time
	released time.Time
}

func (d *Device) record(name string) {
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[name]++
}

// Configure implements [recorder.Device].
func (d *Device) Configure(cfg recorder.DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Configure")
	d.config = cfg
	return d.ConfigureErr
}

// Prepare implements [recorder.Device].
func (d *Device) Prepare() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Prepare")
	return d.PrepareErr
}

// Start implements [recorder.Device].
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Start")
	if d.StartErr == nil {
		d.started = time.Now()
	}
	return d.StartErr
}

// Stop implements [recorder.Device].
func (d *Device) Stop() error {
	d.mu.Lock()
	d.record("Stop")
	delay, err := d.StopDelay, d.StopErr
	d.mu.Unlock()
	time.Sleep(delay)
	return err
}

// Release implements [recorder.Device]. The time of the first call is kept.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Release")
	if d.released.IsZero() {
		d.released = time.Now()
	}
	return d.ReleaseErr
}

// Calls returns how many times the named method was called.
func (d *Device) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// Config returns the configuration passed to Configure.
func (d *Device) Config() recorder.DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// StartedAt returns when Start last succeeded.
func (d *Device) StartedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// ReleasedAt returns when Release was first called, or the zero time.
func (d *Device) ReleasedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Factory hands out the devices it was built with, one per call, and fails
// once they run out.
type Factory struct {
	mu      sync.Mutex
	devices []*Device
	next    int

	// Err, when set, is returned by every call.
	Err error
}

// NewFactory returns a factory serving devices in order.
func NewFactory(devices ...*Device) *Factory {
	return &Factory{devices: devices}
}

// New implements [recorder.DeviceFactory].
func (f *Factory) New() (recorder.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.next >= len(f.devices) {
		f.devices = append(f.devices, &Device{})
	}
	d := f.devices[f.next]
	f.next++
	return d, nil
}

// Created returns the devices handed out so far.
func (f *Factory) Created() []*Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Device(nil), f.devices[:f.next]...)
}
