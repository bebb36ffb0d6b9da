package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/internal/recorder/capture"
)

// ErrDeviceNotRegistered is returned by [Registry.CreateDevice] when no
// builder has been registered under the requested device name.
var ErrDeviceNotRegistered = errors.New("config: recording device not registered")

// DeviceBuilder turns the recorder section into a factory of recording
// devices reading from sources.
type DeviceBuilder func(cfg RecorderConfig, sources capture.SourceResolver) (recorder.DeviceFactory, error)

// Registry maps recording device names to their builders. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]DeviceBuilder
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]DeviceBuilder)}
}

// RegisterDevice registers a device builder under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevice(name string, builder DeviceBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = builder
}

// CreateDevice builds the device factory selected by cfg.Device.Name.
// Returns [ErrDeviceNotRegistered] if no builder has been registered for
// that name.
func (r *Registry) CreateDevice(cfg RecorderConfig, sources capture.SourceResolver) (recorder.DeviceFactory, error) {
	r.mu.RLock()
	builder, ok := r.devices[cfg.Device.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotRegistered, cfg.Device.Name)
	}
	return builder(cfg, sources)
}

// Devices returns the registered device names, sorted.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
