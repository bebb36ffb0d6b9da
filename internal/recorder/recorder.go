// Package recorder controls the lifecycle of voice recordings.
//
// A [Controller] owns at most one recording session at a time and moves
// through Idle, Recording and Stopping. Every session is bounded: a timer
// stops it after the maximum duration, and a stop requested too early is
// held back until the minimum duration has elapsed so the device always
// writes a usable file. The completion callback fires exactly once per
// session that ends through Stop or the timer; sessions torn down with
// Release end silently.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/museguide/internal/observe"
	"github.com/MrWong99/museguide/internal/resilience"
)

// Default session bounds.
const (
	DefaultMaxDuration = 30 * time.Second
	DefaultMinDuration = 300 * time.Millisecond
)

// Stop reasons reported in [Status] and metrics.
const (
	ReasonStop        = "stop"
	ReasonMaxDuration = "max_duration"
)

// ErrNotIdle is returned by [Controller.Start] while a session is active.
var ErrNotIdle = errors.New("recorder: a recording is already in progress")

// State is the lifecycle state of a [Controller].
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "recording":
		*s = StateRecording
	case "stopping":
		*s = StateStopping
	default:
		return fmt.Errorf("recorder: unknown state %q", b)
	}
	return nil
}

// Status is a snapshot of a [Controller]. While idle, the session fields
// describe the most recent session, if any.
type Status struct {
	State      State     `json:"state"`
	SessionID  string    `json:"session_id,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`

	// Completed is true when the last session ended through Stop or the
	// max-duration timer and its completion callback fired.
	Completed   bool          `json:"completed"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithMaxDuration sets how long a session may run before it is stopped
// automatically. Non-positive values are ignored.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.maxDuration = d
		}
	}
}

// WithMinDuration sets the shortest session length. A Stop that arrives
// earlier blocks until it has elapsed. Negative values are ignored.
func WithMinDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.minDuration = d
		}
	}
}

// WithOnCompleted registers fn to run once for every session that completes.
// It runs on the goroutine that stopped the session.
func WithOnCompleted(fn func()) Option {
	return func(c *Controller) { c.onCompleted = fn }
}

// WithMetrics records session counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOutputPath derives each session's output file from its session ID.
// By default every session writes to the configured DeviceConfig.OutputPath.
func WithOutputPath(fn func(sessionID string) string) Option {
	return func(c *Controller) { c.pathFor = fn }
}

// WithBreaker guards device acquisition with b. While b is open, Start fails
// fast with an error wrapping [resilience.ErrCircuitOpen]. One breaker may be
// shared by many controllers writing to the same disk.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(c *Controller) { c.breaker = b }
}

// Controller runs recording sessions on devices obtained from a
// [DeviceFactory]. All methods are safe for concurrent use.
type Controller struct {
	newDevice   DeviceFactory
	cfg         DeviceConfig
	maxDuration time.Duration
	minDuration time.Duration
	onCompleted func()
	metrics     *observe.Metrics
	logger      *slog.Logger
	pathFor     func(sessionID string) string
	breaker     *resilience.CircuitBreaker

	mu      sync.Mutex
	current *session
	last    Status
}

type session struct {
	id      string
	path    string
	device  Device
	started time.Time
	timer   *time.Timer

	// stopping is guarded by Controller.mu.
	stopping bool

	// completed flips false→true exactly once, by whichever of Stop, the
	// timer or Release gets there first.
	completed atomic.Bool

	// done is closed by the completed winner once the device is released
	// and the controller no longer points at the session.
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// close stops and releases the device once.
func (s *session) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.device.Stop(), s.device.Release())
	})
	return s.closeErr
}

// New creates an idle Controller. cfg is passed to every device; its
// OutputPath is overridden per session when [WithOutputPath] is set.
func New(newDevice DeviceFactory, cfg DeviceConfig, opts ...Option) *Controller {
	c := &Controller{
		newDevice:   newDevice,
		cfg:         cfg,
		maxDuration: DefaultMaxDuration,
		minDuration: DefaultMinDuration,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.pathFor == nil {
		c.pathFor = func(string) string { return c.cfg.OutputPath }
	}
	return c
}

// Start begins a new session. It returns [ErrNotIdle] unless the controller
// is idle. If the device cannot be created, configured, prepared or started,
// the partially built device is released and the error is returned; the
// controller stays idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return ErrNotIdle
	}

	id := uuid.NewString()
	cfg := c.cfg
	cfg.OutputPath = c.pathFor(id)

	var dev Device
	err := c.guard(func() error {
		var err error
		dev, err = c.acquire(cfg)
		return err
	})
	if err != nil {
		return fmt.Errorf("recorder: start: %w", err)
	}

	s := &session{id: id, path: cfg.OutputPath, device: dev, started: time.Now(), done: make(chan struct{})}
	s.timer = time.AfterFunc(c.maxDuration, func() { c.stop(s, ReasonMaxDuration) })
	c.current = s

	if c.metrics != nil {
		c.metrics.ActiveRecordings.Add(context.Background(), 1)
	}
	c.logger.Info("recorder: session started",
		"session_id", id,
		"source", cfg.Source,
		"output", cfg.OutputPath,
		"max_duration", c.maxDuration,
	)
	return nil
}

func (c *Controller) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// acquire creates and readies a device, releasing it on any failure.
func (c *Controller) acquire(cfg DeviceConfig) (Device, error) {
	dev, err := c.newDevice()
	if err != nil {
		c.recordError("create")
		return nil, fmt.Errorf("create device: %w", err)
	}

	steps := []struct {
		stage string
		fn    func() error
	}{
		{"configure", func() error { return dev.Configure(cfg) }},
		{"prepare", dev.Prepare},
		{"start", dev.Start},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			c.recordError(st.stage)
			if rerr := dev.Release(); rerr != nil {
				c.logger.Warn("recorder: release after failed "+st.stage, "err", rerr)
			}
			return nil, fmt.Errorf("%s device: %w", st.stage, err)
		}
	}
	return dev, nil
}

// Stop ends the active session. It blocks until the session has run for at
// least the minimum duration, then stops and releases the device and fires
// the completion callback. Stop is a no-op while idle and safe to call
// concurrently with itself and with the max-duration timer; a call that
// loses the race returns only after the session has been finalised.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s != nil {
		c.stop(s, ReasonStop)
	}
}

func (c *Controller) stop(s *session, reason string) {
	c.mu.Lock()
	if c.current != s || s.completed.Load() {
		c.mu.Unlock()
		<-s.done
		return
	}
	s.timer.Stop()
	s.stopping = true
	c.mu.Unlock()

	if wait := c.minDuration - time.Since(s.started); wait > 0 {
		time.Sleep(wait)
	}

	if !s.completed.CompareAndSwap(false, true) {
		<-s.done
		return
	}

	err := s.close()
	elapsed := time.Since(s.started)

	status := Status{
		State:       StateIdle,
		SessionID:   s.id,
		OutputPath:  s.path,
		StartedAt:   s.started,
		Completed:   true,
		CompletedAt: time.Now(),
		Reason:      reason,
		Duration:    elapsed,
	}
	if err != nil {
		status.Error = err.Error()
	}

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.last = status
	c.mu.Unlock()
	close(s.done)

	if c.metrics != nil {
		ctx := context.Background()
		c.metrics.ActiveRecordings.Add(ctx, -1)
		c.metrics.RecordRecordingSession(ctx, reason, elapsed)
	}
	if err != nil {
		c.recordError("stop")
		c.logger.Warn("recorder: device did not shut down cleanly", "session_id", s.id, "err", err)
	}
	c.logger.Info("recorder: session completed",
		"session_id", s.id,
		"reason", reason,
		"duration", elapsed,
	)

	if c.onCompleted != nil {
		c.onCompleted()
	}
}

// Release tears down the active session without firing the completion
// callback. It is idempotent and leaves the controller idle.
func (c *Controller) Release() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	if s != nil {
		c.last = Status{
			State:      StateIdle,
			SessionID:  s.id,
			OutputPath: s.path,
			StartedAt:  s.started,
			Reason:     "released",
		}
	}
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.timer.Stop()
	won := s.completed.CompareAndSwap(false, true)
	if won && c.metrics != nil {
		c.metrics.ActiveRecordings.Add(context.Background(), -1)
	}
	if err := s.close(); err != nil {
		c.recordError("release")
		c.logger.Warn("recorder: release failed", "session_id", s.id, "err", err)
	}
	if won {
		close(s.done)
	}
	c.logger.Info("recorder: session released", "session_id", s.id)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.current == nil:
		return StateIdle
	case c.current.stopping:
		return StateStopping
	default:
		return StateRecording
	}
}

// SessionID returns the ID of the active session, or "" while idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// OutputPath returns the file of the active session, or of the most recent
// one while idle.
func (c *Controller) OutputPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.path
	}
	return c.last.OutputPath
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.current; s != nil {
		return Status{
			State:      c.stateLocked(),
			SessionID:  s.id,
			OutputPath: s.path,
			StartedAt:  s.started,
		}
	}
	return c.last
}

func (c *Controller) recordError(stage string) {
	if c.metrics != nil {
		c.metrics.RecordRecorderError(context.Background(), stage)
	}
}
