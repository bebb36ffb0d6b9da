// Package app wires all museguide subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithDeviceFactory,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config and registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/museguide/internal/api"
	"github.com/MrWong99/museguide/internal/chat"
	"github.com/MrWong99/museguide/internal/config"
	"github.com/MrWong99/museguide/internal/exhibit"
	"github.com/MrWong99/museguide/internal/health"
	"github.com/MrWong99/museguide/internal/ingest"
	"github.com/MrWong99/museguide/internal/observe"
	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/internal/resilience"
	"github.com/MrWong99/museguide/pkg/audio"
)

// serverShutdownTimeout bounds the graceful HTTP shutdown at the end of Run.
const serverShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the guide over HTTP.
type App struct {
	cfg        *config.Config
	registry   *config.Registry
	configPath string
	watchEvery time.Duration

	// Subsystems: initialised in New, torn down in Shutdown.
	level     *slog.LevelVar
	metrics   *observe.Metrics
	features  *exhibit.MemStore
	guide     *chat.Service
	hub       *ingest.Hub
	newDevice recorder.DeviceFactory
	recorders *recorder.Pool
	breaker   *resilience.CircuitBreaker
	watcher   *config.Watcher
	handler   http.Handler
	server    *http.Server

	mu          sync.Mutex
	addr        net.Addr
	catalogPath string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogLevel hands New the level variable of the default logger so log
// level changes can be applied without a restart.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects the metric instruments instead of using
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithDeviceFactory injects the recording device factory instead of
// building one from the registry.
func WithDeviceFactory(f recorder.DeviceFactory) Option {
	return func(a *App) { a.newDevice = f }
}

// WithConfigWatch makes New watch the config file at path, and the catalog
// it references, and apply changes while running.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchEvery = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The registry comes
// from main.go and supplies the recording device named in the config. Use
// Option functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: catalog loading, recording
// directory creation, device construction and HTTP route registration.
func New(ctx context.Context, cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: registry,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Feature catalog ───────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Guide ─────────────────────────────────────────────────────────
	a.guide = chat.New(a.features,
		chat.WithFuzzyThreshold(cfg.Guide.FuzzyThreshold),
		chat.WithConfidenceThreshold(cfg.Guide.ConfidenceThreshold),
		chat.WithMetrics(a.metrics),
	)

	// ── 3. Audio ingest ──────────────────────────────────────────────────
	a.hub = ingest.NewHub()
	a.closers = append(a.closers, func() error { a.hub.Close(); return nil })

	// ── 4. Recorders ─────────────────────────────────────────────────────
	if err := a.initRecorders(); err != nil {
		return nil, fmt.Errorf("app: init recorders: %w", err)
	}
	a.hub.OnClientChange(a.onClientChange)

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	// ── 6. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		var wopts []config.WatcherOption
		if a.watchEvery > 0 {
			wopts = append(wopts, config.WithInterval(a.watchEvery))
		}
		w, err := config.NewWatcher(a.configPath, a.Reload, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error { w.Stop(); return nil })
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCatalog sets up the feature store and loads the catalog file.
func (a *App) initCatalog(ctx context.Context) error {
	a.features = exhibit.NewMemStore()

	path := a.cfg.Guide.CatalogFile
	a.catalogPath = path
	if path == "" {
		return nil
	}
	cat, err := exhibit.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	n, err := exhibit.ImportCatalog(ctx, a.features, cat)
	if err != nil {
		return err
	}
	slog.Info("imported catalog features", "path", path, "museum", cat.Museum.Name, "count", n)
	return nil
}

// initRecorders builds the device factory and the per-client recorder pool.
func (a *App) initRecorders() error {
	rc := a.cfg.Recorder
	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if a.newDevice == nil {
		if a.registry == nil {
			return errors.New("no device registry and no device factory")
		}
		f, err := a.registry.CreateDevice(rc, a.hub)
		if err != nil {
			return err
		}
		a.newDevice = f
	}

	// Clients that are not streaming are their own fault, not the disk's.
	a.breaker = resilience.New(resilience.Config{
		Name:      "recordings",
		IsFailure: func(err error) bool { return !errors.Is(err, ingest.ErrNoStream) },
		OnStateChange: func(name string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})

	ext := "." + strings.ToLower(rc.Format)
	pathFor := func(clientID, sessionID string) string {
		return filepath.Join(rc.OutputDir, safeName(clientID), sessionID+ext)
	}
	a.recorders = recorder.NewPool(a.newDevice, recorder.DeviceConfig{Format: rc.Format}, pathFor,
		recorder.WithMaxDuration(rc.MaxDuration),
		recorder.WithMinDuration(rc.MinDuration),
		recorder.WithMetrics(a.metrics),
		recorder.WithBreaker(a.breaker),
	)
	a.closers = append(a.closers, func() error { a.recorders.ReleaseAll(); return nil })
	return nil
}

// initHTTP builds the route table and the server.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	api.New(a.guide, a.features, a.recorders).Register(mux)

	ingestOpts := []ingest.HandlerOption{
		ingest.WithMetrics(a.metrics),
		ingest.WithOriginPatterns(a.cfg.Ingest.OriginPatterns...),
	}
	if a.cfg.Ingest.HeaderTimeout > 0 {
		ingestOpts = append(ingestOpts, ingest.WithHeaderTimeout(a.cfg.Ingest.HeaderTimeout))
	}
	mux.Handle("GET /v1/clients/{id}/audio", ingest.NewHandler(a.hub, ingestOpts...))

	health.New(a.readinessCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// readinessCheckers returns the /readyz checks: a configured catalog must
// have features, the recordings directory must accept files and device
// acquisition must not be failing.
func (a *App) readinessCheckers() []health.Checker {
	return []health.Checker{
		{Name: "catalog", Check: func(context.Context) error {
			a.mu.Lock()
			configured := a.catalogPath != ""
			a.mu.Unlock()
			if configured && a.features.Len() == 0 {
				return errors.New("no features loaded")
			}
			return nil
		}},
		health.DirWritable("recordings", a.cfg.Recorder.OutputDir),
		{Name: "recorder", Check: func(context.Context) error {
			if st := a.breaker.State(); st == resilience.StateOpen {
				return fmt.Errorf("device breaker %s", st)
			}
			return nil
		}},
	}
}

// onClientChange finishes a client's recording when its audio stream ends,
// keeping what was captured so far.
func (a *App) onClientChange(ev audio.Event) {
	if ev.Type != audio.EventDisconnect {
		return
	}
	c, ok := a.recorders.Lookup(ev.ClientID)
	if !ok || c.State() == recorder.StateIdle {
		return
	}
	slog.Info("stopping recording of disconnected client", "client_id", ev.ClientID, "session_id", c.SessionID())
	go c.Stop()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the server fails. It returns
// ctx.Err() after a clean stop.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	slog.Info("app running", "addr", ln.Addr().String(), "features", a.features.Len())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Addr returns the address Run is listening on, or nil before Run starts.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new: log
// level, guide thresholds and the feature catalog. A catalog that fails to
// load leaves the current one in place.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.ThresholdsChanged {
		a.guide.SetThresholds(d.NewFuzzyThreshold, d.NewConfidenceThreshold)
		slog.Info("guide thresholds changed",
			"fuzzy_threshold", d.NewFuzzyThreshold,
			"confidence_threshold", d.NewConfidenceThreshold,
		)
	}

	if d.CatalogChanged {
		if err := a.reloadCatalog(d.NewCatalogFile); err != nil {
			slog.Warn("catalog reload failed; keeping the current catalog", "path", d.NewCatalogFile, "err", err)
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes take effect after a restart", "sections", d.RestartRequired)
	}
}

func (a *App) reloadCatalog(path string) error {
	var features []exhibit.Feature
	if path != "" {
		cat, err := exhibit.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		features = cat.Features
	}
	n, err := a.features.Replace(context.Background(), features)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.catalogPath = path
	a.mu.Unlock()
	slog.Info("catalog reloaded", "path", path, "count", n)
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// safeName maps a client ID to a single path element.
func safeName(id string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
	if clean == "" || strings.Trim(clean, ".") == "" {
		return "_" + clean
	}
	return clean
}
