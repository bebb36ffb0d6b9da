package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher monitors a config file, and the catalog file it references, for
// changes and calls a callback when either is modified. It uses polling (not
// fsnotify) to keep dependencies minimal.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtimes [2]time.Time
	lastHash   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Load initial config.
	cfg, hash, mtimes, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtimes = mtimes

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine, checking the files periodically.
func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check re-reads the files and, if they have changed and the config is
// valid, calls onChange and updates the current config.
func (w *Watcher) check() {
	w.mu.Lock()
	catalog := w.current.Guide.CatalogFile
	mtimes := w.lastMtimes
	w.mu.Unlock()

	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	if info.ModTime().Equal(mtimes[0]) && modTime(catalog).Equal(mtimes[1]) {
		return
	}

	// Mtime changed: read and hash.
	cfg, hash, newMtimes, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastHash {
		// Files were touched but content is identical.
		w.lastMtimes = newMtimes
		w.mu.Unlock()
		return
	}

	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.lastMtimes = newMtimes
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// loadAndHash reads the config file, parses and validates it, then hashes
// it together with the catalog file it names. It returns the config, the
// combined SHA-256 and the modification times of both files. If the config
// is invalid, it returns an error (the caller should keep the old one). A
// missing catalog file is not an error here; loading the catalog reports it.
func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, [2]time.Time, error) {
	var (
		zeroHash [sha256.Size]byte
		mtimes   [2]time.Time
	)

	f, err := os.Open(w.path)
	if err != nil {
		return nil, zeroHash, mtimes, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, zeroHash, mtimes, err
	}
	mtimes[0] = info.ModTime()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, zeroHash, mtimes, err
	}
	data := buf.Bytes()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zeroHash, mtimes, err
	}
	resolvePaths(cfg, filepath.Dir(w.path))

	if cfg.Guide.CatalogFile != "" {
		mtimes[1] = modTime(cfg.Guide.CatalogFile)
		if catalog, err := os.ReadFile(cfg.Guide.CatalogFile); err == nil {
			cfg.catalogSum = sha256.Sum256(catalog)
		}
	}

	h := sha256.New()
	h.Write(data)
	h.Write(cfg.catalogSum[:])
	var hash [sha256.Size]byte
	copy(hash[:], h.Sum(nil))

	return cfg, hash, mtimes, nil
}

// modTime returns the modification time of path, or the zero time if it
// cannot be read.
func modTime(path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
