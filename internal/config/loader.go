package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/museguide/internal/chat"
	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/pkg/audio"
)

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr  = ":8080"
	DefaultOutputDir   = "recordings"
	DefaultDevice      = "wav"
	DefaultServiceName = "museguide"
)

// ValidDeviceNames lists the built-in recording devices. Used by [Validate]
// to warn about unrecognised device names.
var ValidDeviceNames = []string{"wav"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Relative catalog and output paths are resolved against the
// directory of path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	resolvePaths(cfg, filepath.Dir(path))
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Guide.FuzzyThreshold == 0 {
		cfg.Guide.FuzzyThreshold = chat.DefaultFuzzyThreshold
	}
	if cfg.Guide.ConfidenceThreshold == 0 {
		cfg.Guide.ConfidenceThreshold = chat.DefaultConfidenceThreshold
	}

	rc := &cfg.Recorder
	if rc.Device.Name == "" {
		rc.Device.Name = DefaultDevice
	}
	if rc.OutputDir == "" {
		rc.OutputDir = DefaultOutputDir
	}
	if rc.Format == "" {
		rc.Format = "wav"
	}
	if rc.SampleRate == 0 {
		rc.SampleRate = 16000
	}
	if rc.Channels == 0 {
		rc.Channels = 1
	}
	if rc.MaxDuration == 0 {
		rc.MaxDuration = recorder.DefaultMaxDuration
	}
	if rc.MinDuration == 0 {
		rc.MinDuration = recorder.DefaultMinDuration
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Guide
	if err := checkRatio("guide.fuzzy_threshold", cfg.Guide.FuzzyThreshold); err != nil {
		errs = append(errs, err)
	}
	if err := checkRatio("guide.confidence_threshold", cfg.Guide.ConfidenceThreshold); err != nil {
		errs = append(errs, err)
	}
	if cfg.Guide.CatalogFile == "" {
		slog.Warn("guide.catalog_file is empty; the guide starts without any features")
	}

	// Recorder
	rc := cfg.Recorder
	validateDeviceName(rc.Device.Name)
	if !strings.EqualFold(rc.Format, "wav") {
		errs = append(errs, fmt.Errorf("recorder.format %q is invalid; valid values: wav", rc.Format))
	}
	format := audio.Format{SampleRate: rc.SampleRate, Channels: rc.Channels}
	if err := format.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if rc.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("recorder.max_duration %s must be positive", rc.MaxDuration))
	}
	if rc.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("recorder.min_duration %s must not be negative", rc.MinDuration))
	}
	if rc.MaxDuration > 0 && rc.MinDuration > rc.MaxDuration {
		errs = append(errs, fmt.Errorf("recorder.min_duration %s exceeds max_duration %s", rc.MinDuration, rc.MaxDuration))
	}

	// Ingest
	if cfg.Ingest.HeaderTimeout < 0 {
		errs = append(errs, fmt.Errorf("ingest.header_timeout %s must not be negative", cfg.Ingest.HeaderTimeout))
	}

	return errors.Join(errs...)
}

func checkRatio(field string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s %.2f is out of range (0, 1]", field, v)
	}
	return nil
}

// validateDeviceName logs a warning if name is non-empty and not one of
// [ValidDeviceNames].
func validateDeviceName(name string) {
	if name == "" || slices.Contains(ValidDeviceNames, name) {
		return
	}
	slog.Warn("unknown recording device; it must be registered before startup",
		"name", name,
		"known", ValidDeviceNames,
	)
}

// resolvePaths makes relative file paths in cfg relative to dir.
func resolvePaths(cfg *Config, dir string) {
	for _, p := range []*string{&cfg.Guide.CatalogFile, &cfg.Recorder.OutputDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}
