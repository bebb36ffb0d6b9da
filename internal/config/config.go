// Package config provides the configuration schema, loader, device registry
// and hot-reload watcher for the museguide server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the museguide server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for museguide.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Guide     GuideConfig     `yaml:"guide"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// catalogSum is the SHA-256 of the catalog file as last seen by a
	// [Watcher]. It lets [Diff] notice catalog edits.
	catalogSum [32]byte
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// GuideConfig configures the chat and recognition service.
type GuideConfig struct {
	// CatalogFile is the YAML feature catalog loaded at startup and
	// reloaded when it changes. Relative paths are resolved against the
	// directory of the config file.
	CatalogFile string `yaml:"catalog_file"`

	// FuzzyThreshold is the per-word similarity in (0, 1] used when no
	// feature name appears verbatim in a message.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// ConfidenceThreshold is the minimum classifier confidence in (0, 1]
	// for an image recognition result to count.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// RecorderConfig configures voice recording.
type RecorderConfig struct {
	// Device selects the recording device registered in the [Registry].
	Device DeviceEntry `yaml:"device"`

	// OutputDir receives one sub-directory per client holding its
	// recordings. Relative paths are resolved against the directory of the
	// config file.
	OutputDir string `yaml:"output_dir"`

	// Format is the container written by the device (e.g., "wav").
	Format string `yaml:"format"`

	// SampleRate and Channels describe the recorded audio; incoming audio
	// is converted as needed.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// MaxDuration stops a recording automatically (e.g., "30s").
	MaxDuration time.Duration `yaml:"max_duration"`

	// MinDuration is the shortest recording; earlier stop requests wait.
	MinDuration time.Duration `yaml:"min_duration"`
}

// DeviceEntry names a recording device implementation.
type DeviceEntry struct {
	// Name selects the registered device (e.g., "wav").
	Name string `yaml:"name"`

	// Options holds device-specific values. May be nil.
	Options map[string]any `yaml:"options"`
}

// IngestConfig configures the websocket audio ingest endpoint.
type IngestConfig struct {
	// OriginPatterns lists additional allowed Origin host patterns for
	// browser clients (e.g., "*.museum.example").
	OriginPatterns []string `yaml:"origin_patterns"`

	// HeaderTimeout bounds how long a client may take to announce its
	// stream format after connecting.
	HeaderTimeout time.Duration `yaml:"header_timeout"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service.name resource.
	ServiceName string `yaml:"service_name"`
}
