package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ThresholdsChanged is true if either guide threshold changed.
	ThresholdsChanged      bool
	NewFuzzyThreshold      float64
	NewConfidenceThreshold float64

	// CatalogChanged is true if the catalog file path or its content
	// changed.
	CatalogChanged bool
	NewCatalogFile string

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Guide
	if old.Guide.FuzzyThreshold != new.Guide.FuzzyThreshold ||
		old.Guide.ConfidenceThreshold != new.Guide.ConfidenceThreshold {
		d.ThresholdsChanged = true
		d.NewFuzzyThreshold = new.Guide.FuzzyThreshold
		d.NewConfidenceThreshold = new.Guide.ConfidenceThreshold
	}
	if old.Guide.CatalogFile != new.Guide.CatalogFile || old.catalogSum != new.catalogSum {
		d.CatalogChanged = true
		d.NewCatalogFile = new.Guide.CatalogFile
	}

	// Everything else is wired at startup.
	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameRecorder(old.Recorder, new.Recorder) {
		d.RestartRequired = append(d.RestartRequired, "recorder")
	}
	if !sameIngest(old.Ingest, new.Ingest) {
		d.RestartRequired = append(d.RestartRequired, "ingest")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameRecorder(a, b RecorderConfig) bool {
	return a.Device.Name == b.Device.Name &&
		reflect.DeepEqual(a.Device.Options, b.Device.Options) &&
		a.OutputDir == b.OutputDir &&
		a.Format == b.Format &&
		a.SampleRate == b.SampleRate &&
		a.Channels == b.Channels &&
		a.MaxDuration == b.MaxDuration &&
		a.MinDuration == b.MinDuration
}

func sameIngest(a, b IngestConfig) bool {
	return a.HeaderTimeout == b.HeaderTimeout && slices.Equal(a.OriginPatterns, b.OriginPatterns)
}
