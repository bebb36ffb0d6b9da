package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/museguide/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "fuzzy threshold above one",
			yaml:    "guide:\n  fuzzy_threshold: 1.5\n",
			wantErr: "guide.fuzzy_threshold",
		},
		{
			name:    "negative confidence threshold",
			yaml:    "guide:\n  confidence_threshold: -0.1\n",
			wantErr: "guide.confidence_threshold",
		},
		{
			name:    "unsupported format",
			yaml:    "recorder:\n  format: mp3\n",
			wantErr: "recorder.format",
		},
		{
			name:    "too many channels",
			yaml:    "recorder:\n  channels: 6\n",
			wantErr: "channels",
		},
		{
			name:    "min above max",
			yaml:    "recorder:\n  max_duration: 1s\n  min_duration: 2s\n",
			wantErr: "exceeds max_duration",
		},
		{
			name:    "negative header timeout",
			yaml:    "ingest:\n  header_timeout: -1s\n",
			wantErr: "ingest.header_timeout",
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: c.pem\n",
			wantErr: "server.tls",
		},
		{
			name: "upper-case format is fine",
			yaml: "recorder:\n  format: WAV\n",
		},
		{
			name: "unknown device only warns",
			yaml: "recorder:\n  device:\n    name: tape\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
guide:
  fuzzy_threshold: 2
recorder:
  sample_rate: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "fuzzy_threshold", "sample rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidDeviceNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidDeviceNames) == 0 {
		t.Fatal("ValidDeviceNames is empty")
	}
	if config.ValidDeviceNames[0] != config.DefaultDevice {
		t.Errorf("default device %q is not listed first", config.DefaultDevice)
	}
}
