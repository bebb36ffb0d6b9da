package recorder

// DeviceConfig describes where a device reads audio from and where it writes.
type DeviceConfig struct {
	// Source names the audio input, e.g. the client ID of an ingest stream.
	Source string

	// Format is the container written to OutputPath, e.g. "wav".
	Format string

	// OutputPath is the file the recording is written to.
	OutputPath string
}

// Device is a single-use recording handle. The [Controller] drives it
// through Configure, Prepare, Start, Stop and finally Release, and never
// reuses a device across sessions.
//
// Implementations must tolerate Release being called at any point after
// construction, including after a failed Configure or Prepare, and Stop and
// Release being called more than once.
type Device interface {
	Configure(cfg DeviceConfig) error
	Prepare() error
	Start() error
	Stop() error
	Release() error
}

// DeviceFactory creates a fresh [Device] for one session.
type DeviceFactory func() (Device, error)
