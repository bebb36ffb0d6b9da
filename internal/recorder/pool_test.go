package recorder_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/internal/recorder/mock"
)

func TestPool_RecorderPerClient(t *testing.T) {
	t.Parallel()

	f := mock.NewFactory()
	p := recorder.NewPool(f.New, recorder.DeviceConfig{Format: "wav"},
		func(clientID, sessionID string) string {
			return filepath.Join("/rec", clientID, sessionID+".wav")
		},
		recorder.WithMinDuration(0),
	)

	a := p.Recorder("alice")
	if again := p.Recorder("alice"); again != a {
		t.Error("Recorder returned a different controller for the same client")
	}
	b := p.Recorder("bob")
	if a == b {
		t.Fatal("clients share a controller")
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start alice: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start bob: %v", err)
	}

	devs := f.Created()
	if len(devs) != 2 {
		t.Fatalf("devices created = %d, want 2", len(devs))
	}
	for i, want := range []string{"alice", "bob"} {
		cfg := devs[i].Config()
		if cfg.Source != want {
			t.Errorf("device %d Source = %q, want %q", i, cfg.Source, want)
		}
		if cfg.Format != "wav" {
			t.Errorf("device %d Format = %q, want wav", i, cfg.Format)
		}
	}
	if got, want := devs[0].Config().OutputPath, filepath.Join("/rec", "alice", a.SessionID()+".wav"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}

	if got := p.Clients(); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Errorf("Clients = %v", got)
	}

	p.ReleaseAll()
	for _, c := range []*recorder.Controller{a, b} {
		if c.State() != recorder.StateIdle {
			t.Errorf("State after ReleaseAll = %v, want idle", c.State())
		}
	}
	for i, d := range devs {
		if d.Calls("Release") != 1 {
			t.Errorf("device %d released %d times, want 1", i, d.Calls("Release"))
		}
	}
}

func TestPool_LookupDoesNotCreate(t *testing.T) {
	t.Parallel()

	p := recorder.NewPool(mock.NewFactory().New, recorder.DeviceConfig{OutputPath: "/tmp/x.wav"}, nil)
	if _, ok := p.Lookup("ghost"); ok {
		t.Error("Lookup found a controller that was never created")
	}
	if got := p.Clients(); len(got) != 0 {
		t.Errorf("Clients = %v, want empty", got)
	}

	c := p.Recorder("ghost")
	if got, ok := p.Lookup("ghost"); !ok || got != c {
		t.Error("Lookup did not return the created controller")
	}
	if got := c.OutputPath(); got != "" {
		t.Errorf("OutputPath before any session = %q, want empty", got)
	}
}

func TestPool_FailedStartLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	f := mock.NewFactory()
	f.Err = errors.New("client not streaming")
	p := recorder.NewPool(f.New, recorder.DeviceConfig{Format: "wav", OutputPath: "/tmp/x.wav"}, nil)

	for i := range 1000 {
		if err := p.Start(fmt.Sprintf("made-up-%d", i)); err == nil {
			t.Fatal("Start succeeded with a failing factory")
		}
	}
	if got := p.Clients(); len(got) != 0 {
		t.Errorf("controllers retained after failed starts: %d", len(got))
	}
}

func TestPool_StartKeepsRecordingClients(t *testing.T) {
	t.Parallel()

	bad := &mock.Device{PrepareErr: errors.New("disk full")}
	f := mock.NewFactory(&mock.Device{}, bad)
	p := recorder.NewPool(f.New, recorder.DeviceConfig{Format: "wav", OutputPath: "/tmp/x.wav"}, nil,
		recorder.WithMinDuration(0))

	if err := p.Start("alice"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c, ok := p.Lookup("alice")
	if !ok || c.State() != recorder.StateRecording {
		t.Fatal("started client not in the pool")
	}
	c.Stop()

	// A later failure must not drop the finished session's status.
	if err := p.Start("alice"); err == nil {
		t.Fatal("second Start succeeded on a failing device")
	}
	if got, ok := p.Lookup("alice"); !ok || got != c || !got.Status().Completed {
		t.Error("client with a completed session was evicted after a failed start")
	}
}

func TestPool_StartDoesNotEvictHandedOutController(t *testing.T) {
	t.Parallel()

	f := mock.NewFactory()
	f.Err = errors.New("no device")
	p := recorder.NewPool(f.New, recorder.DeviceConfig{Format: "wav", OutputPath: "/tmp/x.wav"}, nil)

	c := p.Recorder("bob")
	if err := p.Start("bob"); err == nil {
		t.Fatal("Start succeeded with a failing factory")
	}
	if got, ok := p.Lookup("bob"); !ok || got != c {
		t.Error("controller returned by Recorder was evicted")
	}
}
