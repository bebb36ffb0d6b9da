package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	errDisk   = errors.New("disk full")
	errClient = errors.New("client not streaming")
)

func fail(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(func() error { return errDisk })
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	cb := New(Config{Name: "test"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.Cooldown != 30*time.Second {
		t.Errorf("Cooldown = %v, want 30s", cb.cfg.Cooldown)
	}
	if cb.cfg.Probes != 1 {
		t.Errorf("Probes = %d, want 1", cb.cfg.Probes)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb := New(Config{Name: "test", MaxFailures: 3, Cooldown: time.Hour})

	fail(cb, 2)
	if cb.State() != StateClosed {
		t.Fatal("opened before MaxFailures")
	}
	fail(cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while open")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()
	cb := New(Config{Name: "test", MaxFailures: 3})

	fail(cb, 2)
	_ = cb.Execute(func() error { return nil })
	fail(cb, 2)
	if cb.State() != StateClosed {
		t.Fatal("non-consecutive failures opened the breaker")
	}
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	t.Parallel()
	cb := New(Config{
		Name:        "test",
		MaxFailures: 2,
		IsFailure:   func(err error) bool { return !errors.Is(err, errClient) },
	})

	for range 5 {
		if err := cb.Execute(func() error { return errClient }); !errors.Is(err, errClient) {
			t.Fatalf("err = %v, want the fn error", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatal("caller errors opened the breaker")
	}
}

func TestCircuitBreaker_HalfOpenProbes(t *testing.T) {
	t.Parallel()
	cb := New(Config{Name: "test", MaxFailures: 1, Cooldown: 10 * time.Millisecond, Probes: 2})

	fail(cb, 1)
	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cool-down", cb.State())
	}

	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after probes", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	cb := New(Config{Name: "test", MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	fail(cb, 1)
	time.Sleep(15 * time.Millisecond)
	fail(cb, 1)

	cb.mu.Lock()
	s := cb.state
	cb.mu.Unlock()
	if s != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", s)
	}
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()
	cb := New(Config{Name: "test", MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	fail(cb, 1)
	time.Sleep(15 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	})
	<-started

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []string
	cb := New(Config{
		Name:        "disk",
		MaxFailures: 1,
		Cooldown:    time.Hour,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			got = append(got, name+":"+from.String()+">"+to.String())
			mu.Unlock()
		},
	})

	fail(cb, 1)
	cb.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"disk:closed>open", "disk:open>closed"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
