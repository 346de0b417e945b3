package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// fakeClock is a manually advanced clock for breaker tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker("test", cfg)
	b.now = clk.now
	return b, clk
}

func fail() error    { return errBackend }
func succeed() error { return nil }

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker("whisper", BreakerConfig{})
	if b.cfg.MaxFailures != 5 || b.cfg.Cooldown != 30*time.Second || b.cfg.Probes != 1 {
		t.Errorf("defaults = %+v", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
	if b.Name() != "whisper" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3, Cooldown: time.Minute})

	for range 2 {
		_ = b.Do(fail, nil)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v after 2 failures, want closed", b.State())
	}
	_ = b.Do(fail, nil)
	if b.State() != StateOpen {
		t.Fatalf("state = %v after 3 failures, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil }, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 2})

	_ = b.Do(fail, nil)
	_ = b.Do(succeed, nil)
	_ = b.Do(fail, nil)
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_NeutralErrorsDoNotCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1})
	never := func(error) bool { return false }

	err := b.Do(fail, never)
	if !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want errBackend passed through", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"probe succeeds", succeed, StateClosed},
		{"probe fails", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})
			_ = b.Do(fail, nil)

			clk.advance(59 * time.Second)
			if b.State() != StateOpen {
				t.Fatalf("state = %v before cooldown, want open", b.State())
			}
			clk.advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %v after cooldown, want half-open", b.State())
			}

			_ = b.Do(tt.probe, nil)
			if got := b.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
	_ = b.Do(fail, nil)
	clk.advance(time.Second)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Do(func() error { <-release; return nil }, nil)
	}()

	// Wait for the probe to be admitted.
	for {
		b.mu.Lock()
		n := b.inflight
		b.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Do(succeed, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Do(fail, nil)
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if err := b.Do(succeed, nil); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
