package resilience

import (
	"os"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(t *testing.T, cfg BreakerConfig) (*Breaker, *clock) {
	t.Helper()
	c := &clock{now: t0}
	b := NewBreaker(NewStore(t.TempDir()), cfg)
	b.now = c.Now
	return b, c
}

func mustState(t *testing.T, b *Breaker, want string) {
	t.Helper()
	got, err := b.State()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s state, got %s", want, got)
	}
}

func TestBreakerDefaultsClosed(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{})

	mustState(t, b, CircuitClosed)
	if ok, _ := b.Allow(); !ok {
		t.Error("expected closed circuit to allow")
	}
}

func TestBreakerAppliesDefaults(t *testing.T) {
	b := NewBreaker(NewStore(t.TempDir()), BreakerConfig{})

	if b.config.FailureThreshold != 5 || b.config.SuccessThreshold != 2 || b.config.OpenTimeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", b.config)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if err := b.RecordFailure(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	mustState(t, b, CircuitClosed)

	if err := b.RecordFailure(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustState(t, b, CircuitOpen)

	ok, wait := b.Allow()
	if ok {
		t.Error("expected open circuit to reject")
	}
	if wait != time.Minute {
		t.Errorf("expected 1m wait, got %v", wait)
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 2})

	_ = b.RecordFailure()
	_ = b.RecordSuccess()
	_ = b.RecordFailure()

	mustState(t, b, CircuitClosed)
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, c := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute})
	_ = b.RecordFailure()

	c.Advance(time.Minute)
	mustState(t, b, CircuitHalfOpen)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("expected first probe to be allowed")
	}
	if ok, _ := b.Allow(); ok {
		t.Fatal("expected concurrent probe to be rejected")
	}

	_ = b.RecordSuccess()
	mustState(t, b, CircuitHalfOpen)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("expected next probe after success")
	}
	_ = b.RecordSuccess()
	mustState(t, b, CircuitClosed)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute})
	_ = b.RecordFailure()
	c.Advance(time.Minute)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("expected probe")
	}
	_ = b.RecordFailure()

	mustState(t, b, CircuitOpen)
	if ok, _ := b.Allow(); ok {
		t.Error("expected reopened circuit to reject")
	}
}

func TestBreakerReclaimsStaleProbe(t *testing.T) {
	b, c := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute})
	_ = b.RecordFailure()
	c.Advance(time.Minute)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("expected probe")
	}
	// The prober never reports back.
	c.Advance(time.Minute)

	if ok, _ := b.Allow(); !ok {
		t.Error("expected stale probe slot to be reclaimed")
	}
}

func TestBreakerBlockFor(t *testing.T) {
	b, c := newTestBreaker(t, BreakerConfig{})

	if err := b.BlockFor(10 * time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, wait := b.Allow()
	if ok || wait != 10*time.Second {
		t.Fatalf("expected 10s block, got ok=%v wait=%v", ok, wait)
	}

	c.Advance(10 * time.Second)
	if ok, _ := b.Allow(); !ok {
		t.Error("expected block to lift")
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1})
	_ = b.RecordFailure()
	_ = b.BlockFor(time.Hour)

	if err := b.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustState(t, b, CircuitClosed)
	if ok, _ := b.Allow(); !ok {
		t.Error("expected reset circuit to allow")
	}
}

func TestBreakerSharedAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first := NewBreaker(NewStore(dir), BreakerConfig{FailureThreshold: 1})
	second := NewBreaker(NewStore(dir), BreakerConfig{FailureThreshold: 1})

	_ = first.RecordFailure()

	if ok, _ := second.Allow(); ok {
		t.Error("expected state written by one process to be seen by another")
	}
}

func TestNilBreakerAllows(t *testing.T) {
	var b *Breaker

	if ok, _ := b.Allow(); !ok {
		t.Error("expected nil breaker to allow")
	}
	if err := b.RecordFailure(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	mustState(t, b, CircuitClosed)
}

func TestStoreCorruptFileReadsClosed(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.closed() {
		t.Errorf("expected closed state, got %s", state.Circuit)
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Update(func(s *State) error { s.Failures = 3; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("expected state file to be removed")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("clearing twice: %v", err)
	}
}
