package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d rejected: %v", i, err)
		}
		b.Record(errBoom)
	}

	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow after trip = %v, want ErrOpen", err)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, Cooldown: time.Minute})

	_ = b.Allow()
	b.Record(errBoom)
	_ = b.Allow()
	b.Record(nil) // success clears the streak
	_ = b.Allow()
	b.Record(errBoom)

	if err := b.Allow(); err != nil {
		t.Fatalf("breaker tripped on a non-consecutive failure: %v", err)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Allow()
	b.Record(errBoom)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("breaker should be open")
	}

	time.Sleep(15 * time.Millisecond)

	// Cooldown elapsed: exactly one probe is admitted.
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("second concurrent probe should be rejected")
	}

	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Fatalf("state after successful probe = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Allow()
	b.Record(errBoom)
	time.Sleep(15 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.Record(errBoom)

	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("breaker should have re-opened after failed probe")
	}
}
