package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayMonotonicUpToCap(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
	prev := time.Duration(-1)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v -> %v", attempt, prev, d)
		}
		if d > p.MaxDelay {
			t.Fatalf("delay %v exceeds cap %v", d, p.MaxDelay)
		}
		prev = d
	}
	if p.Delay(11) != p.MaxDelay {
		t.Fatalf("late attempts should saturate at the cap, got %v", p.Delay(11))
	}
}

func TestDelayNegativeAttempt(t *testing.T) {
	p := Policy{BaseDelay: time.Second}
	if got := p.Delay(-3); got != time.Second {
		t.Fatalf("Delay(-3) = %v, want base delay", got)
	}
}

func TestJitterBounds(t *testing.T) {
	p := Policy{JitterBound: 50 * time.Millisecond}
	for i := 0; i < 200; i++ {
		j := p.Jitter()
		if j < 0 || j >= p.JitterBound {
			t.Fatalf("jitter %v outside [0, %v)", j, p.JitterBound)
		}
	}
	if (Policy{}).Jitter() != 0 {
		t.Fatal("zero bound must yield zero jitter")
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 4, BaseDelay: time.Microsecond}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected final error")
	}
	if calls != 4 {
		t.Fatalf("fn called %d times, want 4", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Microsecond,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Microsecond}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2", calls)
	}
}

func TestDoRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	err := p.Do(ctx, func(context.Context) error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
