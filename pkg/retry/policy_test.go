package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(attempt int) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	want := errors.New("fatal")
	err := Do(context.Background(), DefaultPolicy(), func(attempt int) (bool, error) {
		calls++
		return false, want
	})
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := Do(context.Background(), p, func(attempt int) (bool, error) {
		calls++
		return true, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDelayIsCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
	if d := p.Delay(10); d > p.MaxDelay {
		t.Fatalf("Delay(10) = %v exceeds MaxDelay %v", d, p.MaxDelay)
	}
}
