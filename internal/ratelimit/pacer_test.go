package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestFixed_WaitsBetweenCalls(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration

	p := &Fixed{
		delay: 200 * time.Millisecond,
		now:   func() time.Time { return clock },
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			clock = clock.Add(d)
			return nil
		},
	}

	ctx := context.Background()
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 0 {
		t.Fatalf("expected first call without wait, got %v", slept)
	}

	clock = clock.Add(50 * time.Millisecond)
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 150*time.Millisecond {
		t.Fatalf("expected 150ms wait, got %v", slept)
	}

	clock = clock.Add(time.Second)
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 {
		t.Errorf("expected no wait after long pause, got %v", slept)
	}
}

func TestFixed_ContextCancel(t *testing.T) {
	p := NewFixed(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestNewFixed_ZeroDelay(t *testing.T) {
	if _, ok := NewFixed(0).(None); !ok {
		t.Error("expected None pacer for zero delay")
	}
}
