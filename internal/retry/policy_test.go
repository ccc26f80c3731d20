package retry

import (
	"testing"
	"time"
)

func TestDelayDoubles(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second, // stays capped
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestDelayZeroAttempt(t *testing.T) {
	p := Default()
	if got := p.Delay(0); got != 0 {
		t.Errorf("Delay(0) = %s, want 0", got)
	}
}

func TestExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	if p.Exhausted(2) {
		t.Error("Exhausted(2) = true with budget 3")
	}
	if !p.Exhausted(3) {
		t.Error("Exhausted(3) = false with budget 3")
	}
}
