package clock

import (
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Sleep(150 * time.Millisecond)
	f.Advance(50 * time.Millisecond)
	if got := f.Now().Sub(start); got != 200*time.Millisecond {
		t.Errorf("elapsed = %v, want 200ms", got)
	}
}
