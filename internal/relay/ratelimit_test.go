package relay

import (
	"testing"
	"time"
)

func TestMessageLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newMessageLimiter(5)

	for i := 0; i < 5; i++ {
		if !rl.Allow(now) {
			t.Fatalf("message %d within burst rejected", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("burst exceeded the configured rate")
	}

	// Tokens refill with elapsed time, capped at the rate.
	now = now.Add(200 * time.Millisecond)
	if !rl.Allow(now) {
		t.Fatalf("refilled token rejected")
	}
	if rl.Allow(now) {
		t.Fatalf("only one token should have refilled")
	}

	now = now.Add(time.Hour)
	for i := 0; i < 5; i++ {
		if !rl.Allow(now) {
			t.Fatalf("message %d after idle period rejected", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("capacity must stay capped after idle period")
	}
}
