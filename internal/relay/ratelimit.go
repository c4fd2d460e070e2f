package relay

import "time"

// messageLimiter is a token bucket over signaling messages. One instance per
// connection, used only from that connection's read loop.
type messageLimiter struct {
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

func newMessageLimiter(messagesPerSecond int) *messageLimiter {
	rate := float64(messagesPerSecond)
	return &messageLimiter{
		rate:     rate,
		capacity: rate,
		tokens:   rate,
		last:     time.Now(),
	}
}

func (rl *messageLimiter) Allow(now time.Time) bool {
	elapsed := now.Sub(rl.last).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
