package ws

import "time"

// maxBackoffFactor caps the redial delay at this multiple of the base interval
const maxBackoffFactor = 32

// backoff yields doubling redial delays. Each reconnect loop owns its own.
type backoff struct {
	base    time.Duration
	max     time.Duration
	limit   int // 0 = unlimited
	attempt int
}

func newBackoff(config *Config) *backoff {
	base := config.ReconnectInterval
	if base <= 0 {
		base = time.Second
	}
	return &backoff{
		base:  base,
		max:   base * maxBackoffFactor,
		limit: config.MaxReconnectAttempts,
	}
}

// next returns the delay before the next attempt, false once the limit is spent
func (b *backoff) next() (time.Duration, bool) {
	if b.limit > 0 && b.attempt >= b.limit {
		return 0, false
	}
	d := b.base
	for i := 0; i < b.attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	b.attempt++
	return d, true
}

func (b *backoff) attempts() int {
	return b.attempt
}
