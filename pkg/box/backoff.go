package box

import (
	"math"
	"math/rand"
	"time"
)

// retryRandomization is the jitter factor applied to retry delays; a delay is
// scaled by a value drawn uniformly from [1-retryRandomization, 1+retryRandomization].
const retryRandomization = 0.5

// maxDelayMs is the largest delay in milliseconds a time.Duration can hold.
const maxDelayMs = float64(math.MaxInt64 / int64(time.Millisecond))

// RetryDelay returns how long to wait before retry number attempt (starting at
// 1), computed as ceil(2^(attempt-1) * base * jitter) in whole milliseconds.
func RetryDelay(attempt int, base time.Duration) time.Duration {
	return retryDelay(attempt, base, rand.Float64())
}

// RetryDelayRand is RetryDelay with a caller supplied random source.
func RetryDelayRand(attempt int, base time.Duration, rnd *rand.Rand) time.Duration {
	return retryDelay(attempt, base, rnd.Float64())
}

func retryDelay(attempt int, base time.Duration, f float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	jitter := 1 - retryRandomization + f*2*retryRandomization
	baseMs := float64(base) / float64(time.Millisecond)
	ms := math.Ceil(math.Pow(2, float64(attempt-1)) * baseMs * jitter)
	if ms >= maxDelayMs {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}
