package box

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 6; attempt++ {
		exp := float64(int64(1)<<(attempt-1)) * 100
		lo := time.Duration(exp*0.5) * time.Millisecond
		hi := time.Duration(exp*1.5) * time.Millisecond
		for i := 0; i < 200; i++ {
			d := RetryDelay(attempt, base)
			assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
			assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
		}
	}
}

func TestRetryDelayJitterEnds(t *testing.T) {
	tbl := []struct {
		attempt int
		base    time.Duration
		f       float64
		want    time.Duration
	}{
		{1, time.Second, 0, 500 * time.Millisecond},
		{1, time.Second, 0.5, time.Second},
		{3, time.Second, 0.5, 4 * time.Second},
		{3, time.Second, 1, 6 * time.Second},
		// ceil(1 * 3 * 0.5) = 2
		{1, 3 * time.Millisecond, 0, 2 * time.Millisecond},
		// attempts below one are treated as the first
		{0, time.Second, 0.5, time.Second},
	}
	for _, tc := range tbl {
		assert.Equal(t, tc.want, retryDelay(tc.attempt, tc.base, tc.f),
			"attempt %d base %s f %v", tc.attempt, tc.base, tc.f)
	}
}

func TestRetryDelayRandIsDeterministic(t *testing.T) {
	a := rand.New(rand.NewSource(42))
	b := rand.New(rand.NewSource(42))
	for attempt := 1; attempt < 5; attempt++ {
		assert.Equal(t,
			RetryDelayRand(attempt, time.Second, a),
			RetryDelayRand(attempt, time.Second, b))
	}
}

func TestRetryDelayDoesNotOverflow(t *testing.T) {
	assert.Equal(t, time.Duration(math.MaxInt64), retryDelay(100, time.Second, 1))
	assert.Greater(t, RetryDelay(64, time.Second), time.Duration(0))
}

func TestStreamRetryDelayIsCapped(t *testing.T) {
	assert.LessOrEqual(t, streamRetryDelay(2, time.Second), 3*time.Second)
	for _, attempt := range []int{12, 35, 100} {
		assert.Equal(t, maxStreamRetryDelay, streamRetryDelay(attempt, time.Second), "attempt %d", attempt)
	}
}
