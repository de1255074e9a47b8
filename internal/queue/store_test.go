package queue

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsExponentiallyWithinJitterBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	d0 := Backoff(0, r)
	assert.GreaterOrEqual(t, d0, RetryBase)
	assert.Less(t, d0, 2*RetryBase)

	d3 := Backoff(3, r)
	assert.GreaterOrEqual(t, d3, 8*RetryBase)
	assert.Less(t, d3, 9*RetryBase)
}

func TestBackoff_CapsAtRetryMax(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	d := Backoff(20, r)
	assert.Equal(t, RetryMax, d)
}

func TestBackoff_NeverExceedsMaxAcrossManySamples(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for attempt := 0; attempt < 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := Backoff(attempt, r)
			assert.LessOrEqual(t, d, RetryMax)
			assert.Greater(t, d, time.Duration(0))
		}
	}
}
