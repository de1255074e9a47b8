package ratelimit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// New is never given a Redis client in these tests, exercising the
// in-process fallback path every local-dev/test run depends on.
func TestCheckAndIncrement_AdmitsUpToLimitThenRejects(t *testing.T) {
	clk := clock.NewFake(time.Now())
	limiter := New(nil, clk, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.CheckAndIncrement(ctx, domain.ProviderResend, 3)
		require.NoError(t, err)
		assert.True(t, ok, "send %d should be admitted", i)
	}

	ok, err := limiter.CheckAndIncrement(ctx, domain.ProviderResend, 3)
	require.NoError(t, err)
	assert.False(t, ok, "4th send within the same minute bucket must be rejected")
}

func TestCheckAndIncrement_NewMinuteBucketResetsCounter(t *testing.T) {
	clk := clock.NewFake(time.Now())
	limiter := New(nil, clk, testLogger())
	ctx := context.Background()

	ok, _ := limiter.CheckAndIncrement(ctx, domain.ProviderBrevo, 1)
	assert.True(t, ok)
	ok, _ = limiter.CheckAndIncrement(ctx, domain.ProviderBrevo, 1)
	assert.False(t, ok)

	clk.Advance(61 * time.Second)

	ok, _ = limiter.CheckAndIncrement(ctx, domain.ProviderBrevo, 1)
	assert.True(t, ok, "a fresh minute bucket should admit again")
}

func TestCheckAndIncrement_ProvidersHaveIndependentBuckets(t *testing.T) {
	clk := clock.NewFake(time.Now())
	limiter := New(nil, clk, testLogger())
	ctx := context.Background()

	ok, _ := limiter.CheckAndIncrement(ctx, domain.ProviderResend, 1)
	assert.True(t, ok)

	ok, _ = limiter.CheckAndIncrement(ctx, domain.ProviderSES, 1)
	assert.True(t, ok, "SES's bucket must be independent of Resend's")
}

func TestCheckKey_RespectsCustomWindow(t *testing.T) {
	clk := clock.NewFake(time.Now())
	limiter := New(nil, clk, testLogger())
	ctx := context.Background()

	ok, err := limiter.CheckKey(ctx, "dedupe:someone@example.com:auth", 1, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.CheckKey(ctx, "dedupe:someone@example.com:auth", 1, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(5*time.Minute + time.Second)
	ok, err = limiter.CheckKey(ctx, "dedupe:someone@example.com:auth", 1, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
