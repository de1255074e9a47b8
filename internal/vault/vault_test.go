package vault

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
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

func TestGetCredentials_ResendReadsAPIKey(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := func(key string) (string, bool) {
		if key == "RESEND_API_KEY" {
			return "re_test_key", true
		}
		return "", false
	}
	v := New(EnvDevelopment, lookup, "", clk, testLogger())

	creds, err := v.GetCredentials(context.Background(), domain.ProviderResend)
	require.NoError(t, err)
	assert.Equal(t, "re_test_key", creds.APIKey)
}

func TestGetCredentials_UnconfiguredReturnsErrUnconfigured(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := func(key string) (string, bool) { return "", false }
	v := New(EnvDevelopment, lookup, "", clk, testLogger())

	_, err := v.GetCredentials(context.Background(), domain.ProviderBrevo)
	require.Error(t, err)
	var unconfigured *ErrUnconfigured
	assert.ErrorAs(t, err, &unconfigured)
	assert.Equal(t, domain.ProviderBrevo, unconfigured.Provider)
}

func TestGetCredentials_SESDevModeReadsBothKeysAndRegion(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := func(key string) (string, bool) {
		switch key {
		case "AWS_ACCESS_KEY_ID":
			return "AKIATEST", true
		case "AWS_SECRET_ACCESS_KEY":
			return "secret", true
		}
		return "", false
	}
	v := New(EnvDevelopment, lookup, "eu-west-1", clk, testLogger())

	creds, err := v.GetCredentials(context.Background(), domain.ProviderSES)
	require.NoError(t, err)
	assert.Equal(t, "AKIATEST", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "eu-west-1", creds.Region)
}

func TestGetCredentials_CachesWithinTTL(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var calls int32
	lookup := func(key string) (string, bool) {
		atomic.AddInt32(&calls, 1)
		if key == "RESEND_API_KEY" {
			return "cached-key", true
		}
		return "", false
	}
	v := New(EnvDevelopment, lookup, "", clk, testLogger())
	ctx := context.Background()

	_, err := v.GetCredentials(ctx, domain.ProviderResend)
	require.NoError(t, err)
	firstCalls := atomic.LoadInt32(&calls)

	_, err = v.GetCredentials(ctx, domain.ProviderResend)
	require.NoError(t, err)
	assert.Equal(t, firstCalls, atomic.LoadInt32(&calls), "a fresh cache entry must not re-resolve")

	clk.Advance(TTL + time.Second)
	_, err = v.GetCredentials(ctx, domain.ProviderResend)
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(&calls), firstCalls, "an expired cache entry must re-resolve")
}

func TestGetCredentials_CoalescesConcurrentLookups(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var calls int32
	release := make(chan struct{})
	lookup := func(key string) (string, bool) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "concurrent-key", true
	}
	v := New(EnvDevelopment, lookup, "", clk, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = v.GetCredentials(ctx, domain.ProviderResend)
		}()
	}

	// give every goroutine a chance to reach the lookup call before releasing it
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent misses for the same provider must coalesce into one resolution")
}

func TestListConfigured_ReportsPerProviderAvailability(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := func(key string) (string, bool) {
		return "configured", key == "RESEND_API_KEY"
	}
	v := New(EnvDevelopment, lookup, "", clk, testLogger())

	configured := v.ListConfigured(context.Background())
	assert.True(t, configured[domain.ProviderResend])
	assert.False(t, configured[domain.ProviderBrevo])
}

func TestShutdown_ClearsCache(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var calls int32
	lookup := func(key string) (string, bool) {
		atomic.AddInt32(&calls, 1)
		return "key", key == "RESEND_API_KEY"
	}
	v := New(EnvDevelopment, lookup, "", clk, testLogger())
	ctx := context.Background()

	_, _ = v.GetCredentials(ctx, domain.ProviderResend)
	v.Shutdown()
	_, _ = v.GetCredentials(ctx, domain.ProviderResend)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "Shutdown must force the next call to re-resolve")
}
