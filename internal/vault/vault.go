// Package vault lazily resolves provider credentials from the environment
// (development) or a process-wide secret store (production), caching each
// resolution for a short TTL and coalescing concurrent lookups for the
// same key, in the spirit of the teacher's layered dev/production
// validation in internal/services/email_factory.go.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

// TTL is how long a resolved credential stays cached in-process.
const TTL = 5 * time.Minute

// Credentials is the resolved secret bundle for one provider.
type Credentials struct {
	APIKey          string // Resend, Brevo
	AccessKeyID     string // SES
	SecretAccessKey string // SES
	SessionToken    string // SES, when using temporary/STS credentials
	Region          string // SES
}

// Environment selects where the vault resolves secrets from.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// EnvLookup matches the shape of os.LookupEnv so tests can inject a fake.
type EnvLookup func(key string) (string, bool)

type cacheEntry struct {
	creds     Credentials
	fetchedAt time.Time
}

// inflight coalesces concurrent resolutions for the same provider key.
type inflight struct {
	done chan struct{}
	res  Credentials
	err  error
}

// Vault resolves and caches provider credentials.
type Vault struct {
	env        Environment
	lookup     EnvLookup
	clock      clock.Clock
	logger     *logrus.Logger
	region     string

	mu      sync.Mutex
	cache   map[domain.Provider]cacheEntry
	calls   map[domain.Provider]*inflight

	awsCredsOnce sync.Once
	awsCredsErr  error
	awsCreds     aws.CredentialsProvider
}

// New creates a Vault. lookup must be non-nil; there is no default. It
// can be os.LookupEnv, or (as the server wiring does) a lookup over
// values already loaded into the Config.
func New(env Environment, lookup EnvLookup, region string, clk clock.Clock, logger *logrus.Logger) *Vault {
	return &Vault{
		env:    env,
		lookup: lookup,
		clock:  clk,
		logger: logger,
		region: region,
		cache:  make(map[domain.Provider]cacheEntry),
		calls:  make(map[domain.Provider]*inflight),
	}
}

// ErrUnconfigured is returned by GetCredentials when a provider has no
// usable credentials in the current environment.
type ErrUnconfigured struct{ Provider domain.Provider }

func (e *ErrUnconfigured) Error() string {
	return fmt.Sprintf("provider %s is unconfigured", e.Provider)
}

// GetCredentials resolves credentials for provider, serving from the
// 5-minute TTL cache when fresh and coalescing concurrent misses for the
// same provider into a single resolution.
func (v *Vault) GetCredentials(ctx context.Context, provider domain.Provider) (Credentials, error) {
	v.mu.Lock()
	if entry, ok := v.cache[provider]; ok && v.clock.Now().Sub(entry.fetchedAt) < TTL {
		v.mu.Unlock()
		return entry.creds, nil
	}

	if call, ok := v.calls[provider]; ok {
		v.mu.Unlock()
		<-call.done
		return call.res, call.err
	}

	call := &inflight{done: make(chan struct{})}
	v.calls[provider] = call
	v.mu.Unlock()

	creds, err := v.resolve(ctx, provider)

	v.mu.Lock()
	delete(v.calls, provider)
	if err == nil {
		v.cache[provider] = cacheEntry{creds: creds, fetchedAt: v.clock.Now()}
	}
	v.mu.Unlock()

	call.res, call.err = creds, err
	close(call.done)
	return creds, err
}

func (v *Vault) resolve(ctx context.Context, provider domain.Provider) (Credentials, error) {
	switch provider {
	case domain.ProviderResend:
		key, ok := v.lookup("RESEND_API_KEY")
		if !ok || key == "" {
			return Credentials{}, &ErrUnconfigured{Provider: provider}
		}
		return Credentials{APIKey: key}, nil

	case domain.ProviderBrevo:
		key, ok := v.lookup("BREVO_API_KEY")
		if !ok || key == "" {
			return Credentials{}, &ErrUnconfigured{Provider: provider}
		}
		return Credentials{APIKey: key}, nil

	case domain.ProviderSES:
		return v.resolveSES(ctx)

	default:
		return Credentials{}, fmt.Errorf("unknown provider %q", provider)
	}
}

// resolveSES resolves AWS credentials. In production it defers to
// aws-sdk-go-v2's default credential chain (env -> shared config -> IMDS)
// via aws.CredentialsCache; in development it reads the two env vars
// directly, matching the teacher's SESConfig loading in
// internal/config/config.go. Either way, the SES adapter itself never
// touches the SDK — it only ever receives a resolved key/secret/region
// triple and signs its own requests (see internal/providers/sigv4.go).
func (v *Vault) resolveSES(ctx context.Context) (Credentials, error) {
	region := v.region
	if region == "" {
		region = "us-east-1"
	}

	if v.env == EnvDevelopment {
		ak, okA := v.lookup("AWS_ACCESS_KEY_ID")
		sk, okS := v.lookup("AWS_SECRET_ACCESS_KEY")
		if !okA || !okS || ak == "" || sk == "" {
			return Credentials{}, &ErrUnconfigured{Provider: domain.ProviderSES}
		}
		return Credentials{AccessKeyID: ak, SecretAccessKey: sk, Region: region}, nil
	}

	v.awsCredsOnce.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			v.awsCredsErr = err
			return
		}
		v.awsCreds = aws.NewCredentialsCache(cfg.Credentials)
	})
	if v.awsCredsErr != nil {
		v.logger.WithError(v.awsCredsErr).Warn("failed to load AWS credential chain")
		return Credentials{}, &ErrUnconfigured{Provider: domain.ProviderSES}
	}

	retrieved, err := v.awsCreds.Retrieve(ctx)
	if err != nil {
		return Credentials{}, &ErrUnconfigured{Provider: domain.ProviderSES}
	}

	return Credentials{
		AccessKeyID:     retrieved.AccessKeyID,
		SecretAccessKey: retrieved.SecretAccessKey,
		SessionToken:    retrieved.SessionToken,
		Region:          region,
	}, nil
}

// ListConfigured returns the set of providers with usable credentials in
// the current environment, probing each one (and populating the cache).
func (v *Vault) ListConfigured(ctx context.Context) map[domain.Provider]bool {
	out := make(map[domain.Provider]bool, len(domain.AllProviders))
	for _, p := range domain.AllProviders {
		_, err := v.GetCredentials(ctx, p)
		out[p] = err == nil
	}
	return out
}

// Shutdown clears the in-process cache. Part of the explicit vault
// lifecycle called for in spec §9 ("Lazy/global provider caches").
func (v *Vault) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache = make(map[domain.Provider]cacheEntry)
}
