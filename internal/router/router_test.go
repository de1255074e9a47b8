package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloud-consulting/email-engine/internal/domain"
)

func TestPriorityList_AuthPrefersResend(t *testing.T) {
	assert.Equal(t, []domain.Provider{domain.ProviderResend, domain.ProviderBrevo, domain.ProviderSES},
		PriorityList(domain.EmailTypeAuth))
}

func TestPriorityList_OtherTypesPreferBrevo(t *testing.T) {
	assert.Equal(t, []domain.Provider{domain.ProviderBrevo, domain.ProviderSES, domain.ProviderResend},
		PriorityList(domain.EmailTypeNewsletter))
}

func TestSelectProvider_PicksHighestHealthScore(t *testing.T) {
	candidates := map[domain.Provider]Candidate{
		domain.ProviderBrevo:  {Provider: domain.ProviderBrevo, Configured: true, HealthScore: 60},
		domain.ProviderSES:    {Provider: domain.ProviderSES, Configured: true, HealthScore: 95},
		domain.ProviderResend: {Provider: domain.ProviderResend, Configured: true, HealthScore: 80},
	}

	provider, ok := SelectProvider(domain.EmailTypeNewsletter, candidates)
	assert.True(t, ok)
	assert.Equal(t, domain.ProviderSES, provider)
}

func TestSelectProvider_TiesBreakByPriorityOrder(t *testing.T) {
	candidates := map[domain.Provider]Candidate{
		domain.ProviderBrevo: {Provider: domain.ProviderBrevo, Configured: true, HealthScore: 80},
		domain.ProviderSES:   {Provider: domain.ProviderSES, Configured: true, HealthScore: 80},
	}

	provider, ok := SelectProvider(domain.EmailTypeNewsletter, candidates)
	assert.True(t, ok)
	assert.Equal(t, domain.ProviderBrevo, provider) // Brevo precedes SES in the non-auth priority list
}

func TestSelectProvider_SkipsUnconfiguredOpenQuotaExhaustedRateLimited(t *testing.T) {
	candidates := map[domain.Provider]Candidate{
		domain.ProviderBrevo:  {Provider: domain.ProviderBrevo, Configured: false, HealthScore: 100},
		domain.ProviderSES:    {Provider: domain.ProviderSES, Configured: true, CircuitOpen: true, HealthScore: 100},
		domain.ProviderResend: {Provider: domain.ProviderResend, Configured: true, QuotaExhausted: true, HealthScore: 100},
	}

	_, ok := SelectProvider(domain.EmailTypeNewsletter, candidates)
	assert.False(t, ok)
}

func TestSelectProvider_NoCandidatesReturnsFalse(t *testing.T) {
	_, ok := SelectProvider(domain.EmailTypeAuth, map[domain.Provider]Candidate{})
	assert.False(t, ok)
}

func TestExclude_RemovesOnlyNamedProvider(t *testing.T) {
	candidates := map[domain.Provider]Candidate{
		domain.ProviderBrevo: {Provider: domain.ProviderBrevo},
		domain.ProviderSES:   {Provider: domain.ProviderSES},
	}

	out := Exclude(candidates, domain.ProviderBrevo)
	_, stillThere := out[domain.ProviderBrevo]
	assert.False(t, stillThere)
	_, sesThere := out[domain.ProviderSES]
	assert.True(t, sesThere)
	assert.Len(t, candidates, 2, "Exclude must not mutate its input")
}
