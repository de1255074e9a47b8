// Package router implements provider selection (spec §4.6): a pure
// function of priority list, health scores, quota and rate-limit
// headroom. Modeled on the candidate-filter-then-pick-best shape of the
// teacher's internal/services/consultant_session_load_balancer.go
// (findBestConsultant / findLeastLoadedConsultant), generalized from
// "least loaded consultant" to "highest health score provider".
package router

import (
	"github.com/cloud-consulting/email-engine/internal/domain"
)

// PriorityList returns the provider priority order for an email type,
// per spec §4.6.
func PriorityList(emailType domain.EmailType) []domain.Provider {
	if emailType == domain.EmailTypeAuth {
		return []domain.Provider{domain.ProviderResend, domain.ProviderBrevo, domain.ProviderSES}
	}
	return []domain.Provider{domain.ProviderBrevo, domain.ProviderSES, domain.ProviderResend}
}

// Candidate is the per-provider admission state the router evaluates.
// Routing is pure with respect to these inputs; it never mutates state.
type Candidate struct {
	Provider        domain.Provider
	Configured      bool
	CircuitOpen     bool
	QuotaExhausted  bool
	RateLimited     bool
	HealthScore     float64
}

// SelectProvider implements spec §4.6: skip unconfigured/open-circuit/
// quota-exhausted/rate-limited candidates; among survivors pick the
// highest health score, ties broken by priority order. Returns ("", false)
// if nobody survives.
func SelectProvider(emailType domain.EmailType, candidates map[domain.Provider]Candidate) (domain.Provider, bool) {
	priority := PriorityList(emailType)

	var best domain.Provider
	bestScore := -1.0
	found := false

	for _, provider := range priority {
		c, ok := candidates[provider]
		if !ok {
			continue
		}
		if !c.Configured || c.CircuitOpen || c.QuotaExhausted || c.RateLimited {
			continue
		}
		if c.HealthScore > bestScore {
			bestScore = c.HealthScore
			best = provider
			found = true
		}
	}

	return best, found
}

// Exclude returns a copy of candidates with provider removed, leaving the
// input map unchanged. The worker loop does not call it: it rules out
// quota-exhausted providers through the exclude set its own
// selectProvider takes.
func Exclude(candidates map[domain.Provider]Candidate, provider domain.Provider) map[domain.Provider]Candidate {
	out := make(map[domain.Provider]Candidate, len(candidates))
	for k, v := range candidates {
		if k == provider {
			continue
		}
		out[k] = v
	}
	return out
}
