package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cloud-consulting/email-engine/internal/domain"
)

func TestNextState_ClosedOpensAfterThreshold(t *testing.T) {
	now := time.Now()

	state := domain.CircuitClosed
	for i := 1; i < ConsecutiveFailureThreshold; i++ {
		state = nextState(state, false, i, &now, now)
		assert.Equal(t, domain.CircuitClosed, state)
	}

	state = nextState(state, false, ConsecutiveFailureThreshold, &now, now)
	assert.Equal(t, domain.CircuitOpen, state)
}

func TestNextState_OpenHalfOpensAfterCooldown(t *testing.T) {
	failedAt := time.Now()

	before := nextState(domain.CircuitOpen, false, 5, &failedAt, failedAt.Add(CooldownDuration-time.Second))
	assert.Equal(t, domain.CircuitOpen, before)

	after := nextState(domain.CircuitOpen, false, 5, &failedAt, failedAt.Add(CooldownDuration))
	assert.Equal(t, domain.CircuitHalfOpen, after)
}

func TestNextState_HalfOpenClosesOnSuccessReopensOnFailure(t *testing.T) {
	now := time.Now()
	assert.Equal(t, domain.CircuitClosed, nextState(domain.CircuitHalfOpen, true, 0, nil, now))
	assert.Equal(t, domain.CircuitOpen, nextState(domain.CircuitHalfOpen, false, 1, &now, now))
}

func TestHealthScore_PerfectRecordIsHundred(t *testing.T) {
	row := domain.ProviderHealthRow{
		TotalRequests:      100,
		SuccessfulRequests: 100,
		AverageLatencyMS:   200,
		CircuitState:       domain.CircuitClosed,
	}
	assert.Equal(t, 100.0, healthScore(row))
}

func TestHealthScore_OpenCircuitCrushesScore(t *testing.T) {
	row := domain.ProviderHealthRow{
		TotalRequests:      100,
		SuccessfulRequests: 100,
		AverageLatencyMS:   200,
		CircuitState:       domain.CircuitOpen,
	}
	assert.InDelta(t, 10.0, healthScore(row), 0.01)
}

func TestHealthScore_NoRequestsDefaultsToFullSuccessRate(t *testing.T) {
	row := domain.ProviderHealthRow{CircuitState: domain.CircuitClosed}
	assert.Equal(t, 100.0, healthScore(row))
}

func TestLatencyFactor_Thresholds(t *testing.T) {
	assert.Equal(t, 1.0, latencyFactor(500))
	assert.InDelta(t, 0.5, latencyFactor(3000), 0.001)
	assert.InDelta(t, 0.2, latencyFactor(5000), 0.001)
	assert.InDelta(t, 0.75, latencyFactor(1750), 0.001) // midpoint of the 500-3000 ramp
}

func TestIsAvailable(t *testing.T) {
	assert.True(t, IsAvailable(domain.CircuitClosed))
	assert.True(t, IsAvailable(domain.CircuitHalfOpen))
	assert.False(t, IsAvailable(domain.CircuitOpen))
}
