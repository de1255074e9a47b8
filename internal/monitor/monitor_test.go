package monitor

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestMonitor(clk clock.Clock) *Monitor {
	return New(nil, nil, nil, nil, clk, testLogger())
}

func TestIssuesFor_FlagsOpenCircuitConsecutiveFailuresAndLatency(t *testing.T) {
	healthy := domain.ProviderHealthRow{CircuitState: domain.CircuitClosed}
	assert.Empty(t, issuesFor(healthy))

	unhealthy := domain.ProviderHealthRow{
		CircuitState:        domain.CircuitOpen,
		ConsecutiveFailures: 3,
		AverageLatencyMS:    2500,
	}
	issues := issuesFor(unhealthy)
	assert.Len(t, issues, 3)
}

func TestComputeAlerts_CriticalAtOrBelowThirty(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(clk)

	alerts := m.computeAlerts(domain.ProviderResend, domain.ProviderHealthRow{
		HealthScore: 30, TotalRequests: 100, SuccessfulRequests: 100, CircuitState: domain.CircuitClosed,
	})

	var gotCritical bool
	for _, a := range alerts {
		if a.Kind == AlertCritical {
			gotCritical = true
		}
	}
	assert.True(t, gotCritical)
}

func TestComputeAlerts_WarningOnLowSuccessRateWithEnoughVolume(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(clk)

	alerts := m.computeAlerts(domain.ProviderBrevo, domain.ProviderHealthRow{
		HealthScore: 90, TotalRequests: 20, SuccessfulRequests: 10, CircuitState: domain.CircuitClosed,
	})

	require := func(kind AlertKind) bool {
		for _, a := range alerts {
			if a.Kind == kind {
				return true
			}
		}
		return false
	}
	assert.True(t, require(AlertWarning))
	assert.False(t, require(AlertCritical))
}

func TestComputeAlerts_NoWarningWhenVolumeTooLowDespiteLowSuccessRate(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(clk)

	alerts := m.computeAlerts(domain.ProviderBrevo, domain.ProviderHealthRow{
		HealthScore: 90, TotalRequests: 5, SuccessfulRequests: 1, CircuitState: domain.CircuitClosed,
	})
	assert.Empty(t, alerts)
}

func TestComputeAlerts_AlertOnOpenCircuit(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(clk)

	alerts := m.computeAlerts(domain.ProviderSES, domain.ProviderHealthRow{
		HealthScore: 90, TotalRequests: 100, SuccessfulRequests: 95, CircuitState: domain.CircuitOpen,
	})

	var gotAlert bool
	for _, a := range alerts {
		if a.Kind == AlertAlert {
			gotAlert = true
		}
	}
	assert.True(t, gotAlert)
}

func TestComputeAlerts_DedupesWithinCooldown(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(clk)
	row := domain.ProviderHealthRow{HealthScore: 10, TotalRequests: 100, SuccessfulRequests: 10, CircuitState: domain.CircuitClosed}

	first := m.computeAlerts(domain.ProviderResend, row)
	assert.NotEmpty(t, first)

	second := m.computeAlerts(domain.ProviderResend, row)
	assert.Empty(t, second, "repeat alert within the cooldown window must be suppressed")

	clk.Advance(AlertCooldown + time.Second)
	third := m.computeAlerts(domain.ProviderResend, row)
	assert.NotEmpty(t, third, "alert must re-fire once the cooldown elapses")
}

func TestComputeAlerts_CooldownIsPerProviderAndKind(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(clk)
	row := domain.ProviderHealthRow{HealthScore: 10, TotalRequests: 100, SuccessfulRequests: 10, CircuitState: domain.CircuitClosed}

	_ = m.computeAlerts(domain.ProviderResend, row)
	otherProvider := m.computeAlerts(domain.ProviderBrevo, row)
	assert.NotEmpty(t, otherProvider, "a different provider must not share the same cooldown bucket")
}

func TestRunDailyCleanup_OnlyRunsOncePerUTCDay(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC))
	m := newTestMonitor(clk)
	m.lastCleanup = clk.Now().UTC().Format("2006-01-02")

	ran := m.runDailyCleanup(nil)
	assert.False(t, ran, "cleanup must not re-run on the same UTC day")
}
