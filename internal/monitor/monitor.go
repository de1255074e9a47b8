// Package monitor implements the Health Monitor (spec §4.9): a parallel
// provider-ping tick, SES live-quota sync, a gorm-backed health-history
// snapshot with 90-day retention, and cooldown-deduped alerting.
// Grounded on the teacher's internal/services/email_monitoring_service.go
// for the ping/alert/detail-tier shape, adapted from its bespoke
// aggregation structs onto this package's gorm-backed history table.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cloud-consulting/email-engine/internal/breaker"
	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/providers"
	"github.com/cloud-consulting/email-engine/internal/quota"
)

// RetentionDays is how long ProviderHealthHistory rows are kept.
const RetentionDays = 90

// RetentionBatchSize bounds each cleanup run.
const RetentionBatchSize = 1000

// AlertCooldown dedupes repeat alerts for the same (provider, kind).
const AlertCooldown = time.Hour

// Mode selects how much detail MonitorHealth returns (spec §6).
type Mode string

const (
	ModePing     Mode = "ping"
	ModeFull     Mode = "full"
	ModeDetailed Mode = "detailed"
)

// AlertKind classifies a computed alert.
type AlertKind string

const (
	AlertCritical AlertKind = "CRITICAL"
	AlertWarning  AlertKind = "WARNING"
	AlertAlert    AlertKind = "ALERT"
)

// Alert is one computed, not-yet-deduped alert for a provider.
type Alert struct {
	Provider domain.Provider `json:"provider"`
	Kind     AlertKind       `json:"kind"`
	Message  string          `json:"message"`
}

// ProviderStatus is one provider's entry in a Report.
type ProviderStatus struct {
	Provider    domain.Provider         `json:"provider"`
	Configured  bool                    `json:"configured"`
	Ping        providers.PingResult    `json:"ping,omitempty"`
	Health      domain.ProviderHealthRow `json:"health"`
	Quota       *quota.QuotaSnapshot    `json:"quota,omitempty"`
	Issues      []string                `json:"issues,omitempty"`
}

// Report is the result of one MonitorHealth tick (spec §6).
type Report struct {
	Providers        []ProviderStatus `json:"providers"`
	Alerts           []Alert          `json:"alerts"`
	SnapshotsTaken   int              `json:"snapshots_taken"`
	CleanupPerformed bool             `json:"cleanup_performed"`
	DurationMS       int64            `json:"duration_ms"`
}

// Monitor is the Health Monitor component (C9).
type Monitor struct {
	adapters     map[domain.Provider]providers.Adapter
	tracker      *breaker.Tracker
	quotaLedger  *quota.Ledger
	history      *gorm.DB
	clock        clock.Clock
	logger       *logrus.Logger

	mu            sync.Mutex
	lastAlertSent map[string]time.Time // key: provider|kind
	lastCleanup   string               // UTC date string, last day cleanup ran
}

func New(
	adapters map[domain.Provider]providers.Adapter,
	tracker *breaker.Tracker,
	quotaLedger *quota.Ledger,
	history *gorm.DB,
	clk clock.Clock,
	logger *logrus.Logger,
) *Monitor {
	return &Monitor{
		adapters:      adapters,
		tracker:       tracker,
		quotaLedger:   quotaLedger,
		history:       history,
		clock:         clk,
		logger:        logger,
		lastAlertSent: make(map[string]time.Time),
	}
}

// MonitorHealth runs one monitor tick (spec §4.9).
func (m *Monitor) MonitorHealth(ctx context.Context, mode Mode) (Report, error) {
	start := m.clock.Now()
	report := Report{}

	pings := m.pingAll(ctx)

	quotaSnapshots, err := m.quotaLedger.Snapshot(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("monitor: quota snapshot failed")
	}
	quotaByProvider := make(map[domain.Provider]quota.QuotaSnapshot, len(quotaSnapshots))
	for _, q := range quotaSnapshots {
		quotaByProvider[q.Provider] = q
	}

	for provider, ping := range pings {
		success := ping.Status == providers.PingOK
		var errMsg string
		if !success {
			errMsg = ping.Message
		}
		if err := m.tracker.RecordOutcome(ctx, provider, success, ping.LatencyMS, errMsg); err != nil {
			m.logger.WithError(err).WithField("provider", provider).Warn("monitor: record outcome failed")
		}
	}

	// SES live quota sync (spec §4.9 step 2).
	if adapter, ok := m.adapters[domain.ProviderSES]; ok {
		live := adapter.GetQuotaLive(ctx)
		if live.Err == nil && live.DailyLimit > 0 {
			if err := m.quotaLedger.UpdateDailyLimit(ctx, domain.ProviderSES, live.DailyLimit); err != nil {
				m.logger.WithError(err).Warn("monitor: SES quota sync failed")
			}
		}
	}

	for provider := range m.adapters {
		health, err := m.tracker.Snapshot(ctx, provider)
		if err != nil {
			m.logger.WithError(err).WithField("provider", provider).Warn("monitor: health snapshot failed")
			continue
		}

		status := ProviderStatus{
			Provider:   provider,
			Configured: true,
			Health:     health,
		}
		if ping, ok := pings[provider]; ok {
			status.Ping = ping
		}
		if q, ok := quotaByProvider[provider]; ok {
			qCopy := q
			status.Quota = &qCopy
		}
		if mode == ModeDetailed {
			status.Issues = issuesFor(health)
		}
		report.Providers = append(report.Providers, status)

		if mode != ModePing {
			if err := m.snapshot(ctx, provider, health); err != nil {
				m.logger.WithError(err).WithField("provider", provider).Warn("monitor: snapshot write failed")
			} else {
				report.SnapshotsTaken++
			}
		}

		report.Alerts = append(report.Alerts, m.computeAlerts(provider, health)...)
	}

	if mode != ModePing {
		if m.runDailyCleanup(ctx) {
			report.CleanupPerformed = true
		}
	}

	report.DurationMS = m.clock.Now().Sub(start).Milliseconds()
	return report, nil
}

func (m *Monitor) pingAll(ctx context.Context) map[domain.Provider]providers.PingResult {
	results := make(map[domain.Provider]providers.PingResult, len(m.adapters))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for provider, adapter := range m.adapters {
		provider, adapter := provider, adapter
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := adapter.Ping(ctx, false)
			mu.Lock()
			results[provider] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func issuesFor(health domain.ProviderHealthRow) []string {
	var issues []string
	if health.CircuitState == domain.CircuitOpen {
		issues = append(issues, "circuit breaker is open")
	}
	if health.ConsecutiveFailures > 0 {
		issues = append(issues, "consecutive failures since last success")
	}
	if health.AverageLatencyMS > 2000 {
		issues = append(issues, "average latency above 2000ms")
	}
	return issues
}

// snapshot writes one ProviderHealthHistory row via gorm (spec §4.9
// step 3). This is the one persisted entity in the system whose write
// pattern is a pure append — no conditional update, no row locking —
// which is why it's the component given to gorm rather than raw SQL.
func (m *Monitor) snapshot(ctx context.Context, provider domain.Provider, health domain.ProviderHealthRow) error {
	successRate := 1.0
	if health.TotalRequests > 0 {
		successRate = float64(health.SuccessfulRequests) / float64(health.TotalRequests)
	}
	row := domain.ProviderHealthHistory{
		Provider:      provider,
		SnapshotAt:    m.clock.Now(),
		HealthScore:   health.HealthScore,
		SuccessRate:   successRate,
		AvgLatencyMS:  health.AverageLatencyMS,
		TotalRequests: health.TotalRequests,
	}
	return m.history.WithContext(ctx).Create(&row).Error
}

// computeAlerts implements spec §4.9 step 4's thresholds, deduped
// per (provider, kind) with a 1-hour in-process cooldown.
func (m *Monitor) computeAlerts(provider domain.Provider, health domain.ProviderHealthRow) []Alert {
	var candidates []Alert

	if health.HealthScore <= 30 {
		candidates = append(candidates, Alert{Provider: provider, Kind: AlertCritical, Message: "health score at or below 30"})
	}

	successRate := 1.0
	if health.TotalRequests > 0 {
		successRate = float64(health.SuccessfulRequests) / float64(health.TotalRequests)
	}
	if health.HealthScore <= 50 || (health.TotalRequests > 10 && successRate < 0.70) || health.AverageLatencyMS > 2000 {
		candidates = append(candidates, Alert{Provider: provider, Kind: AlertWarning, Message: "degraded health score, success rate, or latency"})
	}

	if health.CircuitState == domain.CircuitOpen {
		candidates = append(candidates, Alert{Provider: provider, Kind: AlertAlert, Message: "circuit breaker open"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var emitted []Alert
	for _, a := range candidates {
		key := string(a.Provider) + "|" + string(a.Kind)
		if last, ok := m.lastAlertSent[key]; ok && now.Sub(last) < AlertCooldown {
			continue
		}
		m.lastAlertSent[key] = now
		emitted = append(emitted, a)
	}
	return emitted
}

// runDailyCleanup deletes ProviderHealthHistory rows older than
// RetentionDays once per UTC day, batched (spec §4.9 step 5).
func (m *Monitor) runDailyCleanup(ctx context.Context) bool {
	today := m.clock.Now().UTC().Format("2006-01-02")

	m.mu.Lock()
	if m.lastCleanup == today {
		m.mu.Unlock()
		return false
	}
	m.lastCleanup = today
	m.mu.Unlock()

	cutoff := m.clock.Now().AddDate(0, 0, -RetentionDays)
	total := 0
	expired := m.history.WithContext(ctx).Model(&domain.ProviderHealthHistory{}).
		Select("id").
		Where("snapshot_at < ?", cutoff).
		Limit(RetentionBatchSize)
	result := m.history.WithContext(ctx).
		Where("id IN (?)", expired).
		Delete(&domain.ProviderHealthHistory{})
	if result.Error != nil {
		m.logger.WithError(result.Error).Warn("monitor: retention cleanup failed")
	} else {
		total = int(result.RowsAffected)
	}
	if total > 0 {
		m.logger.WithField("deleted", total).Info("monitor: retention cleanup removed old health history rows")
	}
	return true
}
