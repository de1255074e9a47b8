// Package worker implements the Worker Loop (spec §4.8): one tick of
// distributed-lock-guarded queue draining with bounded concurrency,
// routing each claimed email through rate limiting, quota reservation,
// the circuit breaker, and the provider adapter, then recording the
// outcome. Modeled on the concurrency shape of the teacher's
// internal/services/consultant_session_load_balancer.go (bounded
// worker pool over a channel) generalized from session assignment to
// email dispatch.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/breaker"
	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/providers"
	"github.com/cloud-consulting/email-engine/internal/quota"
	"github.com/cloud-consulting/email-engine/internal/queue"
	"github.com/cloud-consulting/email-engine/internal/ratelimit"
	"github.com/cloud-consulting/email-engine/internal/router"
	"github.com/cloud-consulting/email-engine/internal/storage"
	"github.com/cloud-consulting/email-engine/internal/suppression"
)

const (
	// LockKey names the single-writer lock guarding one worker tick.
	LockKey = "email.queue.lock"

	// LockTTL must exceed SoftDeadline so a crashed worker's claimed
	// rows are reaped by ReapStuck rather than double-processed.
	LockTTL = 5 * time.Minute

	BatchSize   = 100
	Concurrency = 10

	// SoftDeadline bounds how long the tick dispatches new sends; an
	// in-flight send is allowed to finish regardless.
	SoftDeadline = 4 * time.Minute

	// RateLimitPerMinute is the per-provider cap passed to the limiter.
	RateLimitPerMinute = 10
)

// Tick is the result of one ProcessQueue() call (spec §6).
type Tick struct {
	Processed    int           `json:"processed"`
	Successful   int           `json:"successful"`
	Failed       int           `json:"failed"`
	RateLimited  int           `json:"rate_limited"`
	MovedToDLQ   int           `json:"moved_to_dlq"`
	DurationMS   int64         `json:"duration_ms"`
	LockAcquired bool          `json:"lock_acquired"`
}

// Worker is the Worker Loop component (C8).
type Worker struct {
	store        *queue.Store
	router       routerFn
	rateLimiter  *ratelimit.Limiter
	quotaLedger  *quota.Ledger
	breaker      *breaker.Tracker
	suppression  *suppression.List
	adapters     map[domain.Provider]providers.Adapter
	redis        *storage.RedisConnection
	clock        clock.Clock
	logger       *logrus.Logger

	batchSize    int
	concurrency  int
	softDeadline time.Duration
}

// routerFn exists so tests can swap in a deterministic router without
// depending on live health/quota/rate-limit state.
type routerFn func(ctx context.Context, emailType domain.EmailType, exclude map[domain.Provider]bool) (domain.Provider, bool)

// New builds a Worker wired to concrete adapters. redis may be nil, in
// which case the tick lock is a local no-op (single-process dev mode):
// AcquireLock is skipped and every tick proceeds, matching
// ratelimit.Limiter's in-process fallback philosophy for unconfigured
// Redis.
func New(
	store *queue.Store,
	rateLimiter *ratelimit.Limiter,
	quotaLedger *quota.Ledger,
	tracker *breaker.Tracker,
	suppressionList *suppression.List,
	adapters map[domain.Provider]providers.Adapter,
	redis *storage.RedisConnection,
	clk clock.Clock,
	logger *logrus.Logger,
) *Worker {
	w := &Worker{
		store:        store,
		rateLimiter:  rateLimiter,
		quotaLedger:  quotaLedger,
		breaker:      tracker,
		suppression:  suppressionList,
		adapters:     adapters,
		redis:        redis,
		clock:        clk,
		logger:       logger,
		batchSize:    BatchSize,
		concurrency:  Concurrency,
		softDeadline: SoftDeadline,
	}
	w.router = w.selectProvider
	return w
}

// selectProvider builds router.Candidate state from live breaker/quota/
// rate-limit snapshots and asks the pure router.SelectProvider function
// to pick among them, excluding any provider this email's dispatch
// already ruled out locally (spec §4.8 step c).
func (w *Worker) selectProvider(ctx context.Context, emailType domain.EmailType, exclude map[domain.Provider]bool) (domain.Provider, bool) {
	candidates := make(map[domain.Provider]router.Candidate, len(w.adapters))
	for p := range w.adapters {
		if exclude[p] {
			continue
		}
		health, err := w.breaker.Snapshot(ctx, p)
		if err != nil {
			w.logger.WithError(err).WithField("provider", p).Warn("worker: health snapshot failed, treating provider as unavailable")
			continue
		}
		candidates[p] = router.Candidate{
			Provider:    p,
			Configured:  true,
			CircuitOpen: health.CircuitState == domain.CircuitOpen,
			HealthScore: health.HealthScore,
		}
	}
	return router.SelectProvider(emailType, candidates)
}

// ProcessQueue runs one worker tick (spec §4.8).
func (w *Worker) ProcessQueue(ctx context.Context) (Tick, error) {
	start := w.clock.Now()
	tick := Tick{}

	var lock *storage.Lock
	if w.redis != nil {
		var ok bool
		var err error
		lock, ok, err = w.redis.AcquireLock(ctx, LockKey, LockTTL)
		if err != nil {
			return tick, fmt.Errorf("worker: acquire lock: %w", err)
		}
		if !ok {
			w.logger.Debug("worker: lock held by another worker, skipping tick")
			return tick, nil
		}
		defer lock.Release(context.Background())
	}
	tick.LockAcquired = true

	if n, err := w.store.ReapStuck(ctx); err != nil {
		w.logger.WithError(err).Warn("worker: reap stuck failed")
	} else if n > 0 {
		w.logger.WithField("count", n).Info("worker: reaped stuck in-flight rows")
	}

	batch, err := w.store.ClaimReady(ctx, w.batchSize)
	if err != nil {
		return tick, fmt.Errorf("worker: claim ready: %w", err)
	}
	if len(batch) == 0 {
		tick.DurationMS = w.clock.Now().Sub(start).Milliseconds()
		return tick, nil
	}

	deadline := start.Add(w.softDeadline)
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, email := range batch {
		if w.clock.Now().After(deadline) {
			w.logger.Warn("worker: soft deadline reached, leaving remaining batch queued")
			break
		}

		email := email
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := w.processOne(ctx, email)

			mu.Lock()
			defer mu.Unlock()
			tick.Processed++
			switch outcome {
			case outcomeSuccess:
				tick.Successful++
			case outcomeRateLimited:
				tick.RateLimited++
			case outcomeDLQ:
				tick.Failed++
				tick.MovedToDLQ++
			case outcomeRetry:
				tick.Failed++
			}
		}()
	}

	wg.Wait()
	tick.DurationMS = w.clock.Now().Sub(start).Milliseconds()
	return tick, nil
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRateLimited
	outcomeRetry
	outcomeDLQ
)

// processOne runs spec §4.8 step 4 for a single claimed email.
func (w *Worker) processOne(ctx context.Context, email *domain.QueuedEmail) outcome {
	logEntry := w.logger.WithFields(logrus.Fields{"queue_id": email.ID, "email_type": email.EmailType})

	exclude := map[domain.Provider]bool{}
	for attempt := 0; attempt < len(w.adapters); attempt++ {
		provider, ok := w.router(ctx, email.EmailType, exclude)
		if !ok {
			return w.retry(ctx, email.ID, "no provider available")
		}

		rateOK, err := w.rateLimiter.CheckAndIncrement(ctx, provider, RateLimitPerMinute)
		if err != nil {
			logEntry.WithError(err).Warn("worker: rate limiter check failed")
		}
		if err == nil && !rateOK {
			w.retry(ctx, email.ID, "rate limited")
			return outcomeRateLimited
		}

		reservation, err := w.quotaLedger.TryReserve(ctx, provider, 1)
		if err != nil {
			logEntry.WithError(err).Warn("worker: quota reserve failed")
		}
		if err == nil && !reservation.Allowed {
			exclude[provider] = true
			continue
		}

		return w.dispatch(ctx, email, provider, logEntry)
	}

	return w.retry(ctx, email.ID, "quota exhausted across all providers")
}

// dispatch sends via the chosen provider inside the circuit breaker,
// records the outcome, and applies the terminal/retry transition.
func (w *Worker) dispatch(ctx context.Context, email *domain.QueuedEmail, provider domain.Provider, logEntry *logrus.Entry) outcome {
	adapter := w.adapters[provider]

	var result providers.SendResult
	breakerErr := w.breaker.WithBreaker(ctx, provider, func(ctx context.Context) error {
		result = adapter.Send(ctx, email)
		if !result.Success {
			return result.Err
		}
		return nil
	})

	if breakerErr == breaker.ErrBreakerOpen {
		if err := w.quotaLedger.Refund(ctx, provider, 1); err != nil {
			logEntry.WithError(err).Warn("worker: quota refund failed")
		}
		return w.retry(ctx, email.ID, "circuit open for "+string(provider))
	}

	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	if err := w.breaker.RecordOutcome(ctx, provider, result.Success, result.LatencyMS, errMsg); err != nil {
		logEntry.WithError(err).Warn("worker: record outcome failed")
	}

	if result.Success {
		if err := w.store.MarkCompleted(ctx, email.ID, provider, result.MessageID, result.LatencyMS); err != nil {
			logEntry.WithError(err).Error("worker: mark completed failed")
		}
		return outcomeSuccess
	}

	if err := w.store.RecordFailedAttempt(ctx, email.ID, provider, result.LatencyMS, errMsg); err != nil {
		logEntry.WithError(err).Warn("worker: record failed attempt failed")
	}

	if result.PermanentFailure {
		if err := w.suppression.Suppress(ctx, email.RecipientEmail, errMsg); err != nil {
			logEntry.WithError(err).Warn("worker: suppress failed")
		}
		w.dlq(ctx, email.ID, errMsg)
		return outcomeDLQ
	}

	return w.retry(ctx, email.ID, errMsg)
}

// retry calls ScheduleRetry and translates its resulting status into an
// outcome — ScheduleRetry itself decides whether this attempt exhausted
// max_attempts and moved the row to the DLQ, so the worker never
// duplicates that accounting.
func (w *Worker) retry(ctx context.Context, id, reason string) outcome {
	status, err := w.store.ScheduleRetry(ctx, id, reason)
	if err != nil {
		w.logger.WithError(err).WithField("queue_id", id).Error("worker: schedule retry failed")
		return outcomeRetry
	}
	if status == domain.StatusDead {
		return outcomeDLQ
	}
	return outcomeRetry
}

func (w *Worker) dlq(ctx context.Context, id, reason string) {
	if err := w.store.MoveToDLQ(ctx, id, reason); err != nil {
		w.logger.WithError(err).WithField("queue_id", id).Error("worker: move to dlq failed")
	}
}
