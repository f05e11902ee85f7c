package retrier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/models"
)

type Repository interface {
	ClaimDueNotifications(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Notification, error)
}

type Dispatcher interface {
	Redispatch(ctx context.Context, n *models.Notification)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Retrier periodically claims failed notifications whose next attempt is due
// and hands them back to the dispatcher. A claim moves next_attempt_at
// forward by the lease, so a crashed worker's batch comes back on its own.
type Retrier struct {
	repo       Repository
	dispatcher Dispatcher
	rl         RateLimiter
	metrics    *metrics.Metrics

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64

	now       func() time.Time
	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalDeferred       atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, dispatcher Dispatcher) *Retrier {
	return &Retrier{
		repo:              repo,
		dispatcher:        dispatcher,
		pollInterval:      30 * time.Second,
		batchSize:         50,
		concurrency:       5,
		lease:             2 * time.Minute,
		now:               time.Now,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Retrier) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Retrier {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	return r
}

// WithRateLimit caps redispatches per channel per minute. Records over the
// cap stay claimed and come back when the lease runs out.
func (r *Retrier) WithRateLimit(rl RateLimiter, perMinute int64) *Retrier {
	r.rl = rl
	r.rateLimitPerMinute = perMinute
	return r
}

func (r *Retrier) WithMetrics(m *metrics.Metrics) *Retrier {
	r.metrics = m
	return r
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (r *Retrier) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalDeferred  int64      `json:"totalDeferred"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Retrier) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalProcessed: r.totalProcessed.Load(),
		TotalDeferred:  r.totalDeferred.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Retrier) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch and waits for every redispatch to finish.
func (r *Retrier) RunOnce(ctx context.Context) {
	now := r.now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())

	items, err := r.repo.ClaimDueNotifications(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim due notifications", "error", err.Error())
		r.setLastError(err)
		return
	}
	r.totalClaimed.Add(int64(len(items)))
	r.metrics.Claimed(len(items))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, n := range items {
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			r.processOne(ctx, n, now)
		}()
	}
	wg.Wait()
}

func (r *Retrier) processOne(ctx context.Context, n *models.Notification, now time.Time) {
	if r.rl != nil && r.rateLimitPerMinute > 0 {
		key := fmt.Sprintf("rl:notify:%s:%s", n.Type, now.Format("200601021504"))
		allowed, count, err := r.rl.Allow(ctx, key, r.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			// лимитер недоступен: не блокируем повторы
			r.totalErrors.Add(1)
			r.setLastError(err)
			slog.Warn("retry rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			r.totalDeferred.Add(1)
			slog.Warn("retry rate limit exceeded", "type", n.Type, "count", count, "notification_id", n.ID)
			return
		}
	}

	r.dispatcher.Redispatch(ctx, n)
	r.totalProcessed.Add(1)
}

func (r *Retrier) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
