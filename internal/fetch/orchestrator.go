package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/orders"
	"github.com/tair/stock-ledger/pkg/logger"
)

var tracer = otel.Tracer("fetch-orchestrator")

var (
	fetchRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_runs_total",
		Help: "Completed order fetch runs",
	})
	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_failures_total",
		Help: "Failed platform fetches, by platform",
	}, []string{"platform"})
)

// Snapshotter persists ledger and order state after a completed run.
type Snapshotter interface {
	PersistRun(ctx context.Context, completedAt time.Time) error
}

// Orchestrator coordinates the concurrent per-platform order fetches.
// The in-flight flag makes overlapping runs impossible by construction,
// and the cooldown window throttles how often a run may start. Both are
// the only process-wide control state and are accessed atomically.
type Orchestrator struct {
	engine   *orders.Engine
	logs     *auditlog.Manager
	creds    CredentialStore
	sellers  []Seller
	snapshot Snapshotter

	cooldown  time.Duration
	waitBound time.Duration
	fetching  atomic.Bool

	mu        sync.Mutex
	lastFetch time.Time
}

// NewOrchestrator wires an orchestrator. snapshot may be nil when no
// persistence is attached.
func NewOrchestrator(engine *orders.Engine, logs *auditlog.Manager, creds CredentialStore, sellers []Seller, snapshot Snapshotter, cooldown, waitBound time.Duration) *Orchestrator {
	return &Orchestrator{
		engine:    engine,
		logs:      logs,
		creds:     creds,
		sellers:   sellers,
		snapshot:  snapshot,
		cooldown:  cooldown,
		waitBound: waitBound,
	}
}

// LastFetch returns the timestamp of the last completed run.
func (o *Orchestrator) LastFetch() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastFetch
}

// RestoreLastFetch loads the persisted run timestamp at startup.
func (o *Orchestrator) RestoreLastFetch(t time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastFetch = t
}

// FetchAllRecentOrders runs one fetch across every platform with valid
// credentials and feeds the combined result to the reconciliation
// engine. It is a no-op — returning false — when no platform has
// credentials, when the cooldown window has not elapsed, or when a run
// is already in flight (orchestrator flag or any provider busy flag).
// Per-platform failures are aggregated into one system-error entry and
// never block sibling platforms; a platform that has not settled within
// the bounded wait counts as failed and the run proceeds with whatever
// completed.
func (o *Orchestrator) FetchAllRecentOrders(ctx context.Context) bool {
	var eligible []Seller
	for _, s := range o.sellers {
		if o.creds.HasValidToken(s.Platform()) {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		logger.Debug(ctx).Msg("No platform has valid credentials, skipping fetch")
		return false
	}

	o.mu.Lock()
	since := o.lastFetch
	cooling := time.Since(o.lastFetch) < o.cooldown
	o.mu.Unlock()
	if cooling {
		logger.Debug(ctx).Msg("Fetch cooldown has not elapsed, skipping")
		return false
	}

	if !o.fetching.CompareAndSwap(false, true) {
		logger.Debug(ctx).Msg("Fetch already in flight, skipping")
		return false
	}
	defer o.fetching.Store(false)

	for _, s := range eligible {
		if s.Busy() {
			logger.Debug(ctx).Str("platform", string(s.Platform())).Msg("Provider busy, skipping fetch")
			return false
		}
	}

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "fetch.all_recent_orders")
	defer span.End()
	span.SetAttributes(
		attribute.String("fetch.run_id", runID),
		attribute.Int("fetch.platforms", len(eligible)),
	)

	type result struct {
		platform catalog.Platform
		orders   []orders.Order
		err      error
	}
	results := make(chan result, len(eligible))
	var wg sync.WaitGroup
	for _, s := range eligible {
		wg.Add(1)
		go func(s Seller) {
			defer wg.Done()
			pctx, pspan := tracer.Start(ctx, "fetch.platform",
				trace.WithAttributes(attribute.String("fetch.platform", string(s.Platform()))))
			got, err := s.FetchOrders(pctx, since)
			if err != nil {
				pspan.RecordError(err)
				pspan.SetStatus(codes.Error, "platform fetch failed")
			}
			pspan.End()
			results <- result{platform: s.Platform(), orders: got, err: err}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timedOut := false
	select {
	case <-done:
	case <-time.After(o.waitBound):
		timedOut = true
	}

	var batch []orders.Order
	failures := 0
	settled := 0
drain:
	for {
		select {
		case r := <-results:
			settled++
			if r.err != nil {
				failures++
				fetchFailures.WithLabelValues(string(r.platform)).Inc()
				logger.Warn(ctx).Err(r.err).
					Str("platform", string(r.platform)).
					Str("run_id", runID).
					Msg("Platform fetch failed")
				continue
			}
			batch = append(batch, r.orders...)
		default:
			break drain
		}
	}
	if timedOut {
		// unsettled platforms count as failed; their goroutines finish
		// into the buffered channel and are discarded
		failures += len(eligible) - settled
		span.SetStatus(codes.Error, "bounded wait elapsed")
		logger.Warn(ctx).
			Int("unsettled", len(eligible)-settled).
			Str("run_id", runID).
			Msg("Bounded wait elapsed, proceeding with completed fetches")
	}

	if failures > 0 {
		o.logs.Create(auditlog.TypeSystemError, 0,
			fmt.Sprintf("%d of %d platform fetches failed", failures, len(eligible)), "")
	}

	// results reach the order table only once all platforms settled,
	// keeping a consistent joint view per run
	o.engine.Process(batch)

	completed := time.Now()
	o.mu.Lock()
	o.lastFetch = completed
	o.mu.Unlock()

	fetchRuns.Inc()
	if o.snapshot != nil {
		if err := o.snapshot.PersistRun(ctx, completed); err != nil {
			logger.Error(ctx).Err(err).Str("run_id", runID).Msg("Failed to persist fetch state")
		}
	}

	logger.Info(ctx).
		Str("run_id", runID).
		Int("platforms", len(eligible)).
		Int("orders", len(batch)).
		Int("failures", failures).
		Msg("Fetch run completed")
	return true
}
