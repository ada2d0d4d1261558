package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"shakerisk/internal/hazard"
	"shakerisk/internal/types"
)

// RunRegistry records calculation runs keyed by their cache fingerprint.
// The registry is advisory bookkeeping (run history, failure reasons); the
// snapshot store remains the authority on whether hazard output exists. A
// nil registry disables recording.
type RunRegistry interface {
	// FindCompleteByKey returns the most recent complete run for a cache
	// key, or nil if none exists.
	FindCompleteByKey(ctx context.Context, key string) (*types.CalcRun, error)

	// Create inserts a new run record.
	Create(ctx context.Context, run *types.CalcRun) error

	// MarkComplete transitions a run to complete with its curve count.
	MarkComplete(ctx context.Context, id string, curveCount int) error

	// MarkFailed transitions a run to failed with a reason.
	MarkFailed(ctx context.Context, id string, reason string) error
}

// MetricPublisher publishes cache telemetry.
type MetricPublisher interface {
	// PublishCacheOutcome emits a counter for each hazard fetch outcome.
	PublishCacheOutcome(ctx context.Context, outcome types.CacheOutcome) error
}

// Controller is the hazard reuse controller. It keys every hazard request by
// the fingerprint of its hazard-affecting parameters and satisfies the
// request from, in order: the in-process store cache, the persisted
// snapshot, or a fresh computation by the external calculator.
//
// Concurrency contract: requests sharing a fingerprint coalesce onto a
// single computation (at most one concurrent hazard computation per key);
// every waiter observes either a complete store or the computation's error,
// never a partial entry. A cancelled computation persists nothing.
type Controller struct {
	calc      types.HazardCalculator
	snapshots SnapshotStore
	registry  RunRegistry
	metrics   MetricPublisher
	logger    *slog.Logger

	group singleflight.Group

	flightMu sync.Mutex
	flights  map[string]*flight

	mu     sync.RWMutex
	stores map[string]*hazard.Store
}

// flight is the shared context of one in-progress computation. Its context
// is detached from every caller and cancelled only when the last waiter
// leaves, so no single caller's cancellation can abort the computation for
// the others.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// ControllerConfig holds the dependencies for creating a Controller.
type ControllerConfig struct {
	Calculator types.HazardCalculator
	Snapshots  SnapshotStore
	Registry   RunRegistry // optional
	Metrics    MetricPublisher
	Logger     *slog.Logger
}

// NewController creates a Controller. Calculator and Snapshots are
// mandatory; Registry, Metrics and Logger are optional.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Calculator == nil {
		return nil, fmt.Errorf("cache: calculator must not be nil")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("cache: snapshot store must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		calc:      cfg.Calculator,
		snapshots: cfg.Snapshots,
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		logger:    logger,
		flights:   make(map[string]*flight),
		stores:    make(map[string]*hazard.Store),
	}, nil
}

// fetchResult is the value shared between coalesced waiters.
type fetchResult struct {
	store   *hazard.Store
	outcome types.CacheOutcome
}

// Fetch returns the hazard store for the given parameters, computing it via
// the external calculator only when no intact cached result exists. The
// returned outcome states how the request was satisfied.
//
// ctx cancellation is honored both while waiting on a coalesced computation
// and inside a fresh computation. A waiter abandoning the wait does not
// cancel the shared computation for the other waiters; the computation is
// cancelled once every waiter has left.
func (c *Controller) Fetch(ctx context.Context, params types.HazardParams) (*hazard.Store, types.CacheOutcome, error) {
	key := Fingerprint(params)

	fl := c.joinFlight(ctx, key)
	defer c.leaveFlight(key, fl)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(fl.ctx, key, params)
	})

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		fr := res.Val.(fetchResult)
		c.publishOutcome(ctx, fr.outcome)
		return fr.store, fr.outcome, nil
	}
}

// joinFlight registers ctx's caller as a waiter on the key's computation,
// creating the shared detached context on first entry. Values (trace IDs)
// carry over from the first caller; cancellation does not.
func (c *Controller) joinFlight(ctx context.Context, key string) *flight {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	fl, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = fl
	}
	fl.waiters++
	return fl
}

// leaveFlight releases one waiter and cancels the shared context when none
// remain.
func (c *Controller) leaveFlight(key string, fl *flight) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if c.flights[key] == fl {
		delete(c.flights, key)
	}
}

// Invalidate drops a key from both the in-process cache and the snapshot
// store. Explicit invalidation is part of the store lifecycle; it is never
// performed implicitly on reads.
func (c *Controller) Invalidate(key string) error {
	c.mu.Lock()
	delete(c.stores, key)
	c.mu.Unlock()
	return c.snapshots.Delete(key)
}

func (c *Controller) fetch(ctx context.Context, key string, params types.HazardParams) (fetchResult, error) {
	// In-process cache.
	c.mu.RLock()
	store, ok := c.stores[key]
	c.mu.RUnlock()
	if ok {
		return fetchResult{store: store, outcome: types.CacheOutcomeHit}, nil
	}

	// Persisted snapshot.
	outcome := types.CacheOutcomeMiss
	set, err := c.snapshots.Load(key)
	switch {
	case err == nil:
		store, buildErr := hazard.NewStore(key, set)
		if buildErr == nil {
			c.remember(key, store)
			c.logger.InfoContext(ctx, "hazard cache hit",
				"cache_key", key,
				"curves", store.Len(),
			)
			return fetchResult{store: store, outcome: types.CacheOutcomeHit}, nil
		}
		// Snapshot present but unusable: forced recomputation, never a
		// silent stale read.
		outcome = types.CacheOutcomeForced
		c.logger.WarnContext(ctx, "hazard snapshot corrupted, forcing recomputation",
			"cache_key", key,
			"error", buildErr,
		)
		_ = c.snapshots.Delete(key)
	case errors.Is(err, ErrSnapshotNotFound):
		if c.staleRegistryEntry(ctx, key) {
			outcome = types.CacheOutcomeForced
		}
	default:
		outcome = types.CacheOutcomeForced
		c.logger.WarnContext(ctx, "hazard snapshot unreadable, forcing recomputation",
			"cache_key", key,
			"error", err,
		)
		_ = c.snapshots.Delete(key)
	}

	store, err = c.compute(ctx, key, params)
	if err != nil {
		return fetchResult{}, err
	}
	return fetchResult{store: store, outcome: outcome}, nil
}

// staleRegistryEntry reports whether the registry believes a complete run
// exists for a key whose snapshot is gone — the CacheInconsistency case.
func (c *Controller) staleRegistryEntry(ctx context.Context, key string) bool {
	if c.registry == nil {
		return false
	}
	run, err := c.registry.FindCompleteByKey(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "run registry lookup failed",
			"cache_key", key,
			"error", err,
		)
		return false
	}
	if run == nil {
		return false
	}
	appErr := types.NewAppErrorWithDetails(types.ErrCodeCacheInconsistency,
		"registry records a complete run but its hazard output is missing", nil,
		map[string]any{"cache_key": key, "run_id": run.ID})
	c.logger.WarnContext(ctx, appErr.Message,
		"cache_key", key,
		"run_id", run.ID,
	)
	return true
}

// compute performs the full hazard computation and publishes its output.
// The snapshot is written only after the calculator succeeds, so
// cancellation can never expose a partial entry.
func (c *Controller) compute(ctx context.Context, key string, params types.HazardParams) (*hazard.Store, error) {
	runID := uuid.New().String()
	if c.registry != nil {
		rec := &types.CalcRun{
			ID:        runID,
			CacheKey:  key,
			Status:    types.RunStatusRunning,
			CreatedAt: time.Now().UTC(),
		}
		if err := c.registry.Create(ctx, rec); err != nil {
			c.logger.WarnContext(ctx, "failed to record calculation run",
				"run_id", runID,
				"error", err,
			)
			// Non-fatal: the registry is bookkeeping, not the authority.
		}
	}

	started := time.Now()
	set, err := c.calc.Compute(ctx, params)
	if err != nil {
		c.markFailed(ctx, runID, err)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamHazard,
			"hazard computation failed", err,
			map[string]any{"cache_key": key})
	}

	store, err := hazard.NewStore(key, set)
	if err != nil {
		c.markFailed(ctx, runID, err)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamHazard,
			"hazard calculator returned an invalid curve set", err,
			map[string]any{"cache_key": key})
	}

	if err := c.snapshots.Save(key, store.Snapshot()); err != nil {
		// The computation itself succeeded; losing the snapshot only costs
		// a future recomputation.
		c.logger.WarnContext(ctx, "failed to persist hazard snapshot",
			"cache_key", key,
			"error", err,
		)
	}
	if c.registry != nil {
		if err := c.registry.MarkComplete(ctx, runID, store.Len()); err != nil {
			c.logger.WarnContext(ctx, "failed to mark run complete",
				"run_id", runID,
				"error", err,
			)
		}
	}

	c.remember(key, store)
	c.logger.InfoContext(ctx, "hazard computation complete",
		"cache_key", key,
		"curves", store.Len(),
		"duration", time.Since(started),
	)
	return store, nil
}

func (c *Controller) markFailed(ctx context.Context, runID string, cause error) {
	if c.registry == nil {
		return
	}
	// Record the failure even when ctx itself was cancelled.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.registry.MarkFailed(recCtx, runID, cause.Error()); err != nil {
		c.logger.WarnContext(ctx, "failed to mark run failed",
			"run_id", runID,
			"error", err,
		)
	}
}

func (c *Controller) remember(key string, store *hazard.Store) {
	c.mu.Lock()
	c.stores[key] = store
	c.mu.Unlock()
}

func (c *Controller) publishOutcome(ctx context.Context, outcome types.CacheOutcome) {
	if c.metrics == nil {
		return
	}
	if err := c.metrics.PublishCacheOutcome(ctx, outcome); err != nil {
		c.logger.WarnContext(ctx, "failed to publish cache outcome metric",
			"outcome", string(outcome),
			"error", err,
		)
	}
}
