// Package engine orchestrates a full benefit-cost batch: one hazard fetch
// through the reuse controller, realization aggregation per site, then a
// bounded per-asset fan-out running the two vulnerability convolutions, the
// AAL integrations and the discounted benefit-cost calculation.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shakerisk/internal/cache"
	"shakerisk/internal/hazard"
	"shakerisk/internal/risk"
	"shakerisk/internal/types"
)

// DefaultWorkerLimit bounds the per-asset fan-out when no limit is
// configured.
const DefaultWorkerLimit = 8

// BatchMetrics publishes batch-level telemetry. It extends the aggregator's
// publisher so one CloudWatch client serves both stages.
type BatchMetrics interface {
	hazard.MetricPublisher
	PublishBatchStats(ctx context.Context, assets, failed int, duration time.Duration) error
}

// Config tunes the engine independent of any single job.
type Config struct {
	// WorkerLimit caps concurrent per-asset computations. Zero selects
	// DefaultWorkerLimit.
	WorkerLimit int

	// WarnThreshold is handed to the realization aggregator. Zero selects
	// its default.
	WarnThreshold int
}

// Engine runs benefit-cost batches. Construct once and reuse; Run is safe
// for concurrent use.
type Engine struct {
	cfg      Config
	hazards  *cache.Controller
	vuln     types.VulnerabilityProvider
	metrics  BatchMetrics
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates an Engine. metrics and logger may be nil.
func New(cfg Config, hazards *cache.Controller, vuln types.VulnerabilityProvider, metrics BatchMetrics, logger *slog.Logger) (*Engine, error) {
	if hazards == nil {
		return nil, errors.New("engine: hazard controller must not be nil")
	}
	if vuln == nil {
		return nil, errors.New("engine: vulnerability provider must not be nil")
	}
	if cfg.WorkerLimit <= 0 {
		cfg.WorkerLimit = DefaultWorkerLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		hazards:  hazards,
		vuln:     vuln,
		metrics:  metrics,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Run executes one batch: every asset is convolved against its site's mean
// hazard curve under both vulnerability variants and reduced to a
// benefit-cost result. Per-asset failures are isolated into typed outcome
// errors; Run itself fails only on invalid configuration, hazard
// acquisition failure or context cancellation.
//
// econ supplies per-asset retrofit economics. Assets without an entry fall
// back to the job's batch-level interest rate and life years but still
// require a retrofit cost, so a missing entry is a per-asset
// InvalidEconomics failure.
func (e *Engine) Run(ctx context.Context, job types.JobConfig, assets []types.Asset, econ map[string]*types.RetrofitEconomics) (*types.BatchResult, error) {
	started := time.Now()

	if err := e.validateJob(job, assets); err != nil {
		return nil, err
	}

	store, outcome, err := e.hazards.Fetch(ctx, job.Hazard)
	if err != nil {
		return nil, err
	}

	var aggMetrics hazard.MetricPublisher
	if e.metrics != nil {
		aggMetrics = e.metrics
	}
	agg := hazard.NewAggregator(hazard.AggregatorConfig{
		IndividualCurves: job.Risk.IndividualCurves,
		WarnThreshold:    e.cfg.WarnThreshold,
	}, e.logger, aggMetrics)

	// One aggregation per site; assets share their site's mean curve.
	means := make(map[string]*types.HazardCurve, len(job.Hazard.Sites))
	var individual []*types.HazardCurve
	var hazardMap []types.HazardMapPoint
	for _, site := range sortedSites(job.Hazard.Sites) {
		res, aggErr := agg.Aggregate(ctx, store, site.ID, job.Hazard.IMT)
		if aggErr != nil {
			return nil, aggErr
		}
		means[site.ID] = res.Mean
		individual = append(individual, res.Individual...)
		if len(job.Risk.TargetPoEs) > 0 {
			hazardMap = append(hazardMap, hazard.ExtractHazardMap(res.Mean, job.Risk.TargetPoEs)...)
		}
	}

	conv := risk.NewConvolver(risk.ConvolverConfig{
		BinRepresentative: job.Risk.BinRepresentative,
		LossResolution:    job.Risk.LossResolution,
		StrictValidation:  job.Risk.StrictValidation,
	}, e.logger)

	result := &types.BatchResult{
		RunID:            uuid.New().String(),
		CacheKey:         store.Key(),
		CacheHit:         outcome == types.CacheOutcomeHit,
		Outcomes:         make(map[string]*types.AssetOutcome, len(assets)),
		StartedAt:        started.UTC(),
		HazardMap:        hazardMap,
		IndividualCurves: individual,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WorkerLimit)

	for _, asset := range assets {
		g.Go(func() error {
			outcome := e.runAsset(gctx, conv, means, job.Risk, asset, econ[asset.ID])
			mu.Lock()
			result.Outcomes[asset.ID] = outcome
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range result.Outcomes {
		if o.Failed() {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	result.Duration = time.Since(started)

	// The failure summary is part of every run's report, not only failed
	// ones.
	e.logger.InfoContext(ctx, "batch complete",
		"run_id", result.RunID,
		"cache_key", result.CacheKey,
		"cache_outcome", string(outcome),
		"assets", len(assets),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	if result.Failed > 0 {
		e.logger.WarnContext(ctx, "batch finished with asset failures",
			"run_id", result.RunID,
			"failures", result.FailureSummary(),
		)
	}

	if e.metrics != nil {
		if err := e.metrics.PublishBatchStats(ctx, len(assets), result.Failed, result.Duration); err != nil {
			e.logger.WarnContext(ctx, "failed to publish batch stats", "error", err)
		}
	}
	return result, nil
}

// runAsset computes one asset end to end. Every failure is converted to a
// typed AppError on the outcome; only context cancellation escapes.
func (e *Engine) runAsset(ctx context.Context, conv *risk.Convolver, means map[string]*types.HazardCurve, rp types.RiskParams, asset types.Asset, econ *types.RetrofitEconomics) *types.AssetOutcome {
	out := &types.AssetOutcome{AssetID: asset.ID}

	fail := func(err error) *types.AssetOutcome {
		var appErr *types.AppError
		if !errors.As(err, &appErr) {
			appErr = types.NewAppError(types.ErrCodeInternalUnexpected, err.Error(), err)
		}
		out.Err = appErr
		return out
	}

	mean, ok := means[asset.SiteID]
	if !ok {
		return fail(types.NewAppErrorWithDetails(types.ErrCodeNotFoundSite,
			"asset references a site absent from the hazard configuration", nil,
			map[string]any{"asset_id": asset.ID, "site_id": asset.SiteID}))
	}

	// The two variants are independent until the benefit comparison, so they
	// convolve concurrently and join before ComputeBCR.
	var lossOrig, lossRetro *types.LossCurve
	vg, vctx := errgroup.WithContext(ctx)
	vg.Go(func() error {
		lc, err := e.convolveVariant(vctx, conv, mean, asset.ID, types.VariantOriginal)
		lossOrig = lc
		return err
	})
	vg.Go(func() error {
		lc, err := e.convolveVariant(vctx, conv, mean, asset.ID, types.VariantRetrofitted)
		lossRetro = lc
		return err
	})
	if err := vg.Wait(); err != nil {
		return fail(err)
	}

	aalOrig, intErr := risk.IntegrateAAL(lossOrig)
	if intErr != nil {
		return fail(intErr)
	}
	aalRetro, intErr := risk.IntegrateAAL(lossRetro)
	if intErr != nil {
		return fail(intErr)
	}

	if econ == nil {
		return fail(types.NewAppErrorWithDetails(types.ErrCodeInvalidEconomics,
			"no retrofit economics supplied for asset", nil,
			map[string]any{"asset_id": asset.ID, "parameter": "retrofit_cost"}))
	}
	// An unset interest rate falls back to the batch default; an explicit
	// zero rate means no discounting and is preserved.
	resolved := *econ
	resolved.AssetID = asset.ID
	if resolved.LifeYears == 0 {
		resolved.LifeYears = rp.LifeYears
	}
	if resolved.InterestRate == nil {
		r := rp.InterestRate
		resolved.InterestRate = &r
	}

	bcr, bcrErr := risk.ComputeBCR(aalOrig, aalRetro, asset.Value, &resolved)
	if bcrErr != nil {
		return fail(bcrErr)
	}
	out.Result = bcr

	if rp.KeepLossCurves {
		out.LossOriginal = lossOrig
		out.LossRetrofitted = lossRetro
	}
	for _, poe := range rp.TargetPoEs {
		out.ConditionalLosses = append(out.ConditionalLosses, risk.ConditionalLossAtPoE(lossOrig, poe))
	}
	return out
}

func (e *Engine) convolveVariant(ctx context.Context, conv *risk.Convolver, mean *types.HazardCurve, assetID string, variant types.VulnerabilityVariant) (*types.LossCurve, error) {
	vf, err := e.vuln.Get(ctx, assetID, variant)
	if err != nil {
		return nil, err
	}
	return conv.Convolve(ctx, mean, vf, assetID)
}

// validateJob checks the configuration surface before any work starts.
func (e *Engine) validateJob(job types.JobConfig, assets []types.Asset) error {
	if err := e.validate.Struct(job); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidParam,
			"job configuration failed validation", err)
	}
	if !job.Risk.BinRepresentative.Valid() {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidParam,
			"unrecognized bin representative", nil,
			map[string]any{"parameter": "bin_representative", "value": string(job.Risk.BinRepresentative)})
	}
	for i := 1; i < len(job.Hazard.IntensityLevels); i++ {
		if job.Hazard.IntensityLevels[i] <= job.Hazard.IntensityLevels[i-1] {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLevels,
				"intensity levels must be strictly increasing", nil,
				map[string]any{"parameter": "intensity_levels", "index": i})
		}
	}
	if len(assets) == 0 {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"batch contains no assets", nil)
	}
	for i := range assets {
		if err := e.validate.Struct(assets[i]); err != nil {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidParam,
				"asset failed validation", err,
				map[string]any{"asset_id": assets[i].ID})
		}
	}
	return nil
}

func sortedSites(sites []types.Site) []types.Site {
	out := append([]types.Site(nil), sites...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
