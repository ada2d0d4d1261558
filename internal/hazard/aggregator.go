package hazard

import (
	"context"
	"log/slog"

	"shakerisk/internal/types"
)

// DefaultRealizationWarnThreshold is the realization count above which an
// individual-curve export triggers a resource-risk warning. Exported data
// volume scales linearly with the realization count, so large logic trees
// must warn before proceeding rather than run into an out-of-resource
// failure.
const DefaultRealizationWarnThreshold = 256

// MetricPublisher publishes aggregator telemetry.
type MetricPublisher interface {
	// PublishResourceWarning emits a counter when an individual-curve export
	// exceeds the realization warning threshold.
	PublishResourceWarning(ctx context.Context, realizations int) error
}

// AggregatorConfig tunes the realization aggregator.
type AggregatorConfig struct {
	// IndividualCurves requests every per-realization curve in the result in
	// addition to the weighted mean. The default (false) computes the
	// mean-only path.
	IndividualCurves bool

	// WarnThreshold is the realization count above which individual export
	// surfaces a resource-risk warning. Zero selects
	// DefaultRealizationWarnThreshold.
	WarnThreshold int
}

// AggregateResult holds the statistics produced for one (site, IMT).
type AggregateResult struct {
	// Mean is the weighted-mean curve, tagged with the synthetic "mean"
	// realization identifier.
	Mean *types.HazardCurve

	// Individual holds every per-realization curve (resampled onto the
	// common support) when individual export was requested; nil otherwise.
	Individual []*types.HazardCurve
}

// Aggregator combines per-realization hazard curves into summary statistics
// without materializing more than requested.
type Aggregator struct {
	cfg     AggregatorConfig
	logger  *slog.Logger
	metrics MetricPublisher
}

// NewAggregator creates an Aggregator. logger may be nil (defaults to
// slog.Default()); metrics may be nil (warnings are then log-only).
func NewAggregator(cfg AggregatorConfig, logger *slog.Logger, metrics MetricPublisher) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = DefaultRealizationWarnThreshold
	}
	return &Aggregator{cfg: cfg, logger: logger, metrics: metrics}
}

// Aggregate reduces the store's per-realization curves for one (site, IMT)
// to the weighted-mean curve, optionally carrying every individual curve.
//
// The mean at each intensity level is the weight-sum of the per-realization
// exceedance probabilities at that level. Realizations tabulated on
// different supports are first resampled onto the union of all supports via
// monotone interpolation, so the mean is defined everywhere any realization
// is.
func (a *Aggregator) Aggregate(ctx context.Context, store *Store, site string, imt types.IMT) (*AggregateResult, error) {
	curves := store.CurvesFor(site, imt)
	if len(curves) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSite,
			"hazard store holds no curves for site", nil,
			map[string]any{"site_id": site, "imt": string(imt)})
	}
	if len(curves) != len(store.Realizations()) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeCacheInconsistency,
			"hazard store is missing realization curves for site", nil,
			map[string]any{
				"site_id":      site,
				"imt":          string(imt),
				"have":         len(curves),
				"realizations": len(store.Realizations()),
			})
	}

	if a.cfg.IndividualCurves && len(curves) > a.cfg.WarnThreshold {
		a.logger.WarnContext(ctx, "individual curve export exceeds realization threshold",
			"site_id", site,
			"realizations", len(curves),
			"threshold", a.cfg.WarnThreshold,
		)
		if a.metrics != nil {
			if err := a.metrics.PublishResourceWarning(ctx, len(curves)); err != nil {
				a.logger.WarnContext(ctx, "failed to publish resource warning metric",
					"error", err,
				)
				// Non-fatal: the warning is advisory.
			}
		}
	}

	// Build the union support across all realizations. Identical supports
	// (the common case) fold to the shared level set.
	levels := curves[0].Levels
	for _, c := range curves[1:] {
		levels = UnionLevels(levels, c.Levels)
	}

	resampled := make([]*types.HazardCurve, len(curves))
	for i, c := range curves {
		resampled[i] = Resample(c, levels)
	}

	mean := &types.HazardCurve{
		SiteID:      site,
		IMT:         imt,
		Realization: types.MeanRealization,
		Levels:      append([]float64(nil), levels...),
		Poes:        make([]float64, len(levels)),
	}
	for _, c := range resampled {
		w, _ := store.Weight(c.Realization)
		for i, p := range c.Poes {
			mean.Poes[i] += w * p
		}
	}

	res := &AggregateResult{Mean: mean}
	if a.cfg.IndividualCurves {
		res.Individual = resampled
	}
	return res, nil
}
