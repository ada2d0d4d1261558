package types

import (
	"time"
)

// IMT identifies an intensity measure type, e.g. "PGA" or "SA(0.3)".
// A hazard curve and a vulnerability function may only be convolved when
// their IMTs are identical.
type IMT string

// MeanRealization is the synthetic realization identifier used for
// statistically aggregated (weighted-mean) hazard curves, as opposed to
// individual logic-tree realizations ("rlz-000", "rlz-001", ...).
const MeanRealization = "mean"

// Site is a location for which hazard curves are computed.
type Site struct {
	ID  string  `json:"id" validate:"required,max=64"`
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// HazardCurve tabulates the annual probability of exceeding each of a set
// of ground-motion intensity levels at one site, for one logic-tree
// realization (or the synthetic "mean").
//
// Levels must be strictly increasing and Poes non-increasing; violations are
// detected by ValidateHazardCurve and reported as MalformedCurve, never
// silently tolerated. Curves are immutable once produced: downstream stages
// operate on copies.
type HazardCurve struct {
	SiteID      string    `json:"site_id"`
	IMT         IMT       `json:"imt"`
	Realization string    `json:"realization"`
	Levels      []float64 `json:"levels"`
	Poes        []float64 `json:"poes"`
}

// Clone returns a deep copy of the curve. Aggregation and resampling always
// work on clones so the hazard store remains the single immutable source of
// truth.
func (h *HazardCurve) Clone() *HazardCurve {
	c := *h
	c.Levels = append([]float64(nil), h.Levels...)
	c.Poes = append([]float64(nil), h.Poes...)
	return &c
}

// RealizationWeight carries the logic-tree probability weight of one
// realization. Weights across a curve set must sum to 1.
type RealizationWeight struct {
	Realization string  `json:"realization"`
	Weight      float64 `json:"weight"`
}

// HazardCurveSet is the output of the external hazard calculator: every
// per-realization curve for every requested (site, IMT), plus the realization
// weights. The hazard store owns the set after population; consumers only
// read from it.
type HazardCurveSet struct {
	Curves  []HazardCurve       `json:"curves"`
	Weights []RealizationWeight `json:"weights"`
}

// VulnerabilityFunction maps ground-motion intensity to a loss-ratio
// distribution for an asset class. Each tabulated level carries the mean loss
// ratio and its coefficient of variation; a CoV of zero denotes a
// deterministic loss at that level.
//
// Mean loss ratios are expected to be non-decreasing in intensity for
// well-formed models. This is not enforced, but violations are flagged by
// ValidateVulnerabilityFunction.
type VulnerabilityFunction struct {
	IMT            IMT                  `json:"imt"`
	Variant        VulnerabilityVariant `json:"variant"`
	Levels         []float64            `json:"levels"`
	MeanLossRatios []float64            `json:"mean_loss_ratios"`
	CoVs           []float64            `json:"covs"`
}

// LossCurve is the loss-exceedance curve for one asset: the annual
// probability of exceeding each of a set of loss values. Losses are
// non-decreasing and Poes non-increasing. Derived, never mutated after
// creation, and never written back into the hazard store.
type LossCurve struct {
	AssetID string    `json:"asset_id"`
	Variant VulnerabilityVariant `json:"variant"`
	Unit    LossUnit  `json:"unit"`
	Losses  []float64 `json:"losses"`
	Poes    []float64 `json:"poes"`
}

// Asset is an insured structure. The engine treats it as an opaque identifier
// with a replacement value and a site association; exposure management beyond
// that is out of scope.
type Asset struct {
	ID     string  `json:"id" validate:"required,max=64"`
	SiteID string  `json:"site_id" validate:"required"`
	Value  float64 `json:"value" validate:"gt=0"`
}

// RetrofitEconomics holds the financial parameters of a retrofit decision
// for one asset. Supplied as input, immutable. InterestRate is a pointer so
// that an explicit zero rate (no discounting) is distinguishable from an
// absent rate, which falls back to the batch-level default.
type RetrofitEconomics struct {
	AssetID      string   `json:"asset_id"`
	InterestRate *float64 `json:"interest_rate,omitempty" validate:"omitempty,gte=0"`
	LifeYears    int      `json:"life_years" validate:"gt=0"`
	RetrofitCost float64  `json:"retrofit_cost" validate:"gt=0"`
}

// BenefitCostResult is the terminal per-asset output: both AAL values, the
// discounted benefit over the asset's life expectancy, and the benefit-cost
// ratio. Write-once.
type BenefitCostResult struct {
	AssetID           string  `json:"asset_id"`
	AALOriginal       float64 `json:"aal_original"`
	AALRetrofitted    float64 `json:"aal_retrofitted"`
	DiscountedBenefit float64 `json:"discounted_benefit"`
	BCR               float64 `json:"bcr"`
}

// AssetOutcome is either a completed result or a typed failure for one
// asset. Per-asset failures are isolated: one bad asset never aborts the
// batch.
type AssetOutcome struct {
	AssetID string             `json:"asset_id"`
	Result  *BenefitCostResult `json:"result,omitempty"`
	Err     *AppError          `json:"error,omitempty"`

	// Populated only when the run requests underlying curves.
	LossOriginal    *LossCurve `json:"loss_original,omitempty"`
	LossRetrofitted *LossCurve `json:"loss_retrofitted,omitempty"`

	// ConditionalLosses holds the original-variant losses interpolated at the
	// run's target exceedance probabilities, when any are configured.
	ConditionalLosses []ConditionalLoss `json:"conditional_losses,omitempty"`
}

// Failed reports whether the asset ended in a typed failure.
func (o *AssetOutcome) Failed() bool {
	return o.Err != nil
}

// BatchResult is the engine's output for one run: the per-asset outcome map
// plus a failure summary that is always produced alongside successes.
type BatchResult struct {
	RunID     string                   `json:"run_id"`
	CacheKey  string                   `json:"cache_key"`
	CacheHit  bool                     `json:"cache_hit"`
	Outcomes  map[string]*AssetOutcome `json:"outcomes"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration"`

	// HazardMap holds per-site intensities at the run's target exceedance
	// probabilities, extracted from the mean curves.
	HazardMap []HazardMapPoint `json:"hazard_map,omitempty"`

	// IndividualCurves holds every per-realization hazard curve when the run
	// requested them; nil otherwise.
	IndividualCurves []*HazardCurve `json:"individual_curves,omitempty"`
}

// FailureSummary returns the asset IDs that failed with their error codes,
// for the batch report required at the end of every run.
func (b *BatchResult) FailureSummary() map[string]ErrorCode {
	out := make(map[string]ErrorCode)
	for id, o := range b.Outcomes {
		if o.Failed() {
			out[id] = o.Err.Code
		}
	}
	return out
}

// HazardMapPoint is the intensity at one site whose mean hazard curve
// crosses a target exceedance probability. Hazard-map extraction is a
// downstream stage: changing target PoEs never invalidates the hazard cache.
type HazardMapPoint struct {
	SiteID    string  `json:"site_id"`
	TargetPoE float64 `json:"target_poe"`
	Intensity float64 `json:"intensity"`
}

// ConditionalLoss is a loss-exceedance curve interpolated at one target
// probability, reported per asset on request.
type ConditionalLoss struct {
	AssetID   string  `json:"asset_id"`
	TargetPoE float64 `json:"target_poe"`
	Loss      float64 `json:"loss"`
}

// CalcRun records one calculation in the registry, keyed by its hazard
// fingerprint. A later run with an identical CacheKey and an intact stored
// curve set reuses the hazard output instead of recomputing it.
type CalcRun struct {
	ID            string     `json:"id" db:"id"`
	CacheKey      string     `json:"cache_key" db:"cache_key"`
	Status        RunStatus  `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	FailureReason string     `json:"failure_reason,omitempty" db:"failure_reason"`
	CurveCount    int        `json:"curve_count" db:"curve_count"`
}
