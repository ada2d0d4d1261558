package types

import "fmt"

// Well-formedness checks for input curves. These detect malformed upstream
// artifacts (non-monotone exceedance probabilities, unsorted supports) so
// that data-quality problems surface as typed MalformedCurve errors instead
// of silently biased numbers. Callers decide whether a MalformedCurve is a
// warning or fatal (strict-validation mode).

// ValidateHazardCurve checks structural invariants of a hazard curve:
//   - Levels and Poes have equal, non-zero length
//   - Levels are strictly increasing
//   - Poes lie in [0, 1] and are non-increasing in intensity
//
// Returns nil for a well-formed curve, or a *AppError with code
// ErrCodeMalformedCurve identifying the first violation.
func ValidateHazardCurve(h *HazardCurve) *AppError {
	if len(h.Levels) == 0 || len(h.Levels) != len(h.Poes) {
		return NewAppErrorWithDetails(ErrCodeMalformedCurve,
			"hazard curve levels and poes must be non-empty and equal length", nil,
			map[string]any{
				"site_id":     h.SiteID,
				"realization": h.Realization,
				"levels_len":  len(h.Levels),
				"poes_len":    len(h.Poes),
			})
	}
	if err := checkStrictlyIncreasing(h.Levels); err != nil {
		return NewAppErrorWithDetails(ErrCodeMalformedCurve,
			"hazard curve intensity levels must be strictly increasing", err,
			map[string]any{"site_id": h.SiteID, "realization": h.Realization})
	}
	for i, p := range h.Poes {
		if p < 0 || p > 1 {
			return NewAppErrorWithDetails(ErrCodeMalformedCurve,
				"hazard curve exceedance probability outside [0,1]", nil,
				map[string]any{"site_id": h.SiteID, "index": i, "poe": p})
		}
		if i > 0 && p > h.Poes[i-1] {
			return NewAppErrorWithDetails(ErrCodeMalformedCurve,
				"hazard curve exceedance probabilities must be non-increasing", nil,
				map[string]any{"site_id": h.SiteID, "index": i})
		}
	}
	return nil
}

// ValidateVulnerabilityFunction checks structural invariants of a
// vulnerability function:
//   - Levels, MeanLossRatios and CoVs have equal, non-zero length
//   - Levels are strictly increasing
//   - Mean loss ratios lie in [0, 1]
//   - CoVs are non-negative
//   - Mean loss ratios are non-decreasing in intensity
//
// The monotonicity of mean loss ratios is expected of well-formed models but
// not a hard requirement; it is still reported here so callers can flag it.
func ValidateVulnerabilityFunction(v *VulnerabilityFunction) *AppError {
	n := len(v.Levels)
	if n == 0 || len(v.MeanLossRatios) != n || len(v.CoVs) != n {
		return NewAppErrorWithDetails(ErrCodeMalformedCurve,
			"vulnerability function columns must be non-empty and equal length", nil,
			map[string]any{
				"variant":    string(v.Variant),
				"levels_len": n,
				"means_len":  len(v.MeanLossRatios),
				"covs_len":   len(v.CoVs),
			})
	}
	if err := checkStrictlyIncreasing(v.Levels); err != nil {
		return NewAppErrorWithDetails(ErrCodeMalformedCurve,
			"vulnerability function intensity levels must be strictly increasing", err,
			map[string]any{"variant": string(v.Variant)})
	}
	for i := 0; i < n; i++ {
		if v.MeanLossRatios[i] < 0 || v.MeanLossRatios[i] > 1 {
			return NewAppErrorWithDetails(ErrCodeMalformedCurve,
				"vulnerability mean loss ratio outside [0,1]", nil,
				map[string]any{"variant": string(v.Variant), "index": i, "mean": v.MeanLossRatios[i]})
		}
		if v.CoVs[i] < 0 {
			return NewAppErrorWithDetails(ErrCodeMalformedCurve,
				"vulnerability coefficient of variation must be non-negative", nil,
				map[string]any{"variant": string(v.Variant), "index": i, "cov": v.CoVs[i]})
		}
		if i > 0 && v.MeanLossRatios[i] < v.MeanLossRatios[i-1] {
			return NewAppErrorWithDetails(ErrCodeMalformedCurve,
				"vulnerability mean loss ratios decrease with intensity", nil,
				map[string]any{"variant": string(v.Variant), "index": i})
		}
	}
	return nil
}

// ValidateEconomics checks the retrofit economics parameters and reports the
// first offending parameter by name in the error details.
func ValidateEconomics(e *RetrofitEconomics) *AppError {
	switch {
	case e.LifeYears <= 0:
		return NewAppErrorWithDetails(ErrCodeInvalidEconomics,
			"asset life expectancy must be a positive number of years", nil,
			map[string]any{"asset_id": e.AssetID, "parameter": "life_years", "value": e.LifeYears})
	case e.RetrofitCost <= 0:
		return NewAppErrorWithDetails(ErrCodeInvalidEconomics,
			"retrofit cost must be positive", nil,
			map[string]any{"asset_id": e.AssetID, "parameter": "retrofit_cost", "value": e.RetrofitCost})
	case e.InterestRate == nil:
		return NewAppErrorWithDetails(ErrCodeInvalidEconomics,
			"interest rate is not set", nil,
			map[string]any{"asset_id": e.AssetID, "parameter": "interest_rate"})
	case *e.InterestRate < 0:
		return NewAppErrorWithDetails(ErrCodeInvalidEconomics,
			"interest rate must be non-negative", nil,
			map[string]any{"asset_id": e.AssetID, "parameter": "interest_rate", "value": *e.InterestRate})
	}
	return nil
}

func checkStrictlyIncreasing(xs []float64) error {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return fmt.Errorf("value at index %d (%g) not greater than predecessor (%g)", i, xs[i], xs[i-1])
		}
	}
	return nil
}
