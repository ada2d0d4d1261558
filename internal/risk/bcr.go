package risk

import (
	"math"

	"shakerisk/internal/types"
)

// AnnuityFactor is the present-value multiplier converting a constant annual
// cash flow over n years into a single discounted value at interest rate r:
//
//	(1 - (1+r)^-n) / r    for r > 0
//	n                     for r = 0
//
// The r = 0 branch is the analytic limit and avoids the division by zero.
// For r > 0 the factor lies strictly between 0 and n.
func AnnuityFactor(r float64, n int) float64 {
	if r == 0 {
		return float64(n)
	}
	return (1 - math.Pow(1+r, -float64(n))) / r
}

// ComputeBCR runs the discounted benefit-cost calculation for one asset.
//
// Both AAL inputs are in loss-ratio units; assetValue converts them to the
// portfolio's monetary unit. The yearly benefit is the AAL reduction
// achieved by the retrofit; a retrofit that increases AAL yields a negative
// benefit and a negative BCR, which is a valid, reportable outcome rather
// than an error. Internal computation uses full float64 precision; any
// rounding is left to display layers.
//
// Returns InvalidEconomics when econ fails validation (n <= 0, C <= 0, r
// unset or r < 0), naming the offending parameter.
func ComputeBCR(aalOriginal, aalRetrofitted, assetValue float64, econ *types.RetrofitEconomics) (*types.BenefitCostResult, *types.AppError) {
	if vErr := types.ValidateEconomics(econ); vErr != nil {
		return nil, vErr
	}

	benefitPerYear := (aalOriginal - aalRetrofitted) * assetValue
	discounted := benefitPerYear * AnnuityFactor(*econ.InterestRate, econ.LifeYears)

	return &types.BenefitCostResult{
		AssetID:           econ.AssetID,
		AALOriginal:       aalOriginal,
		AALRetrofitted:    aalRetrofitted,
		DiscountedBenefit: discounted,
		BCR:               discounted / econ.RetrofitCost,
	}, nil
}
