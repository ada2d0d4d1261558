// Package risk implements the financial risk pipeline: vulnerability
// convolution (hazard curve to loss-exceedance curve), loss integration
// (average annual loss), conditional-loss extraction, and the discounted
// benefit-cost calculation.
package risk

import (
	"math"
)

// DefaultCoVSamples is the number of point masses used to discretize a
// non-degenerate loss-ratio distribution at one intensity level.
const DefaultCoVSamples = 7

// discretizeLossRatio approximates the loss-ratio distribution at one
// intensity level with equal-probability point masses.
//
// A zero mean or zero coefficient of variation collapses to a single mass at
// the mean. Otherwise the distribution is lognormal with the given mean and
// CoV, sampled at the midpoint quantile of each of `samples` equal
// probability slices. Sampled ratios are capped at 1: a loss ratio cannot
// exceed the full replacement value.
func discretizeLossRatio(mean, cov float64, samples int) (losses, probs []float64) {
	if mean == 0 || cov == 0 {
		return []float64{mean}, []float64{1}
	}
	if samples < 1 {
		samples = DefaultCoVSamples
	}

	// Lognormal parameters matching the requested mean and CoV.
	sigma := math.Sqrt(math.Log(1 + cov*cov))
	mu := math.Log(mean) - sigma*sigma/2

	losses = make([]float64, samples)
	probs = make([]float64, samples)
	p := 1.0 / float64(samples)
	for k := 0; k < samples; k++ {
		q := (float64(k) + 0.5) * p
		x := math.Exp(mu + sigma*normalQuantile(q))
		if x > 1 {
			x = 1
		}
		losses[k] = x
		probs[k] = p
	}
	return losses, probs
}

// normalQuantile is the standard normal inverse CDF.
func normalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}
