package hazard

import (
	"shakerisk/internal/types"
)

// ExtractHazardMap interpolates a mean hazard curve at each target
// exceedance probability, yielding the intensity whose annual exceedance
// probability equals the target. This is a downstream extraction stage:
// changing the target probabilities never invalidates the hazard cache.
//
// The inverse lookup is piecewise linear on the (poe, level) pairs. Targets
// above the curve's maximum probability clamp to the lowest tabulated level;
// targets below the minimum clamp to the highest.
func ExtractHazardMap(mean *types.HazardCurve, targetPoEs []float64) []types.HazardMapPoint {
	out := make([]types.HazardMapPoint, 0, len(targetPoEs))
	for _, poe := range targetPoEs {
		out = append(out, types.HazardMapPoint{
			SiteID:    mean.SiteID,
			TargetPoE: poe,
			Intensity: intensityAtPoE(mean.Levels, mean.Poes, poe),
		})
	}
	return out
}

// intensityAtPoE inverts a non-increasing exceedance curve at one target
// probability.
func intensityAtPoE(levels, poes []float64, target float64) float64 {
	n := len(levels)
	if n == 0 {
		return 0
	}
	if target >= poes[0] {
		return levels[0]
	}
	if target <= poes[n-1] {
		return levels[n-1]
	}
	for i := 1; i < n; i++ {
		if poes[i] <= target {
			// target lies in [poes[i], poes[i-1]).
			if poes[i-1] == poes[i] {
				return levels[i]
			}
			t := (poes[i-1] - target) / (poes[i-1] - poes[i])
			return levels[i-1] + t*(levels[i]-levels[i-1])
		}
	}
	return levels[n-1]
}
