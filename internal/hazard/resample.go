package hazard

import (
	"sort"

	"shakerisk/internal/types"
)

// Pure resampling helpers. Curves tabulated on different intensity supports
// must be brought onto a common support before they can be combined; the
// interpolation is monotone (piecewise linear between tabulated points,
// clamped to the endpoint values outside the tabulated range), so a
// well-formed non-increasing curve stays non-increasing after resampling.

// InterpPoE evaluates a tabulated exceedance curve at intensity x.
// Levels must be strictly increasing and parallel to poes. Outside the
// tabulated range the nearest endpoint value is returned.
func InterpPoE(levels, poes []float64, x float64) float64 {
	n := len(levels)
	if n == 0 {
		return 0
	}
	if x <= levels[0] {
		return poes[0]
	}
	if x >= levels[n-1] {
		return poes[n-1]
	}
	// First index with levels[i] > x; x lies in (levels[i-1], levels[i]).
	i := sort.SearchFloat64s(levels, x)
	if levels[i] == x {
		return poes[i]
	}
	t := (x - levels[i-1]) / (levels[i] - levels[i-1])
	return poes[i-1] + t*(poes[i]-poes[i-1])
}

// UnionLevels merges two strictly increasing level sequences into one
// strictly increasing sequence containing every distinct level of both.
func UnionLevels(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// Resample returns a copy of the curve tabulated on the given levels.
// The input curve is not modified.
func Resample(c *types.HazardCurve, levels []float64) *types.HazardCurve {
	out := &types.HazardCurve{
		SiteID:      c.SiteID,
		IMT:         c.IMT,
		Realization: c.Realization,
		Levels:      append([]float64(nil), levels...),
		Poes:        make([]float64, len(levels)),
	}
	for i, x := range levels {
		out.Poes[i] = InterpPoE(c.Levels, c.Poes, x)
	}
	return out
}

// CommonSupport resamples two curves onto the union of their supports and
// returns the resampled pair. Both inputs are left untouched; if the
// supports are already identical the curves are still cloned so callers may
// mutate the results freely.
func CommonSupport(a, b *types.HazardCurve) (*types.HazardCurve, *types.HazardCurve) {
	levels := UnionLevels(a.Levels, b.Levels)
	return Resample(a, levels), Resample(b, levels)
}
