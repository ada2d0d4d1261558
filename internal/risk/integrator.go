package risk

import (
	"sort"

	"shakerisk/internal/types"
)

// IntegrateAAL reduces a loss-exceedance curve to its average annual loss:
// the integral of the exceedance-probability function over loss value.
//
// Declared integration policy (shared by both vulnerability variants so the
// benefit comparison is unbiased):
//   - trapezoidal summation over the curve's discrete support, sorted by
//     loss value; the result is therefore invariant to the order of the
//     input pairs;
//   - below the minimum tabulated loss the exceedance probability is
//     assumed constant at the first point's value, contributing a
//     rectangle of area minLoss * firstPoe (zero when the support starts
//     at loss 0, as convolution output does).
//
// Returns DegenerateCurve when the curve has fewer than two points.
func IntegrateAAL(curve *types.LossCurve) (float64, *types.AppError) {
	n := len(curve.Losses)
	if n != len(curve.Poes) {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeMalformedCurve,
			"loss curve losses and poes length mismatch", nil,
			map[string]any{"asset_id": curve.AssetID, "losses_len": n, "poes_len": len(curve.Poes)})
	}
	if n < 2 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeDegenerateCurve,
			"loss curve has fewer than two points", nil,
			map[string]any{"asset_id": curve.AssetID, "points": n})
	}

	type pair struct{ loss, poe float64 }
	pairs := make([]pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = pair{loss: curve.Losses[i], poe: curve.Poes[i]}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].loss != pairs[j].loss {
			return pairs[i].loss < pairs[j].loss
		}
		return pairs[i].poe > pairs[j].poe
	})

	// Constant-probability extension below the minimum tabulated loss.
	aal := pairs[0].loss * pairs[0].poe
	for i := 0; i+1 < n; i++ {
		aal += (pairs[i+1].loss - pairs[i].loss) * (pairs[i].poe + pairs[i+1].poe) / 2
	}
	return aal, nil
}

// ConditionalLossAtPoE inverts a loss-exceedance curve at one target
// probability, returning the loss value whose annual exceedance probability
// equals the target. Targets above the curve's maximum probability clamp to
// the smallest tabulated loss; targets below the minimum clamp to the
// largest.
func ConditionalLossAtPoE(curve *types.LossCurve, targetPoE float64) types.ConditionalLoss {
	loss := 0.0
	n := len(curve.Losses)
	if n > 0 {
		switch {
		case targetPoE >= curve.Poes[0]:
			loss = curve.Losses[0]
		case targetPoE <= curve.Poes[n-1]:
			loss = curve.Losses[n-1]
		default:
			for i := 1; i < n; i++ {
				if curve.Poes[i] <= targetPoE {
					if curve.Poes[i-1] == curve.Poes[i] {
						loss = curve.Losses[i]
						break
					}
					t := (curve.Poes[i-1] - targetPoE) / (curve.Poes[i-1] - curve.Poes[i])
					loss = curve.Losses[i-1] + t*(curve.Losses[i]-curve.Losses[i-1])
					break
				}
			}
		}
	}
	return types.ConditionalLoss{
		AssetID:   curve.AssetID,
		TargetPoE: targetPoE,
		Loss:      loss,
	}
}
