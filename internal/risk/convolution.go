package risk

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"shakerisk/internal/hazard"
	"shakerisk/internal/types"
)

// DefaultLossResolution is the loss-grid step of the convolution output, in
// loss-ratio units. It doubles as the merge tolerance: masses falling inside
// the same grid cell are combined, bounding output size.
const DefaultLossResolution = 0.005

// ConvolverConfig tunes the vulnerability convolution engine. The bin
// representative and the loss resolution are observable in output values, so
// they are explicit configuration, never hidden defaults of the algorithm.
type ConvolverConfig struct {
	// BinRepresentative selects the intensity at which the vulnerability
	// function is evaluated for each hazard-curve bin: the bin midpoint
	// (default) or its right edge.
	BinRepresentative types.BinRepresentative

	// LossResolution is the loss-grid step and merge tolerance. Zero selects
	// DefaultLossResolution.
	LossResolution float64

	// CoVSamples is the number of point masses per non-degenerate loss
	// distribution. Zero selects DefaultCoVSamples.
	CoVSamples int

	// StrictValidation promotes malformed-curve findings from logged
	// warnings to fatal errors.
	StrictValidation bool
}

// Convolver turns one hazard curve and one vulnerability function into a
// loss-exceedance curve for one asset. Convolver is stateless apart from its
// configuration and safe for concurrent use; the original and retrofitted
// runs for the same asset may execute in parallel.
type Convolver struct {
	cfg    ConvolverConfig
	logger *slog.Logger
}

// NewConvolver creates a Convolver. logger may be nil.
func NewConvolver(cfg ConvolverConfig, logger *slog.Logger) *Convolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BinRepresentative == "" {
		cfg.BinRepresentative = types.BinMidpoint
	}
	if cfg.LossResolution <= 0 {
		cfg.LossResolution = DefaultLossResolution
	}
	if cfg.CoVSamples <= 0 {
		cfg.CoVSamples = DefaultCoVSamples
	}
	return &Convolver{cfg: cfg, logger: logger}
}

// Convolve computes the loss-exceedance curve of one asset under one
// vulnerability variant.
//
// Algorithm: each pair of adjacent hazard levels forms an intensity bin
// whose annual occurrence probability is the difference of the two
// exceedance probabilities; the residual probability beyond the last
// tabulated level is carried as a final bin at that level. The vulnerability
// function's loss distribution, interpolated at the bin's representative
// intensity, is discretized into point masses which accumulate
// probability-weighted onto a loss axis. The result is tabulated on a
// uniform loss grid of step LossResolution (masses inside one cell merge),
// with the strict-exceedance convention: the probability at grid level l is
// the annual probability of a loss strictly greater than l. Intensities
// below the first tabulated hazard level are not convolved; the
// vulnerability function does not describe them.
//
// The output curve always has at least two points and always ends at
// exceedance probability zero, and a vulnerability function with zero loss
// at every intensity integrates to an AAL of exactly zero.
func (c *Convolver) Convolve(ctx context.Context, hc *types.HazardCurve, vf *types.VulnerabilityFunction, assetID string) (*types.LossCurve, error) {
	if hc.IMT != vf.IMT {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeIncompatibleIMT,
			"hazard curve and vulnerability function use different intensity measures", nil,
			map[string]any{
				"asset_id":   assetID,
				"hazard_imt": string(hc.IMT),
				"vuln_imt":   string(vf.IMT),
				"variant":    string(vf.Variant),
			})
	}

	if vErr := types.ValidateHazardCurve(hc); vErr != nil {
		if c.cfg.StrictValidation {
			return nil, vErr.WithDetails(map[string]any{"asset_id": assetID})
		}
		c.logger.WarnContext(ctx, "malformed hazard curve, proceeding as given",
			"asset_id", assetID,
			"site_id", hc.SiteID,
			"error", vErr.Message,
		)
	}
	if vErr := types.ValidateVulnerabilityFunction(vf); vErr != nil {
		if c.cfg.StrictValidation {
			return nil, vErr.WithDetails(map[string]any{"asset_id": assetID})
		}
		c.logger.WarnContext(ctx, "malformed vulnerability function, proceeding as given",
			"asset_id", assetID,
			"variant", string(vf.Variant),
			"error", vErr.Message,
		)
	}
	if len(hc.Levels) < 2 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeDegenerateCurve,
			"hazard curve has too few levels to form intensity bins", nil,
			map[string]any{"asset_id": assetID, "levels": len(hc.Levels)})
	}

	// Accumulate annual occurrence probability per loss value.
	rates := make(map[float64]float64)
	addBin := func(rep, prob float64) {
		if prob <= 0 {
			return
		}
		mean := hazard.InterpPoE(vf.Levels, vf.MeanLossRatios, rep)
		cov := hazard.InterpPoE(vf.Levels, vf.CoVs, rep)
		losses, probs := discretizeLossRatio(mean, cov, c.cfg.CoVSamples)
		for k := range losses {
			rates[losses[k]] += prob * probs[k]
		}
	}

	for i := 0; i+1 < len(hc.Levels); i++ {
		prob := hc.Poes[i] - hc.Poes[i+1]
		rep := hc.Levels[i+1]
		if c.cfg.BinRepresentative == types.BinMidpoint {
			rep = (hc.Levels[i] + hc.Levels[i+1]) / 2
		}
		addBin(rep, prob)
	}
	// Tail bin: events exceeding the last tabulated level.
	addBin(hc.Levels[len(hc.Levels)-1], hc.Poes[len(hc.Poes)-1])

	return buildLossCurve(assetID, vf.Variant, rates, c.cfg.LossResolution), nil
}

// buildLossCurve tabulates accumulated loss masses onto the uniform grid.
func buildLossCurve(assetID string, variant types.VulnerabilityVariant, rates map[float64]float64, resolution float64) *types.LossCurve {
	masses := make([]float64, 0, len(rates))
	for l := range rates {
		masses = append(masses, l)
	}
	sort.Float64s(masses)

	maxLoss := 0.0
	if len(masses) > 0 {
		maxLoss = masses[len(masses)-1]
	}

	// Grid from 0 to the cell containing the largest mass, minimum two
	// points so the curve is always integrable.
	cells := int(math.Ceil(maxLoss/resolution - 1e-12))
	if cells < 1 {
		cells = 1
	}
	losses := make([]float64, cells+1)
	poes := make([]float64, cells+1)
	for i := range losses {
		losses[i] = float64(i) * resolution
	}

	// Strict exceedance: walk masses from the top, accumulating the annual
	// probability of losses greater than each grid level. Masses within a
	// rounding error of a grid level sit on that level, not above it;
	// float64(i)*resolution and an interpolated mean can disagree by an ulp
	// for mathematically equal values.
	tol := resolution * 1e-9
	j := len(masses) - 1
	cum := 0.0
	for i := cells; i >= 0; i-- {
		for j >= 0 && masses[j] > losses[i]+tol {
			cum += rates[masses[j]]
			j--
		}
		poes[i] = cum
	}

	return &types.LossCurve{
		AssetID: assetID,
		Variant: variant,
		Unit:    types.LossUnitRatio,
		Losses:  losses,
		Poes:    poes,
	}
}
