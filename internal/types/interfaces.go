package types

import "context"

// HazardCalculator abstracts the external PSHA subsystem that produces
// hazard curves. The core never performs the hazard computation itself; it
// only decides, via the cache controller, whether the calculator needs to be
// invoked at all.
//
// Implementations must respect ctx cancellation: a cancelled computation
// returns ctx.Err() and produces no output. The controller guarantees a
// cancelled run never leaves a partial cache entry visible to later lookups.
type HazardCalculator interface {
	// Compute runs the full probabilistic hazard computation for the given
	// hazard-affecting parameters and returns every per-realization curve
	// with its logic-tree weight.
	Compute(ctx context.Context, params HazardParams) (*HazardCurveSet, error)
}

// VulnerabilityProvider resolves the two named vulnerability variants for an
// asset. Model storage and parsing are external; the engine only consumes
// resolved functions.
type VulnerabilityProvider interface {
	// Get returns the vulnerability function for an asset and variant.
	Get(ctx context.Context, assetID string, variant VulnerabilityVariant) (*VulnerabilityFunction, error)
}

// Validator is implemented by domain types that carry their own structural
// validation.
type Validator interface {
	Validate() error
}
