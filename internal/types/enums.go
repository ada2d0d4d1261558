package types

// VulnerabilityVariant names the two vulnerability models compared by the
// benefit-cost pipeline.
type VulnerabilityVariant string

const (
	VariantOriginal    VulnerabilityVariant = "original"
	VariantRetrofitted VulnerabilityVariant = "retrofitted"
)

// BinRepresentative selects which intensity represents a hazard-curve bin
// during convolution. The choice materially biases loss results, so it is
// explicit configuration rather than an implementation detail.
type BinRepresentative string

const (
	// BinMidpoint uses the arithmetic midpoint of the bin. Default.
	BinMidpoint BinRepresentative = "midpoint"
	// BinRightEdge uses the upper bound of the bin, yielding a conservative
	// (higher) loss estimate.
	BinRightEdge BinRepresentative = "right_edge"
)

// Valid reports whether the value is a recognized bin representative.
func (b BinRepresentative) Valid() bool {
	return b == BinMidpoint || b == BinRightEdge
}

// LossUnit declares the unit of the loss axis of a loss curve.
type LossUnit string

const (
	// LossUnitRatio expresses losses as a fraction of replacement value.
	LossUnitRatio LossUnit = "ratio"
	// LossUnitAbsolute expresses losses in the portfolio's monetary unit.
	LossUnitAbsolute LossUnit = "absolute"
)

// RunStatus is the lifecycle state of a calculation run in the registry.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CacheOutcome describes how the controller satisfied a hazard request.
type CacheOutcome string

const (
	CacheOutcomeHit    CacheOutcome = "hit"
	CacheOutcomeMiss   CacheOutcome = "miss"
	// CacheOutcomeForced means a stored entry existed but was missing or
	// corrupted, forcing recomputation instead of a stale read.
	CacheOutcomeForced CacheOutcome = "forced_recompute"
)
