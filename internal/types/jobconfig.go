package types

// JobConfig is the full configuration surface of one risk run. How the values
// are parsed (CLI flags, job files) is an external concern; the engine only
// consumes them.
//
// The struct is deliberately split in two: HazardParams feed the expensive
// upstream hazard computation and therefore participate in the cache
// fingerprint, while RiskParams only shape downstream aggregation, risk and
// export stages. Moving a field between the halves changes cache semantics
// and is a correctness bug in either direction (stale results or needless
// recomputation); the classification is enumerated by tests.
type JobConfig struct {
	Hazard HazardParams `json:"hazard"`
	Risk   RiskParams   `json:"risk"`
}

// HazardParams is the hazard-affecting subset: two configs with equal
// HazardParams are guaranteed to produce identical hazard store contents.
type HazardParams struct {
	// SourceModelRef identifies the seismic source model fed to the external
	// calculator (an opaque reference; the core never dereferences it).
	SourceModelRef string `json:"source_model_ref" validate:"required"`

	// GMPELogicTreeRef identifies the ground-motion logic tree.
	GMPELogicTreeRef string `json:"gmpe_logic_tree_ref" validate:"required"`

	// Sites is the list of sites to compute hazard for. Order-insensitive
	// for caching purposes; the fingerprint canonicalizes it.
	Sites []Site `json:"sites" validate:"required,min=1,dive"`

	// IMT is the intensity measure type of the run.
	IMT IMT `json:"imt" validate:"required"`

	// IntensityLevels is the discretization the hazard curves are tabulated
	// on. Strictly increasing.
	IntensityLevels []float64 `json:"intensity_levels" validate:"required,min=2"`

	// TruncationLevel bounds the ground-motion distribution inside the
	// hazard computation (sigma units). Zero means untruncated.
	TruncationLevel float64 `json:"truncation_level" validate:"gte=0"`

	// InvestigationTime is the hazard observation window in years.
	InvestigationTime float64 `json:"investigation_time" validate:"gt=0"`
}

// RiskParams is the downstream-only subset: changing any of these fields
// must NOT invalidate a cached hazard result.
type RiskParams struct {
	// TargetPoEs are the exceedance probabilities at which hazard maps and
	// conditional losses are extracted.
	TargetPoEs []float64 `json:"target_poes,omitempty" validate:"dive,gt=0,lt=1"`

	// IndividualCurves requests export of every per-realization hazard curve
	// in addition to the mean. Applies to the hazard stage only.
	IndividualCurves bool `json:"individual_curves"`

	// ExportFormat is handed through to the external export collaborator.
	ExportFormat string `json:"export_format,omitempty"`

	// LossResolution is the loss-grid step (and merge tolerance) of the
	// convolution output, in loss-ratio units.
	LossResolution float64 `json:"loss_resolution" validate:"gt=0"`

	// BinRepresentative selects midpoint or right-edge bin intensity for
	// convolution.
	BinRepresentative BinRepresentative `json:"bin_representative" validate:"required"`

	// InterestRate and LifeYears are the batch-level defaults for assets
	// without per-asset economics.
	InterestRate float64 `json:"interest_rate" validate:"gte=0"`
	LifeYears    int     `json:"life_years" validate:"gt=0"`

	// StrictValidation promotes MalformedCurve from a logged data-quality
	// warning to a fatal per-asset error.
	StrictValidation bool `json:"strict_validation"`

	// KeepLossCurves attaches the underlying loss-exceedance curves to each
	// asset outcome for the export collaborator.
	KeepLossCurves bool `json:"keep_loss_curves"`
}
