package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakerisk/internal/types"
)

func baseJobConfig() types.JobConfig {
	return types.JobConfig{
		Hazard: types.HazardParams{
			SourceModelRef:   "smlt/v3",
			GMPELogicTreeRef: "gmpe/v2",
			Sites: []types.Site{
				{ID: "s1", Lat: 37.77, Lon: -122.42},
				{ID: "s2", Lat: 34.05, Lon: -118.24},
			},
			IMT:               "PGA",
			IntensityLevels:   []float64{0.1, 0.3, 0.5},
			TruncationLevel:   3,
			InvestigationTime: 50,
		},
		Risk: types.RiskParams{
			TargetPoEs:        []float64{0.1, 0.02},
			IndividualCurves:  false,
			ExportFormat:      "csv",
			LossResolution:    0.005,
			BinRepresentative: types.BinMidpoint,
			InterestRate:      0.05,
			LifeYears:         25,
		},
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	cfg := baseJobConfig()
	first := Fingerprint(cfg.Hazard)
	require.Len(t, first, 64)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Fingerprint(cfg.Hazard))
	}
}

func TestFingerprintIgnoresSiteOrder(t *testing.T) {
	cfg := baseJobConfig()
	base := Fingerprint(cfg.Hazard)

	reordered := cfg.Hazard
	reordered.Sites = []types.Site{cfg.Hazard.Sites[1], cfg.Hazard.Sites[0]}
	assert.Equal(t, base, Fingerprint(reordered))
}

func TestFingerprintDoesNotMutateInput(t *testing.T) {
	cfg := baseJobConfig()
	Fingerprint(cfg.Hazard)
	assert.Equal(t, "s1", cfg.Hazard.Sites[0].ID)
	assert.Equal(t, "s2", cfg.Hazard.Sites[1].ID)
}

// Every hazard parameter must change the fingerprint. The cases mutate one
// field each; a case that stops changing the key means a hazard-affecting
// parameter leaked out of the fingerprint.
func TestFingerprintCoversEveryHazardParameter(t *testing.T) {
	base := Fingerprint(baseJobConfig().Hazard)

	tests := []struct {
		name   string
		mutate func(*types.HazardParams)
	}{
		{"source model", func(p *types.HazardParams) { p.SourceModelRef = "smlt/v4" }},
		{"gmpe logic tree", func(p *types.HazardParams) { p.GMPELogicTreeRef = "gmpe/v3" }},
		{"site added", func(p *types.HazardParams) {
			p.Sites = append(p.Sites, types.Site{ID: "s3", Lat: 40, Lon: -120})
		}},
		{"site removed", func(p *types.HazardParams) { p.Sites = p.Sites[:1] }},
		{"site moved", func(p *types.HazardParams) { p.Sites[0].Lat += 0.01 }},
		{"imt", func(p *types.HazardParams) { p.IMT = "SA(0.3)" }},
		{"intensity levels", func(p *types.HazardParams) { p.IntensityLevels = []float64{0.1, 0.2, 0.4} }},
		{"truncation level", func(p *types.HazardParams) { p.TruncationLevel = 5 }},
		{"investigation time", func(p *types.HazardParams) { p.InvestigationTime = 1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := baseJobConfig().Hazard
			params.Sites = append([]types.Site(nil), params.Sites...)
			tc.mutate(&params)
			assert.NotEqual(t, base, Fingerprint(params))
		})
	}
}

// No downstream parameter may reach the fingerprint: changing any RiskParams
// field must leave the cache key untouched. This is the cache classification
// of the whole config surface, enumerated field by field.
func TestFingerprintIgnoresEveryRiskParameter(t *testing.T) {
	base := Fingerprint(baseJobConfig().Hazard)

	tests := []struct {
		name   string
		mutate func(*types.RiskParams)
	}{
		{"target poes", func(p *types.RiskParams) { p.TargetPoEs = []float64{0.5} }},
		{"individual curves", func(p *types.RiskParams) { p.IndividualCurves = true }},
		{"export format", func(p *types.RiskParams) { p.ExportFormat = "hdf5" }},
		{"loss resolution", func(p *types.RiskParams) { p.LossResolution = 0.01 }},
		{"bin representative", func(p *types.RiskParams) { p.BinRepresentative = types.BinRightEdge }},
		{"interest rate", func(p *types.RiskParams) { p.InterestRate = 0.12 }},
		{"life years", func(p *types.RiskParams) { p.LifeYears = 50 }},
		{"strict validation", func(p *types.RiskParams) { p.StrictValidation = true }},
		{"keep loss curves", func(p *types.RiskParams) { p.KeepLossCurves = true }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseJobConfig()
			tc.mutate(&cfg.Risk)
			assert.Equal(t, base, Fingerprint(cfg.Hazard))
		})
	}
}
