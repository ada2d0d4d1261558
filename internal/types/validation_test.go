package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func validHazardCurve() *HazardCurve {
	return &HazardCurve{
		SiteID:      "s1",
		IMT:         "PGA",
		Realization: "rlz-000",
		Levels:      []float64{0.1, 0.3, 0.5},
		Poes:        []float64{0.5, 0.1, 0.02},
	}
}

func TestValidateHazardCurve(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(h *HazardCurve)
		wantErr bool
	}{
		{"well-formed curve passes", func(h *HazardCurve) {}, false},
		{"length mismatch", func(h *HazardCurve) { h.Poes = h.Poes[:2] }, true},
		{"empty curve", func(h *HazardCurve) { h.Levels = nil; h.Poes = nil }, true},
		{"unsorted levels", func(h *HazardCurve) { h.Levels[1] = 0.05 }, true},
		{"duplicate levels", func(h *HazardCurve) { h.Levels[1] = h.Levels[0] }, true},
		{"increasing poes", func(h *HazardCurve) { h.Poes[2] = 0.9 }, true},
		{"poe above one", func(h *HazardCurve) { h.Poes[0] = 1.5 }, true},
		{"negative poe", func(h *HazardCurve) { h.Poes[2] = -0.01 }, true},
		{"flat poes are allowed", func(h *HazardCurve) { h.Poes = []float64{0.1, 0.1, 0.1} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHazardCurve()
			tt.mutate(h)
			err := ValidateHazardCurve(h)
			if tt.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, ErrCodeMalformedCurve, err.Code)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestValidateVulnerabilityFunction(t *testing.T) {
	valid := func() *VulnerabilityFunction {
		return &VulnerabilityFunction{
			IMT:            "PGA",
			Variant:        VariantOriginal,
			Levels:         []float64{0.1, 0.3, 0.5},
			MeanLossRatios: []float64{0.05, 0.2, 0.5},
			CoVs:           []float64{0, 0.1, 0.1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(v *VulnerabilityFunction)
		wantErr bool
	}{
		{"well-formed function passes", func(v *VulnerabilityFunction) {}, false},
		{"column length mismatch", func(v *VulnerabilityFunction) { v.CoVs = v.CoVs[:1] }, true},
		{"unsorted levels", func(v *VulnerabilityFunction) { v.Levels[2] = 0.2 }, true},
		{"mean loss ratio above one", func(v *VulnerabilityFunction) { v.MeanLossRatios[2] = 1.2 }, true},
		{"negative cov", func(v *VulnerabilityFunction) { v.CoVs[0] = -1 }, true},
		{"decreasing mean loss ratio flagged", func(v *VulnerabilityFunction) { v.MeanLossRatios[2] = 0.1 }, true},
		{"all-zero losses allowed", func(v *VulnerabilityFunction) { v.MeanLossRatios = []float64{0, 0, 0} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid()
			tt.mutate(v)
			err := ValidateVulnerabilityFunction(v)
			if tt.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, ErrCodeMalformedCurve, err.Code)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestValidateEconomics(t *testing.T) {
	tests := []struct {
		name      string
		econ      RetrofitEconomics
		wantParam string
	}{
		{"valid economics", RetrofitEconomics{AssetID: "a", InterestRate: f64(0.05), LifeYears: 25, RetrofitCost: 1000}, ""},
		{"zero rate is valid", RetrofitEconomics{AssetID: "a", InterestRate: f64(0), LifeYears: 25, RetrofitCost: 1000}, ""},
		{"zero life", RetrofitEconomics{AssetID: "a", InterestRate: f64(0.05), LifeYears: 0, RetrofitCost: 1000}, "life_years"},
		{"negative life", RetrofitEconomics{AssetID: "a", InterestRate: f64(0.05), LifeYears: -3, RetrofitCost: 1000}, "life_years"},
		{"zero cost", RetrofitEconomics{AssetID: "a", InterestRate: f64(0.05), LifeYears: 25, RetrofitCost: 0}, "retrofit_cost"},
		{"unset rate", RetrofitEconomics{AssetID: "a", LifeYears: 25, RetrofitCost: 1000}, "interest_rate"},
		{"negative rate", RetrofitEconomics{AssetID: "a", InterestRate: f64(-0.01), LifeYears: 25, RetrofitCost: 1000}, "interest_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEconomics(&tt.econ)
			if tt.wantParam == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, ErrCodeInvalidEconomics, err.Code)
			assert.Equal(t, tt.wantParam, err.Details["parameter"])
		})
	}
}

func TestHazardCurveCloneIsDeep(t *testing.T) {
	h := validHazardCurve()
	c := h.Clone()
	c.Poes[0] = 0.99
	c.Levels[0] = 9.9

	assert.Equal(t, 0.5, h.Poes[0])
	assert.Equal(t, 0.1, h.Levels[0])
}
