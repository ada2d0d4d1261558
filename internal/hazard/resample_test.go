package hazard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakerisk/internal/types"
)

func TestInterpPoE(t *testing.T) {
	levels := []float64{0.1, 0.3, 0.5}
	poes := []float64{0.5, 0.1, 0.02}

	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"exact tabulated point", 0.3, 0.1},
		{"below support clamps to first", 0.01, 0.5},
		{"above support clamps to last", 0.9, 0.02},
		{"midpoint interpolates linearly", 0.2, 0.3},
		{"interior of second segment", 0.4, 0.06},
		{"first level", 0.1, 0.5},
		{"last level", 0.5, 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, InterpPoE(levels, poes, tt.x), 1e-12)
		})
	}
}

func TestInterpPoEPreservesMonotonicity(t *testing.T) {
	levels := []float64{0.05, 0.1, 0.2, 0.4, 0.8}
	poes := []float64{0.9, 0.6, 0.3, 0.1, 0.01}

	prev := 1.0
	for x := 0.0; x <= 1.0; x += 0.013 {
		p := InterpPoE(levels, poes, x)
		assert.LessOrEqual(t, p, prev, "poe increased at x=%g", x)
		prev = p
	}
}

func TestUnionLevels(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want []float64
	}{
		{"disjoint", []float64{0.1, 0.3}, []float64{0.2, 0.4}, []float64{0.1, 0.2, 0.3, 0.4}},
		{"identical", []float64{0.1, 0.2}, []float64{0.1, 0.2}, []float64{0.1, 0.2}},
		{"overlapping", []float64{0.1, 0.2, 0.3}, []float64{0.2, 0.5}, []float64{0.1, 0.2, 0.3, 0.5}},
		{"one empty", []float64{0.1}, nil, []float64{0.1}},
		{"both empty", nil, nil, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnionLevels(tt.a, tt.b)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i], got[i])
			}
		})
	}
}

func TestCommonSupportLeavesInputsUntouched(t *testing.T) {
	a := &types.HazardCurve{SiteID: "s1", IMT: "PGA", Realization: "rlz-000",
		Levels: []float64{0.1, 0.3}, Poes: []float64{0.5, 0.1}}
	b := &types.HazardCurve{SiteID: "s1", IMT: "PGA", Realization: "rlz-001",
		Levels: []float64{0.2, 0.4}, Poes: []float64{0.3, 0.05}}

	ra, rb := CommonSupport(a, b)

	wantLevels := []float64{0.1, 0.2, 0.3, 0.4}
	assert.Equal(t, wantLevels, ra.Levels)
	assert.Equal(t, wantLevels, rb.Levels)

	// Resampled curves agree with the originals at tabulated points.
	assert.InDelta(t, 0.5, ra.Poes[0], 1e-12)
	assert.InDelta(t, 0.1, ra.Poes[2], 1e-12)
	assert.InDelta(t, 0.3, rb.Poes[1], 1e-12)
	assert.InDelta(t, 0.05, rb.Poes[3], 1e-12)

	// Inputs untouched.
	assert.Equal(t, []float64{0.1, 0.3}, a.Levels)
	assert.Equal(t, []float64{0.2, 0.4}, b.Levels)

	// Mutating the outputs must not leak back.
	ra.Poes[0] = 42
	assert.Equal(t, 0.5, a.Poes[0])
}
