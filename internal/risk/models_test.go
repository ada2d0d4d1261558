package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakerisk/internal/types"
)

const catalogJSON = `{
	"defaults": {
		"original": {
			"imt": "PGA",
			"levels": [0.1, 0.3, 0.5],
			"mean_loss_ratios": [0.05, 0.2, 0.5],
			"covs": [0, 0, 0]
		},
		"retrofitted": {
			"imt": "PGA",
			"levels": [0.1, 0.3, 0.5],
			"mean_loss_ratios": [0.02, 0.1, 0.3],
			"covs": [0, 0, 0]
		}
	},
	"assets": {
		"a-special": {
			"original": {
				"imt": "PGA",
				"levels": [0.1, 0.5],
				"mean_loss_ratios": [0.1, 0.8],
				"covs": [0.2, 0.2]
			}
		}
	}
}`

func TestParseModelCatalogResolution(t *testing.T) {
	cat, err := ParseModelCatalog([]byte(catalogJSON))
	require.NoError(t, err)

	ctx := context.Background()

	// Per-asset entry wins over the default.
	vf, err := cat.Get(ctx, "a-special", types.VariantOriginal)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.8}, vf.MeanLossRatios)
	assert.Equal(t, types.VariantOriginal, vf.Variant)

	// Variants without a per-asset entry fall back to the default.
	vf, err = cat.Get(ctx, "a-special", types.VariantRetrofitted)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.02, 0.1, 0.3}, vf.MeanLossRatios)

	// Unknown assets use the defaults too.
	vf, err = cat.Get(ctx, "a-anything", types.VariantOriginal)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.05, 0.2, 0.5}, vf.MeanLossRatios)
}

func TestParseModelCatalogMissingVariant(t *testing.T) {
	cat, err := ParseModelCatalog([]byte(`{"defaults": {"original": {
		"imt": "PGA", "levels": [0.1], "mean_loss_ratios": [0.1], "covs": [0]
	}}}`))
	require.NoError(t, err)

	_, err = cat.Get(context.Background(), "a-1", types.VariantRetrofitted)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundAsset, appErr.Code)
}

func TestParseModelCatalogRejectsUnknownVariant(t *testing.T) {
	_, err := ParseModelCatalog([]byte(`{"defaults": {"reinforced": {
		"imt": "PGA", "levels": [0.1], "mean_loss_ratios": [0.1], "covs": [0]
	}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reinforced")
}

func TestParseModelCatalogRejectsMalformedFunction(t *testing.T) {
	// Levels not strictly increasing.
	_, err := ParseModelCatalog([]byte(`{"defaults": {"original": {
		"imt": "PGA", "levels": [0.3, 0.1], "mean_loss_ratios": [0.1, 0.2], "covs": [0, 0]
	}}}`))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeMalformedCurve, appErr.Code)
}

func TestParseModelCatalogRejectsBadJSON(t *testing.T) {
	_, err := ParseModelCatalog([]byte(`{`))
	assert.Error(t, err)
}
