package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"shakerisk/internal/types"
)

// ModelCatalog resolves vulnerability functions from a static JSON model
// file: per-asset entries first, then per-variant defaults. It implements
// types.VulnerabilityProvider for batch runs where models ship alongside the
// exposure data.
//
// Every function is structurally validated at load time, so a catalog that
// constructs successfully never hands out a malformed model.
type ModelCatalog struct {
	defaults map[types.VulnerabilityVariant]*types.VulnerabilityFunction
	byAsset  map[string]map[types.VulnerabilityVariant]*types.VulnerabilityFunction
}

// modelFile is the on-disk catalog layout.
type modelFile struct {
	Defaults map[string]*types.VulnerabilityFunction            `json:"defaults"`
	Assets   map[string]map[string]*types.VulnerabilityFunction `json:"assets,omitempty"`
}

// LoadModelCatalog reads and validates a vulnerability model catalog from a
// JSON file.
func LoadModelCatalog(path string) (*ModelCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vulnerability catalog %s: %w", path, err)
	}
	return ParseModelCatalog(raw)
}

// ParseModelCatalog builds a catalog from raw JSON.
func ParseModelCatalog(raw []byte) (*ModelCatalog, error) {
	var file modelFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing vulnerability catalog: %w", err)
	}

	cat := &ModelCatalog{
		defaults: make(map[types.VulnerabilityVariant]*types.VulnerabilityFunction),
		byAsset:  make(map[string]map[types.VulnerabilityVariant]*types.VulnerabilityFunction),
	}

	for name, vf := range file.Defaults {
		variant, err := parseVariant(name)
		if err != nil {
			return nil, err
		}
		if err := checkCatalogFunction(vf, variant); err != nil {
			return nil, fmt.Errorf("default %s model: %w", name, err)
		}
		cat.defaults[variant] = vf
	}

	for assetID, byName := range file.Assets {
		entry := make(map[types.VulnerabilityVariant]*types.VulnerabilityFunction, len(byName))
		for name, vf := range byName {
			variant, err := parseVariant(name)
			if err != nil {
				return nil, fmt.Errorf("asset %s: %w", assetID, err)
			}
			if err := checkCatalogFunction(vf, variant); err != nil {
				return nil, fmt.Errorf("asset %s %s model: %w", assetID, name, err)
			}
			entry[variant] = vf
		}
		cat.byAsset[assetID] = entry
	}

	return cat, nil
}

// Get returns the vulnerability function for an asset and variant: the
// per-asset entry when one exists, otherwise the variant default.
func (c *ModelCatalog) Get(_ context.Context, assetID string, variant types.VulnerabilityVariant) (*types.VulnerabilityFunction, error) {
	if byVariant, ok := c.byAsset[assetID]; ok {
		if vf, ok := byVariant[variant]; ok {
			return vf, nil
		}
	}
	if vf, ok := c.defaults[variant]; ok {
		return vf, nil
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundAsset,
		"no vulnerability model for asset", nil,
		map[string]any{"asset_id": assetID, "variant": string(variant)})
}

func parseVariant(name string) (types.VulnerabilityVariant, error) {
	switch types.VulnerabilityVariant(name) {
	case types.VariantOriginal:
		return types.VariantOriginal, nil
	case types.VariantRetrofitted:
		return types.VariantRetrofitted, nil
	default:
		return "", fmt.Errorf("unknown vulnerability variant %q", name)
	}
}

// checkCatalogFunction normalizes the variant tag and runs the structural
// checks. The tag inside the file is optional; the map key wins.
func checkCatalogFunction(vf *types.VulnerabilityFunction, variant types.VulnerabilityVariant) error {
	if vf == nil {
		return fmt.Errorf("model entry is null")
	}
	vf.Variant = variant
	if appErr := types.ValidateVulnerabilityFunction(vf); appErr != nil {
		return appErr
	}
	return nil
}
