// Package cache implements the hazard reuse controller: fingerprinting of
// the hazard-affecting configuration subset, content-addressed persistence
// of computed curve sets, and the controller that decides between reusing a
// stored hazard result and triggering a fresh computation.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"shakerisk/internal/types"
)

// Fingerprint computes the CacheKey of a hazard computation: a SHA-256 hex
// digest of the canonical encoding of the hazard-affecting parameters. Two
// configurations with equal fingerprints are guaranteed to produce identical
// hazard store contents, so downstream-only parameters (target PoEs,
// individual-curve export, export format, loss resolution) must never reach
// this function — they live in RiskParams, not HazardParams.
//
// Canonicalization: sites are sorted by ID so their input order does not
// split the cache; intensity levels are taken as given because their order
// is the discretization itself. Struct field order is fixed by the type, so
// the JSON encoding is deterministic.
func Fingerprint(p types.HazardParams) string {
	canon := p
	canon.Sites = append([]types.Site(nil), p.Sites...)
	sort.Slice(canon.Sites, func(i, j int) bool {
		return canon.Sites[i].ID < canon.Sites[j].ID
	})
	canon.IntensityLevels = append([]float64(nil), p.IntensityLevels...)

	// Marshal of a plain struct cannot fail.
	raw, _ := json.Marshal(canon)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
