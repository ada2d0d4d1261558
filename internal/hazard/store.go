// Package hazard implements the read side of the hazard boundary: the
// immutable curve store populated from the external PSHA calculator, the
// realization aggregator that reduces per-realization curves to statistics,
// and hazard-map extraction at target exceedance probabilities.
package hazard

import (
	"fmt"
	"math"
	"sort"

	"shakerisk/internal/types"
)

// weightSumTolerance is the allowed deviation of the realization weight sum
// from 1.0. Logic-tree weights come from upstream floating point arithmetic,
// so exact equality cannot be required.
const weightSumTolerance = 1e-9

// curveID uniquely identifies one curve within a store.
type curveID struct {
	site string
	imt  types.IMT
	rlz  string
}

// Store is the content-addressed hazard curve store: one immutable set of
// per-realization curves produced under a single cache key. It is the single
// source of truth for hazard curves; derived loss curves are owned by the
// computations that produce them and are never written back here.
//
// A Store is sealed at construction. All accessors are safe for concurrent
// use, and returned curves must be treated as read-only (Aggregate and the
// convolution engine clone before modifying).
type Store struct {
	key     string
	curves  map[curveID]*types.HazardCurve
	weights map[string]float64
	rlzs    []string
	sites   []string
}

// NewStore indexes a calculator output under its cache key. It rejects sets
// with duplicate (site, IMT, realization) entries, curves referencing a
// realization without a weight, or weights that do not sum to 1.
func NewStore(key string, set *types.HazardCurveSet) (*Store, error) {
	if set == nil || len(set.Curves) == 0 {
		return nil, fmt.Errorf("hazard: empty curve set for key %s", key)
	}

	weights := make(map[string]float64, len(set.Weights))
	sum := 0.0
	for _, w := range set.Weights {
		if _, dup := weights[w.Realization]; dup {
			return nil, fmt.Errorf("hazard: duplicate weight for realization %s", w.Realization)
		}
		if w.Weight < 0 {
			return nil, fmt.Errorf("hazard: negative weight for realization %s", w.Realization)
		}
		weights[w.Realization] = w.Weight
		sum += w.Weight
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return nil, fmt.Errorf("hazard: realization weights sum to %g, want 1", sum)
	}

	curves := make(map[curveID]*types.HazardCurve, len(set.Curves))
	siteSet := make(map[string]struct{})
	for i := range set.Curves {
		c := set.Curves[i].Clone()
		id := curveID{site: c.SiteID, imt: c.IMT, rlz: c.Realization}
		if _, dup := curves[id]; dup {
			return nil, fmt.Errorf("hazard: duplicate curve for site=%s imt=%s rlz=%s", c.SiteID, c.IMT, c.Realization)
		}
		if _, ok := weights[c.Realization]; !ok {
			return nil, fmt.Errorf("hazard: curve references unweighted realization %s", c.Realization)
		}
		curves[id] = c
		siteSet[c.SiteID] = struct{}{}
	}

	rlzs := make([]string, 0, len(weights))
	for r := range weights {
		rlzs = append(rlzs, r)
	}
	sort.Strings(rlzs)

	sites := make([]string, 0, len(siteSet))
	for s := range siteSet {
		sites = append(sites, s)
	}
	sort.Strings(sites)

	return &Store{
		key:     key,
		curves:  curves,
		weights: weights,
		rlzs:    rlzs,
		sites:   sites,
	}, nil
}

// Key returns the cache key the store contents were computed under.
func (s *Store) Key() string { return s.key }

// Len returns the number of curves held.
func (s *Store) Len() int { return len(s.curves) }

// Sites returns the site identifiers present, sorted.
func (s *Store) Sites() []string {
	return append([]string(nil), s.sites...)
}

// Realizations returns the realization identifiers, sorted.
func (s *Store) Realizations() []string {
	return append([]string(nil), s.rlzs...)
}

// Weight returns the logic-tree weight of a realization.
func (s *Store) Weight(rlz string) (float64, bool) {
	w, ok := s.weights[rlz]
	return w, ok
}

// Curve returns the curve for one (site, IMT, realization), or false if the
// store holds no such curve. The returned curve is read-only.
func (s *Store) Curve(site string, imt types.IMT, rlz string) (*types.HazardCurve, bool) {
	c, ok := s.curves[curveID{site: site, imt: imt, rlz: rlz}]
	return c, ok
}

// CurvesFor returns every per-realization curve for a (site, IMT), ordered
// by realization identifier. The returned curves are read-only.
func (s *Store) CurvesFor(site string, imt types.IMT) []*types.HazardCurve {
	var out []*types.HazardCurve
	for _, rlz := range s.rlzs {
		if c, ok := s.curves[curveID{site: site, imt: imt, rlz: rlz}]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot rebuilds the flat curve set, e.g. for persistence by the cache
// controller. Curves appear in deterministic (site, imt, realization) order
// so snapshots of equal stores are byte-identical after encoding.
func (s *Store) Snapshot() *types.HazardCurveSet {
	ids := make([]curveID, 0, len(s.curves))
	for id := range s.curves {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].site != ids[j].site {
			return ids[i].site < ids[j].site
		}
		if ids[i].imt != ids[j].imt {
			return ids[i].imt < ids[j].imt
		}
		return ids[i].rlz < ids[j].rlz
	})

	set := &types.HazardCurveSet{
		Curves:  make([]types.HazardCurve, 0, len(ids)),
		Weights: make([]types.RealizationWeight, 0, len(s.rlzs)),
	}
	for _, id := range ids {
		set.Curves = append(set.Curves, *s.curves[id].Clone())
	}
	for _, rlz := range s.rlzs {
		set.Weights = append(set.Weights, types.RealizationWeight{
			Realization: rlz,
			Weight:      s.weights[rlz],
		})
	}
	return set
}
