package engine

import (
	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/subset"
)

// refreshObstructions recomputes the blocked-pixel set for a point from
// the current positions of its occluders. Occluders share the worker
// and solve first, so their store slots already hold this frame's
// solution.
func (a *Analysis) refreshObstructions(id int, store *field.Store) {
	blockers := a.obstructions[id]
	if len(blockers) == 0 {
		return
	}
	footprint := make(map[subset.Pixel]bool)
	for _, b := range blockers {
		d := deformationAt(store, a.localIdx[b])
		for px := range a.subsets[b].DeformedFootprint(d, a.opts.SkinFactor) {
			footprint[px] = true
		}
	}
	a.subsets[id].SetBlocked(footprint)
}
