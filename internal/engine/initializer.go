package engine

import (
	"log"
	"math"

	"github.com/dyluth/speckle/internal/trajectory"
	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/subset"
)

// initialGuess forms the starting deformation for one point. A point
// with a path file always initializes from its expected trajectory; the
// rest follow the configured strategy. The returned gamma is non-zero
// only when a path search scored the guess as a side effect.
func (a *Analysis) initialGuess(w, id, slot int, store *field.Store, obj Objective) (subset.Deformation, float64, Status) {
	if _, ok := a.pathFiles[id]; ok {
		return a.pathGuess(w, id, slot, store, obj)
	}
	d, st := a.strategyGuess(w, id, slot, store)
	return d, 0, st
}

// pathGuess picks the best-scoring sample from the point's expected
// trajectory. The whole path is searched on the first frame or when the
// point has no valid solution to stay near; otherwise only the closest
// samples to the previous solution are tried.
func (a *Analysis) pathGuess(w, id, slot int, store *field.Store, obj Objective) (subset.Deformation, float64, Status) {
	path, err := a.loadPath(w, id)
	if err != nil {
		log.Printf("[Engine] Point %d: %v", id, err)
		return subset.Deformation{}, 0, InitializeFailedByException
	}
	eval := func(s trajectory.Sample) float64 {
		g, err := obj.Gamma(subset.Deformation{U: s.U, V: s.V, Theta: s.Theta})
		if err != nil {
			return math.Inf(1)
		}
		return g
	}
	var s trajectory.Sample
	var gamma float64
	if a.frame == 0 || store.Value(slot, field.Sigma) == field.Unsolved {
		s, gamma = path.GlobalSearch(eval)
	} else {
		s, gamma = path.LocalSearch(
			store.Value(slot, field.DisplacementX),
			store.Value(slot, field.DisplacementY),
			store.Value(slot, field.RotationZ),
			trajectory.DefaultNeighbors, eval)
	}
	if math.IsInf(gamma, 1) {
		// no sample keeps the subset on the image
		return subset.Deformation{}, 0, InitializeFailed
	}
	return subset.Deformation{U: s.U, V: s.V, Theta: s.Theta}, gamma, InitializeSuccessful
}

// strategyGuess forms a guess per the configured initialization
// strategy. The refinement fallback re-enters here too, so path files
// are deliberately not consulted.
func (a *Analysis) strategyGuess(w, id, slot int, store *field.Store) (subset.Deformation, Status) {
	switch {
	case a.opts.Initialization == InitFieldValues,
		a.opts.Initialization == InitNeighborFirstStepOnly && a.frame > 0:
		return a.fieldGuess(w, id, slot, store)
	case a.opts.Initialization == InitPhaseCorrelation:
		return subset.Deformation{
			U:     a.phaseDu + store.Value(slot, field.DisplacementX),
			V:     a.phaseDv + store.Value(slot, field.DisplacementY),
			Theta: store.Value(slot, field.RotationZ),
		}, InitializeSuccessful
	default:
		return a.neighborGuess(id, slot, store)
	}
}

// fieldGuess starts from the point's own previous solution, projected
// forward per the configured projection method.
func (a *Analysis) fieldGuess(w, id, slot int, store *field.Store) (subset.Deformation, Status) {
	if store.Value(slot, field.Sigma) == field.Unsolved {
		// nothing solved yet to project from
		return subset.Deformation{}, InitializeFailed
	}
	d := deformationAt(store, slot)
	switch a.opts.Projection {
	case ProjectionVelocity:
		d.U = 2*d.U - store.PrevValue(slot, field.DisplacementX)
		d.V = 2*d.V - store.PrevValue(slot, field.DisplacementY)
		d.Theta = 2*d.Theta - store.PrevValue(slot, field.RotationZ)
	case ProjectionKalman:
		d.U, d.V = a.predictorFor(w, id, d.U, d.V).Predict()
	}
	return d, InitializeSuccessful
}

// neighborGuess copies the already-solved neighbor's displacement and
// rotation. Seed points, which have no neighbor, start from their own
// fields instead.
func (a *Analysis) neighborGuess(id, slot int, store *field.Store) (subset.Deformation, Status) {
	nid := int(store.Value(slot, field.NeighborID))
	if nid == field.NoNeighbor {
		if store.Value(slot, field.Sigma) == field.Unsolved {
			return subset.Deformation{}, InitializeFailed
		}
		return deformationAt(store, slot), InitializeSuccessful
	}
	if a.active.Owner(nid) == a.active.Owner(id) {
		nslot := a.localIdx[nid]
		return subset.Deformation{
			U:     store.Value(nslot, field.DisplacementX),
			V:     store.Value(nslot, field.DisplacementY),
			Theta: store.Value(nslot, field.RotationZ),
		}, InitializeSuccessful
	}
	// The neighbor crossed a worker boundary, which happens when
	// obstruction grouping overrides the seed chains. Fall back to its
	// last synchronized solution.
	return subset.Deformation{
		U:     a.all.Value(nid, field.DisplacementX),
		V:     a.all.Value(nid, field.DisplacementY),
		Theta: a.all.Value(nid, field.RotationZ),
	}, InitializeSuccessful
}

// deformationAt reads the six deformation components out of a store slot.
func deformationAt(store *field.Store, slot int) subset.Deformation {
	return subset.Deformation{
		U:     store.Value(slot, field.DisplacementX),
		V:     store.Value(slot, field.DisplacementY),
		Theta: store.Value(slot, field.RotationZ),
		Ex:    store.Value(slot, field.NormalStrainX),
		Ey:    store.Value(slot, field.NormalStrainY),
		Gxy:   store.Value(slot, field.ShearStrainXY),
	}
}

// loadPath returns the worker's parsed copy of the point's path file,
// reading it on first use.
func (a *Analysis) loadPath(w, id int) (*trajectory.Path, error) {
	if p := a.paths[w][id]; p != nil {
		return p, nil
	}
	p, err := trajectory.Load(a.pathFiles[id])
	if err != nil {
		return nil, err
	}
	a.paths[w][id] = p
	return p, nil
}

// pathFor returns the point's trajectory when one is configured and
// loadable, nil otherwise.
func (a *Analysis) pathFor(w, id int) *trajectory.Path {
	if _, ok := a.pathFiles[id]; !ok {
		return nil
	}
	p, err := a.loadPath(w, id)
	if err != nil {
		return nil
	}
	return p
}
