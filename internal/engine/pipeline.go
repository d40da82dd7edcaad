package engine

import (
	"log"

	"github.com/dyluth/speckle/internal/objective"
	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/motion"
	"github.com/dyluth/speckle/pkg/subset"
)

// correlatePoint advances one point one frame: refresh its occlusion
// mask, gate on motion, form an initial guess, refine it, vet the
// result, and write the outcome into the worker's store slot.
func (a *Analysis) correlatePoint(w, id int, store *field.Store) {
	slot := a.localIdx[id]

	if a.opts.Mode == ModeTracking {
		a.refreshObstructions(id, store)
	}

	// A still scene keeps the last solution in place and only marks
	// the step as skipped.
	if !a.motionDetected(w, id) {
		store.SetValue(slot, field.Match, 0)
		store.SetValue(slot, field.StatusFlag, float64(FrameSkippedNoMotion))
		store.SetValue(slot, field.Iterations, 0)
		return
	}

	obj := a.objectiveFor(w, id)
	obj.SetDeformedImage(a.defImg)

	d, initialGamma, st := a.initialGuess(w, id, slot, store, obj)
	if st != InitializeSuccessful {
		a.recordFailure(store, slot, st, 0)
		return
	}

	// A skip-solve point records the guess itself as the solution.
	if a.skipSolve[id] {
		gamma := initialGamma
		if gamma == 0 {
			g, err := obj.Gamma(d)
			if err != nil {
				a.recordFailure(store, slot, InitializeFailedByException, 0)
				return
			}
			gamma = g
		}
		a.commit(w, id, slot, store, d, obj.Sigma(d), gamma, FrameSkipped, 0)
		return
	}

	if a.opts.InitialGammaThreshold != DisabledThreshold {
		if initialGamma == 0 {
			g, err := obj.Gamma(d)
			if err != nil {
				a.recordFailure(store, slot, InitializeFailedByException, 0)
				return
			}
			initialGamma = g
		}
		if initialGamma > a.opts.InitialGammaThreshold {
			a.recordFailure(store, slot, InitializeFailed, 0)
			return
		}
	}

	st, iters := a.refine(w, id, slot, store, obj, &d)
	if st != CorrelationSuccessful {
		a.recordFailure(store, slot, st, iters)
		return
	}

	gamma, err := obj.Gamma(d)
	if err != nil {
		a.recordFailure(store, slot, CorrelationFailedByException, iters)
		return
	}
	sigma := obj.Sigma(d)
	if a.opts.FinalGammaThreshold != DisabledThreshold && gamma > a.opts.FinalGammaThreshold {
		if a.opts.Initialization == InitPhaseCorrelation {
			// Keep the whole-image offset so the next frame's guess
			// does not restart from a stale origin.
			store.SetValue(slot, field.DisplacementX, store.Value(slot, field.DisplacementX)+a.phaseDu)
			store.SetValue(slot, field.DisplacementY, store.Value(slot, field.DisplacementY)+a.phaseDv)
		}
		a.recordFailure(store, slot, FrameFailedHighGamma, iters)
		return
	}

	if a.opts.PathDistanceThreshold != DisabledThreshold {
		if path := a.pathFor(w, id); path != nil {
			if path.ClosestDistance(d.U, d.V, d.Theta) > a.opts.PathDistanceThreshold {
				a.recordFailure(store, slot, FrameFailedHighPathDistance, iters)
				return
			}
		}
	}

	a.commit(w, id, slot, store, d, sigma, gamma, CorrelationSuccessful, iters)

	if a.opts.SubsetEvolution && a.frame > 1 {
		obj.Subset().Readmit(d, a.defImg)
	}
	if a.opts.DumpSubsetImages {
		a.dumpDeformedSubset(id, d)
	}
}

// refine runs the configured refinement on the guess. A two-stage
// method whose first stage fails rebuilds the guess and runs the other
// stage exactly once; the recorded iteration count is the final
// stage's.
func (a *Analysis) refine(w, id, slot int, store *field.Store, obj Objective, d *subset.Deformation) (Status, int) {
	fastFirst := a.opts.Optimization == OptGradientBased || a.opts.Optimization == OptGradientThenSimplex
	st, iters := runStage(obj, d, fastFirst)
	if st == CorrelationSuccessful {
		return st, iters
	}
	if a.opts.Optimization == OptGradientBased || a.opts.Optimization == OptSimplex {
		return st, iters
	}
	// A failed guess rebuild retries from the first stage's last
	// iterate instead.
	if nd, ist := a.strategyGuess(w, id, slot, store); ist == InitializeSuccessful {
		*d = nd
	}
	return runStage(obj, d, !fastFirst)
}

// runStage maps one optimizer attempt onto a correlation status.
func runStage(obj Objective, d *subset.Deformation, fast bool) (Status, int) {
	var up objective.Update
	var err error
	if fast {
		up, err = obj.UpdateFast(d)
	} else {
		up, err = obj.UpdateRobust(d)
	}
	if err != nil {
		return CorrelationFailedByException, up.Iterations
	}
	if !up.Converged {
		return CorrelationFailed, up.Iterations
	}
	return CorrelationSuccessful, up.Iterations
}

// recordFailure marks a step failed: quality fields at the unsolved
// sentinel, deformation fields untouched.
func (a *Analysis) recordFailure(store *field.Store, slot int, st Status, iterations int) {
	store.SetValue(slot, field.Sigma, field.Unsolved)
	store.SetValue(slot, field.Match, field.Unsolved)
	store.SetValue(slot, field.Gamma, field.Unsolved)
	store.SetValue(slot, field.StatusFlag, float64(st))
	store.SetValue(slot, field.Iterations, float64(iterations))
}

// commit writes a completed step into the store. The previous-frame
// snapshot is taken first when the velocity projection needs it, and a
// converged solve feeds the new displacement to the kalman predictor.
func (a *Analysis) commit(w, id, slot int, store *field.Store, d subset.Deformation, sigma, gamma float64, st Status, iterations int) {
	if a.opts.Projection == ProjectionVelocity {
		store.Snapshot(slot)
	}
	store.SetValue(slot, field.DisplacementX, d.U)
	store.SetValue(slot, field.DisplacementY, d.V)
	store.SetValue(slot, field.RotationZ, d.Theta)
	store.SetValue(slot, field.NormalStrainX, d.Ex)
	store.SetValue(slot, field.NormalStrainY, d.Ey)
	store.SetValue(slot, field.ShearStrainXY, d.Gxy)
	store.SetValue(slot, field.Sigma, sigma)
	store.SetValue(slot, field.Match, 0)
	store.SetValue(slot, field.Gamma, gamma)
	store.SetValue(slot, field.StatusFlag, float64(st))
	store.SetValue(slot, field.Iterations, float64(iterations))

	if a.opts.Projection == ProjectionKalman && st == CorrelationSuccessful {
		if err := a.predictorFor(w, id, d.U, d.V).Update(d.U, d.V); err != nil {
			log.Printf("[Engine] Point %d: %v", id, err)
		}
	}
}

// objectiveFor returns the point's objective. Tracking runs keep them
// across frames so evolving masks and intensities persist; generic runs
// rebuild per frame to keep many-point memory flat.
func (a *Analysis) objectiveFor(w, id int) Objective {
	if a.opts.Mode == ModeGeneric {
		return a.opts.NewObjective(a.subsets[id])
	}
	obj := a.objectives[w][id]
	if obj == nil {
		obj = a.opts.NewObjective(a.subsets[id])
		a.objectives[w][id] = obj
	}
	return obj
}

// motionDetected consults the point's motion window, if any. A window
// can delegate to another point's detector so a cluster of points
// shares one answer per frame.
func (a *Analysis) motionDetected(w, id int) bool {
	win, ok := a.motionWindows[id]
	if !ok {
		return true
	}
	ownerID := id
	if win.UseID != motion.OwnWindow {
		ownerID = win.UseID
	}
	det := a.detectors[w][ownerID]
	if det == nil {
		det = motion.NewWindowDetector(a.motionWindows[ownerID])
		a.detectors[w][ownerID] = det
	}
	return det.Motion(a.defImg)
}

// predictorFor returns the point's displacement predictor, seeding a
// new filter at (u, v) on first use.
func (a *Analysis) predictorFor(w, id int, u, v float64) *motion.Predictor {
	pred := a.predictors[w][id]
	if pred == nil {
		pred = motion.NewPredictor(u, v)
		a.predictors[w][id] = pred
	}
	return pred
}
