package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/image"
)

// ExecuteFrame runs every point through the correlation pipeline against
// the bound deformed image, then synchronizes the fields and advances the
// frame counter. The context is only consulted between frames; a frame in
// flight always runs to completion.
func (a *Analysis) ExecuteFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.refImg == nil {
		return fmt.Errorf("frame %d: no reference image bound", a.frame)
	}
	if a.defImg == nil {
		return fmt.Errorf("frame %d: no deformed image bound", a.frame)
	}

	m := a.frameMap()
	if m != a.active {
		a.active = m
		a.parts = field.Partitioned(m)
		a.localIdx = m.LocalIndex()
	}
	if err := field.Push(a.all, m, a.parts); err != nil {
		return fmt.Errorf("frame %d: %w", a.frame, err)
	}

	if a.opts.Initialization == InitPhaseCorrelation && a.prevImg != nil {
		du, dv, err := image.PhaseCorrelate(a.prevImg, a.defImg)
		if err != nil {
			return fmt.Errorf("frame %d: phase correlation: %w", a.frame, err)
		}
		a.phaseDu, a.phaseDv = du, dv
	}

	// Workers share the deformed image read-only, so the gradients the
	// fast method and sigma need are computed up front.
	a.defImg.ComputeGradients()

	for _, arena := range a.detectors {
		for _, det := range arena {
			det.Reset()
		}
	}

	if a.frame == 0 {
		for _, pp := range a.postProcessors {
			pp.PreExecute()
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < m.Workers(); w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			a.runWorker(w, m)
		}(w)
	}
	wg.Wait()

	if err := field.Pull(a.all, m, a.parts); err != nil {
		return fmt.Errorf("frame %d: %w", a.frame, err)
	}

	for _, pp := range a.postProcessors {
		pp.Execute()
	}

	failed := 0
	for id := 0; id < a.n; id++ {
		if Status(a.all.Value(id, field.StatusFlag)).Failed() {
			failed++
		}
	}
	a.logEvent("frame_complete", map[string]interface{}{
		"frame":  a.frame,
		"failed": failed,
	})

	a.prevImg = a.defImg
	a.frame++
	return nil
}

// frameMap picks the worker assignment for the running frame. Neighbor
// initialization needs seed chains kept whole on one worker; everything
// else uses the obstruction-aware default split.
func (a *Analysis) frameMap() *field.Map {
	switch a.opts.Initialization {
	case InitNeighborEveryFrame:
		return a.seedMap
	case InitNeighborFirstStepOnly:
		if a.frame == 0 {
			return a.seedMap
		}
		return a.distMap
	default:
		return a.distMap
	}
}

// runWorker solves the worker's points in local order. Ordering matters:
// the dependency map puts occluders before the points they block, and
// the seed map walks each chain outward from its seed.
func (a *Analysis) runWorker(w int, m *field.Map) {
	store := a.parts[w]
	for _, id := range m.Local(w) {
		a.correlatePoint(w, id, store)
	}
}
