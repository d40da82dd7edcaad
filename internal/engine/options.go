package engine

import (
	"fmt"

	"github.com/dyluth/speckle/pkg/subset"
)

// Mode selects how long correlation helpers live.
type Mode int

const (
	// ModeTracking keeps one objective per point for the whole run and
	// maintains obstruction masks and subset evolution between frames.
	ModeTracking Mode = iota
	// ModeGeneric rebuilds objectives every frame and skips the
	// tracking-only bookkeeping.
	ModeGeneric
)

func (m Mode) String() string {
	switch m {
	case ModeTracking:
		return "tracking"
	case ModeGeneric:
		return "generic"
	default:
		return fmt.Sprintf("unknown mode (%d)", int(m))
	}
}

// InitStrategy selects how a point's initial guess is built each frame.
type InitStrategy int

const (
	// InitFieldValues starts from the point's own previous solution.
	InitFieldValues InitStrategy = iota
	// InitNeighborFirstStepOnly copies an already-solved neighbor on
	// frame 0, then switches to field values.
	InitNeighborFirstStepOnly
	// InitNeighborEveryFrame copies an already-solved neighbor on every
	// frame.
	InitNeighborEveryFrame
	// InitPhaseCorrelation adds the whole-image phase-correlation offset
	// to the previous solution.
	InitPhaseCorrelation
)

func (s InitStrategy) String() string {
	switch s {
	case InitFieldValues:
		return "field values"
	case InitNeighborFirstStepOnly:
		return "neighbor values, first step only"
	case InitNeighborEveryFrame:
		return "neighbor values"
	case InitPhaseCorrelation:
		return "phase correlation"
	default:
		return fmt.Sprintf("unknown strategy (%d)", int(s))
	}
}

// Projection selects how field-value guesses project the previous
// solution forward.
type Projection int

const (
	// ProjectionLastStep reuses the previous solution unchanged.
	ProjectionLastStep Projection = iota
	// ProjectionVelocity extrapolates linearly from the last two frames.
	ProjectionVelocity
	// ProjectionKalman predicts with a per-point Kalman filter over the
	// committed displacement track.
	ProjectionKalman
)

func (p Projection) String() string {
	switch p {
	case ProjectionLastStep:
		return "last step"
	case ProjectionVelocity:
		return "velocity"
	case ProjectionKalman:
		return "kalman"
	default:
		return fmt.Sprintf("unknown projection (%d)", int(p))
	}
}

// OptMethod selects the optimizer run in the refinement stage.
type OptMethod int

const (
	OptGradientBased OptMethod = iota
	OptSimplex
	OptGradientThenSimplex
	OptSimplexThenGradient
)

func (o OptMethod) String() string {
	switch o {
	case OptGradientBased:
		return "gradient based"
	case OptSimplex:
		return "simplex"
	case OptGradientThenSimplex:
		return "gradient based then simplex"
	case OptSimplexThenGradient:
		return "simplex then gradient based"
	default:
		return fmt.Sprintf("unknown optimizer (%d)", int(o))
	}
}

// DisabledThreshold turns a quality gate off.
const DisabledThreshold = -1.0

// Options configures an Analysis.
type Options struct {
	Workers        int
	Mode           Mode
	Initialization InitStrategy
	Projection     Projection
	Optimization   OptMethod

	// SkinFactor scales an occluder's deformed footprint when masking
	// the points it hides.
	SkinFactor float64

	// Quality gates; DisabledThreshold disables a gate.
	InitialGammaThreshold float64
	FinalGammaThreshold   float64
	PathDistanceThreshold float64

	// SubsetEvolution readmits previously obstructed pixels once the
	// fitted shape is known, from the third frame on.
	SubsetEvolution bool

	// DumpSubsetImages writes a PNG of each solved subset's deformed
	// footprint into DumpDir, for visual debugging.
	DumpSubsetImages bool
	DumpDir          string

	// NewObjective builds the correlation objective for one subset.
	NewObjective func(*subset.Subset) Objective
}

// DefaultOptions returns the parameter set for an analysis mode. Tracking
// follows a small number of points through large motion: persistent
// objectives, simplex first with a gradient fallback, subset evolution
// on. Generic solves a dense grid of small motions: ephemeral objectives,
// gradient solver only.
func DefaultOptions(mode Mode) Options {
	opts := Options{
		Workers:               1,
		Mode:                  mode,
		Initialization:        InitFieldValues,
		Projection:            ProjectionLastStep,
		SkinFactor:            1.0,
		InitialGammaThreshold: DisabledThreshold,
		FinalGammaThreshold:   DisabledThreshold,
		PathDistanceThreshold: DisabledThreshold,
	}
	switch mode {
	case ModeTracking:
		opts.Optimization = OptSimplexThenGradient
		opts.SubsetEvolution = true
	default:
		opts.Optimization = OptGradientBased
	}
	return opts
}

// Validate checks the options for a runnable combination.
func (o *Options) Validate() error {
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.Mode != ModeTracking && o.Mode != ModeGeneric {
		return fmt.Errorf("unrecognized analysis mode (%d)", int(o.Mode))
	}
	if o.Initialization < InitFieldValues || o.Initialization > InitPhaseCorrelation {
		return fmt.Errorf("unrecognized initialization strategy (%d)", int(o.Initialization))
	}
	if o.Projection < ProjectionLastStep || o.Projection > ProjectionKalman {
		return fmt.Errorf("unrecognized projection method (%d)", int(o.Projection))
	}
	if o.Optimization < OptGradientBased || o.Optimization > OptSimplexThenGradient {
		return fmt.Errorf("unrecognized optimization method (%d)", int(o.Optimization))
	}
	if o.SkinFactor <= 0 {
		return fmt.Errorf("skin factor must be positive, got %g", o.SkinFactor)
	}
	for _, t := range []struct {
		name string
		val  float64
	}{
		{"initial gamma threshold", o.InitialGammaThreshold},
		{"final gamma threshold", o.FinalGammaThreshold},
		{"path distance threshold", o.PathDistanceThreshold},
	} {
		if t.val != DisabledThreshold && t.val < 0 {
			return fmt.Errorf("%s must be %g (disabled) or non-negative, got %g",
				t.name, DisabledThreshold, t.val)
		}
	}
	if o.NewObjective == nil {
		return fmt.Errorf("an objective factory is required")
	}
	if o.DumpSubsetImages && o.DumpDir == "" {
		return fmt.Errorf("subset image dumping requires a dump directory")
	}
	return nil
}
