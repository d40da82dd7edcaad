package objective

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"

	"github.com/dyluth/speckle/pkg/subset"
)

const (
	maxIterationsRobust = 500
	robustTolerance     = 1e-6
	robustConvergeSpan  = 20
)

// UpdateRobust refines the rigid components of the deformation with a
// Nelder-Mead simplex over (u, v, theta), holding the strains fixed.
// Derivative-free, so it tolerates guesses too far off for the gradient
// solver. A false Converged with a nil error means the iteration budget
// ran out.
func (o *Objective) UpdateRobust(d *subset.Deformation) (Update, error) {
	if o.def == nil {
		return Update{}, errors.New("Can't refine subset: no deformed image bound")
	}
	base := *d
	if _, err := o.Gamma(base); err != nil {
		return Update{}, errors.Wrap(err, "Can't start simplex refinement")
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			trial := base
			trial.U = x[0]
			trial.V = x[1]
			trial.Theta = x[2]
			gamma, err := o.Gamma(trial)
			if err != nil {
				// Vertices that leave the image are repelled, not fatal.
				return math.Inf(1)
			}
			return gamma
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIterationsRobust,
		Converger: &optimize.FunctionConverge{
			Absolute:   robustTolerance,
			Iterations: robustConvergeSpan,
		},
	}

	x0 := []float64{base.U, base.V, base.Theta}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return Update{}, errors.Wrap(err, "Can't run simplex refinement")
	}
	iters := result.Stats.MajorIterations
	if statusErr := result.Status.Err(); statusErr != nil {
		return Update{Iterations: iters}, nil
	}

	d.U = result.X[0]
	d.V = result.X[1]
	d.Theta = result.X[2]
	return Update{Iterations: iters, Converged: true}, nil
}
