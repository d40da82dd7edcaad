package objective

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/dyluth/speckle/pkg/subset"
)

const (
	paramCount        = 6
	maxIterationsFast = 250
	fastTolerance     = 1e-4
)

// normalEquations builds the Gauss-Newton system for one iteration:
// J'J and J'r, where J is the Jacobian of the normalized deformed
// intensities with respect to the six deformation parameters and r is
// the normalized residual. The sample must carry gradients.
func normalEquations(d subset.Deformation, smp *sample) (*mat.Dense, *mat.VecDense) {
	ct := math.Cos(d.Theta)
	st := math.Sin(d.Theta)

	jtj := make([]float64, paramCount*paramCount)
	rhs := make([]float64, paramCount)
	var row [paramCount]float64
	for i := range smp.f {
		dx := smp.dx[i]
		dy := smp.dy[i]
		sx := (1+d.Ex)*dx + d.Gxy*dy
		sy := (1+d.Ey)*dy + d.Gxy*dx
		gx := smp.gx[i]
		gy := smp.gy[i]

		row[0] = gx
		row[1] = gy
		row[2] = gx*(-st*sx-ct*sy) + gy*(ct*sx-st*sy)
		row[3] = gx*(ct*dx) + gy*(st*dx)
		row[4] = gx*(-st*dy) + gy*(ct*dy)
		row[5] = gx*(ct*dy-st*dx) + gy*(st*dy+ct*dx)
		for k := range row {
			row[k] /= smp.gNorm
		}

		r := (smp.f[i]-smp.fMean)/smp.fNorm - (smp.g[i]-smp.gMean)/smp.gNorm
		for k := 0; k < paramCount; k++ {
			rhs[k] += row[k] * r
			for l := 0; l < paramCount; l++ {
				jtj[k*paramCount+l] += row[k] * row[l]
			}
		}
	}
	return mat.NewDense(paramCount, paramCount, jtj), mat.NewVecDense(paramCount, rhs)
}

// UpdateFast refines the deformation with Gauss-Newton iterations driven
// by the deformed-image gradients. The iteration stops when the
// displacement step drops under the solver tolerance. A false Converged
// with a nil error means the iteration budget ran out; an error means the
// refinement could not be evaluated at all.
func (o *Objective) UpdateFast(d *subset.Deformation) (Update, error) {
	if o.def == nil {
		return Update{}, errors.New("Can't refine subset: no deformed image bound")
	}
	if !o.def.HasGradients() {
		return Update{}, errors.New("Can't refine subset: deformed image gradients not computed")
	}

	cur := *d
	for iter := 1; iter <= maxIterationsFast; iter++ {
		smp, err := o.sampleAt(cur, true)
		if err != nil {
			return Update{Iterations: iter - 1}, err
		}
		jtj, rhs := normalEquations(cur, smp)

		var delta mat.VecDense
		if err := delta.SolveVec(jtj, rhs); err != nil {
			return Update{Iterations: iter - 1}, errors.Wrap(err, "Can't solve correlation normal equations")
		}
		for k := 0; k < paramCount; k++ {
			if math.IsNaN(delta.AtVec(k)) || math.IsInf(delta.AtVec(k), 0) {
				return Update{Iterations: iter - 1}, errors.New("Can't refine subset: solver step is not finite")
			}
		}

		cur.U += delta.AtVec(0)
		cur.V += delta.AtVec(1)
		cur.Theta += delta.AtVec(2)
		cur.Ex += delta.AtVec(3)
		cur.Ey += delta.AtVec(4)
		cur.Gxy += delta.AtVec(5)

		if math.Abs(delta.AtVec(0)) < fastTolerance && math.Abs(delta.AtVec(1)) < fastTolerance {
			*d = cur
			return Update{Iterations: iter, Converged: true}, nil
		}
	}
	*d = cur
	return Update{Iterations: maxIterationsFast}, nil
}
