// Package objective implements the correlation objective bound to one
// subset: a zero-normalized sum-of-squared-differences mismatch between
// the subset's reference intensities and the deformed image, with a
// gradient-based and a simplex-based refinement of the six deformation
// parameters and an uncertainty estimate for the fitted displacement.
package objective

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/dyluth/speckle/pkg/image"
	"github.com/dyluth/speckle/pkg/subset"
)

// A subset needs at least this many visible pixels to be correlated.
const minVisiblePixels = 10

// Update reports the outcome of one refinement run.
type Update struct {
	Iterations int
	Converged  bool
}

// Objective binds a subset to the current deformed image.
type Objective struct {
	sub *subset.Subset
	def *image.Scalar
}

// New creates an objective for the given subset. The deformed image is
// bound per frame with SetDeformedImage.
func New(sub *subset.Subset) *Objective {
	return &Objective{sub: sub}
}

// Subset returns the subset geometry this objective correlates.
func (o *Objective) Subset() *subset.Subset { return o.sub }

// SetDeformedImage binds the frame's deformed image.
func (o *Objective) SetDeformedImage(img *image.Scalar) { o.def = img }

// sample holds the visible portion of the subset evaluated at one
// deformation: paired reference and deformed intensities, centroid
// offsets, and optionally deformed-image gradients at the mapped
// positions. Pixels mapping outside the deformed image are dropped.
type sample struct {
	dx, dy []float64
	f, g   []float64
	gx, gy []float64

	fMean, gMean float64
	fNorm, gNorm float64
}

func (o *Objective) sampleAt(d subset.Deformation, withGrad bool) (*sample, error) {
	if o.def == nil {
		return nil, errors.New("Can't evaluate subset: no deformed image bound")
	}
	cx, cy := o.sub.Centroid()
	n := o.sub.Size()
	smp := &sample{
		dx: make([]float64, 0, n),
		dy: make([]float64, 0, n),
		f:  make([]float64, 0, n),
		g:  make([]float64, 0, n),
	}
	if withGrad {
		smp.gx = make([]float64, 0, n)
		smp.gy = make([]float64, 0, n)
	}
	for i := 0; i < n; i++ {
		if !o.sub.Usable(i) {
			continue
		}
		p := o.sub.Pixel(i)
		dx := float64(p.X) - cx
		dy := float64(p.Y) - cy
		x, y := d.Map(cx, cy, dx, dy)
		g, err := o.def.InterpKeys(x, y)
		if err != nil {
			if errors.Is(err, image.ErrOutOfBounds) {
				continue
			}
			return nil, err
		}
		if withGrad {
			gx, gy, err := o.def.InterpGrad(x, y)
			if err != nil {
				if errors.Is(err, image.ErrOutOfBounds) {
					continue
				}
				return nil, err
			}
			smp.gx = append(smp.gx, gx)
			smp.gy = append(smp.gy, gy)
		}
		smp.dx = append(smp.dx, dx)
		smp.dy = append(smp.dy, dy)
		smp.f = append(smp.f, o.sub.Ref(i))
		smp.g = append(smp.g, g)
	}
	m := len(smp.f)
	if m < minVisiblePixels {
		return nil, errors.Errorf("Can't correlate subset at (%.1f, %.1f): only %d of %d pixels visible",
			cx, cy, m, n)
	}

	for i := 0; i < m; i++ {
		smp.fMean += smp.f[i]
		smp.gMean += smp.g[i]
	}
	smp.fMean /= float64(m)
	smp.gMean /= float64(m)
	for i := 0; i < m; i++ {
		df := smp.f[i] - smp.fMean
		dg := smp.g[i] - smp.gMean
		smp.fNorm += df * df
		smp.gNorm += dg * dg
	}
	smp.fNorm = math.Sqrt(smp.fNorm)
	smp.gNorm = math.Sqrt(smp.gNorm)
	if smp.fNorm < 1e-10 || smp.gNorm < 1e-10 {
		return nil, errors.Errorf("Can't normalize subset at (%.1f, %.1f): flat intensity patch", cx, cy)
	}
	return smp, nil
}

// znssd is the zero-normalized SSD of a sample, in [0, 4].
func znssd(smp *sample) float64 {
	var gamma float64
	for i := range smp.f {
		r := (smp.f[i]-smp.fMean)/smp.fNorm - (smp.g[i]-smp.gMean)/smp.gNorm
		gamma += r * r
	}
	return gamma
}

// Gamma evaluates the mismatch of the subset at the given deformation,
// lower is better. An error means the deformation cannot be evaluated at
// all, for example when the mapped subset leaves the image.
func (o *Objective) Gamma(d subset.Deformation) (float64, error) {
	smp, err := o.sampleAt(d, false)
	if err != nil {
		return 0, err
	}
	return znssd(smp), nil
}

// Sigma estimates the one-sigma displacement uncertainty of a fitted
// deformation from the curvature of the objective, scaled by the residual
// mismatch. Returns -1 when the estimate cannot be computed.
func (o *Objective) Sigma(d subset.Deformation) float64 {
	if o.def == nil || !o.def.HasGradients() {
		return -1.0
	}
	smp, err := o.sampleAt(d, true)
	if err != nil {
		return -1.0
	}
	m := len(smp.f)
	if m <= paramCount {
		return -1.0
	}

	jtj, _ := normalEquations(d, smp)
	var inv mat.Dense
	if err := inv.Inverse(jtj); err != nil {
		return -1.0
	}
	maxDiag := math.Max(inv.At(0, 0), inv.At(1, 1))
	if maxDiag < 0 {
		return -1.0
	}
	variance := 2.0 * znssd(smp) / float64(m-paramCount)
	return math.Sqrt(variance * maxDiag)
}
