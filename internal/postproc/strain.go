// Package postproc derives secondary quantities from the solved fields
// after each frame. The virtual strain gauge fits a displacement plane
// over a window of neighboring points and reads the strains off the
// plane gradients, which smooths the pointwise strain estimates the
// optimizer itself produces.
package postproc

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"

	"github.com/dyluth/speckle/internal/engine"
	"github.com/dyluth/speckle/pkg/field"
)

// Field names the virtual strain gauge provides.
const (
	FieldStrainXX = "VSG_STRAIN_XX"
	FieldStrainYY = "VSG_STRAIN_YY"
	FieldStrainXY = "VSG_STRAIN_XY"
)

// minNeighborhood is the smallest point count a plane fit needs.
const minNeighborhood = 3

// VSGStrain is the virtual strain gauge post-processor. The window is
// the gauge diameter in pixels; points whose centers lie within half the
// window of a point contribute to its fit.
type VSGStrain struct {
	window float64

	analysis *engine.Analysis
	hood     [][]int
	xx       []float64
	yy       []float64
	xy       []float64
}

// NewVSGStrain builds a strain gauge with the given window diameter.
func NewVSGStrain(window float64) *VSGStrain {
	return &VSGStrain{window: window}
}

// Initialize binds the gauge to an analysis and sizes its buffers.
func (p *VSGStrain) Initialize(a *engine.Analysis) error {
	if p.window <= 0 {
		return fmt.Errorf("strain gauge window must be positive, got %g", p.window)
	}
	p.analysis = a
	n := a.NumPoints()
	p.xx = make([]float64, n)
	p.yy = make([]float64, n)
	p.xy = make([]float64, n)
	return nil
}

// PreExecute collects each point's gauge neighborhood. Coordinates never
// change during a run, so the neighborhoods are computed once.
func (p *VSGStrain) PreExecute() {
	n := p.analysis.NumPoints()
	radius := p.window / 2
	p.hood = make([][]int, n)
	total := 0
	for i := 0; i < n; i++ {
		xi := p.val(i, field.CoordinateX)
		yi := p.val(i, field.CoordinateY)
		for j := 0; j < n; j++ {
			dx := p.val(j, field.CoordinateX) - xi
			dy := p.val(j, field.CoordinateY) - yi
			if dx*dx+dy*dy <= radius*radius {
				p.hood[i] = append(p.hood[i], j)
			}
		}
		total += len(p.hood[i])
	}
	if n > 0 {
		log.Printf("[Strain] Gauge window %g px: %d points, average neighborhood %d", p.window, n, total/n)
	}
}

// Execute refits every point's displacement plane against the frame's
// solved fields.
func (p *VSGStrain) Execute() {
	for id := range p.xx {
		p.xx[id], p.yy[id], p.xy[id] = p.fit(id)
	}
}

// fit least-squares fits u and v planes over the point's solved
// neighbors and returns the small-strain components. Points without a
// valid solution are left out; an underpopulated or degenerate
// neighborhood yields zero strain.
func (p *VSGStrain) fit(id int) (xx, yy, xy float64) {
	rows := make([]int, 0, len(p.hood[id]))
	for _, q := range p.hood[id] {
		if p.val(q, field.Sigma) != field.Unsolved {
			rows = append(rows, q)
		}
	}
	if len(rows) < minNeighborhood {
		return 0, 0, 0
	}

	x0 := p.val(id, field.CoordinateX)
	y0 := p.val(id, field.CoordinateY)
	a := mat.NewDense(len(rows), 3, nil)
	b := mat.NewDense(len(rows), 2, nil)
	for i, q := range rows {
		a.Set(i, 0, 1)
		a.Set(i, 1, p.val(q, field.CoordinateX)-x0)
		a.Set(i, 2, p.val(q, field.CoordinateY)-y0)
		b.Set(i, 0, p.val(q, field.DisplacementX))
		b.Set(i, 1, p.val(q, field.DisplacementY))
	}
	var coef mat.Dense
	if err := coef.Solve(a, b); err != nil {
		// collinear neighborhoods cannot pin a plane down
		return 0, 0, 0
	}
	dudx := coef.At(1, 0)
	dudy := coef.At(2, 0)
	dvdx := coef.At(1, 1)
	dvdy := coef.At(2, 1)
	return dudx, dvdy, 0.5 * (dudy + dvdx)
}

// FieldNames lists the derived fields in output order.
func (p *VSGStrain) FieldNames() []string {
	return []string{FieldStrainXX, FieldStrainYY, FieldStrainXY}
}

// Value returns one derived strain for a point.
func (p *VSGStrain) Value(id int, name string) (float64, error) {
	if id < 0 || id >= len(p.xx) {
		return 0, fmt.Errorf("unknown point %d", id)
	}
	switch name {
	case FieldStrainXX:
		return p.xx[id], nil
	case FieldStrainYY:
		return p.yy[id], nil
	case FieldStrainXY:
		return p.xy[id], nil
	default:
		return 0, fmt.Errorf("unknown strain field %q", name)
	}
}

func (p *VSGStrain) val(id int, name field.Name) float64 {
	v, _ := p.analysis.FieldValue(id, name)
	return v
}
