// Package subset provides the pixel-set geometry for correlation points:
// square and conformal subset definitions, affine deformation mapping,
// deformed-shape projection for obstruction masking, and the pixel
// activation state that masking and subset evolution maintain.
package subset

import "math"

// Deformation is the six-component affine motion of a subset: rigid
// translation and rotation plus normal and shear strains.
type Deformation struct {
	U     float64 // x displacement
	V     float64 // y displacement
	Theta float64 // rotation about the centroid, radians
	Ex    float64 // normal strain x
	Ey    float64 // normal strain y
	Gxy   float64 // shear strain
}

// Map transforms a reference offset (dx, dy) about the centroid (cx, cy)
// into deformed image coordinates: strain first, then rotation, then
// translation.
func (d Deformation) Map(cx, cy, dx, dy float64) (float64, float64) {
	sx := (1+d.Ex)*dx + d.Gxy*dy
	sy := (1+d.Ey)*dy + d.Gxy*dx
	ct := math.Cos(d.Theta)
	st := math.Sin(d.Theta)
	return cx + d.U + ct*sx - st*sy, cy + d.V + st*sx + ct*sy
}
