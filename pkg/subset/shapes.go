package subset

import (
	"fmt"
	"math"
)

// Pixel is an absolute image pixel coordinate.
type Pixel struct {
	X, Y int
}

// Shape is one region of a conformal subset definition. Contains answers
// membership in the undeformed reference image; Fill projects the shape
// through a deformation about the subset centroid, with relative
// coordinates scaled by the skin factor, and rasterizes the result.
type Shape interface {
	Contains(x, y int) bool
	Bounds() (minX, minY, maxX, maxY int)
	Fill(d Deformation, cx, cy, skin float64) map[Pixel]bool
}

// Rectangle is an axis-aligned rectangular region.
type Rectangle struct {
	CenterX, CenterY float64
	W, H             float64
}

// Contains reports whether the reference pixel lies inside the rectangle.
func (r Rectangle) Contains(x, y int) bool {
	return math.Abs(float64(x)-r.CenterX) <= r.W/2 && math.Abs(float64(y)-r.CenterY) <= r.H/2
}

// Bounds returns the integer bounding box of the undeformed rectangle.
func (r Rectangle) Bounds() (int, int, int, int) {
	return int(math.Floor(r.CenterX - r.W/2)), int(math.Floor(r.CenterY - r.H/2)),
		int(math.Ceil(r.CenterX + r.W/2)), int(math.Ceil(r.CenterY + r.H/2))
}

// Fill projects the rectangle's corners through the deformation and
// rasterizes the resulting quadrilateral.
func (r Rectangle) Fill(d Deformation, cx, cy, skin float64) map[Pixel]bool {
	corners := [][2]float64{
		{r.CenterX - r.W/2, r.CenterY - r.H/2},
		{r.CenterX + r.W/2, r.CenterY - r.H/2},
		{r.CenterX + r.W/2, r.CenterY + r.H/2},
		{r.CenterX - r.W/2, r.CenterY + r.H/2},
	}
	return fillDeformedPolygon(corners, d, cx, cy, skin)
}

// Circle is a circular region.
type Circle struct {
	CenterX, CenterY float64
	Radius           float64
}

// Contains reports whether the reference pixel lies inside the circle.
func (c Circle) Contains(x, y int) bool {
	dx := float64(x) - c.CenterX
	dy := float64(y) - c.CenterY
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

// Bounds returns the integer bounding box of the undeformed circle.
func (c Circle) Bounds() (int, int, int, int) {
	return int(math.Floor(c.CenterX - c.Radius)), int(math.Floor(c.CenterY - c.Radius)),
		int(math.Ceil(c.CenterX + c.Radius)), int(math.Ceil(c.CenterY + c.Radius))
}

// circleSides is the polygon resolution used when projecting a circle
// through a deformation (an affine map turns a circle into an ellipse).
const circleSides = 32

// Fill approximates the deformed circle by projecting boundary samples
// and rasterizing the resulting polygon.
func (c Circle) Fill(d Deformation, cx, cy, skin float64) map[Pixel]bool {
	verts := make([][2]float64, 0, circleSides)
	for i := 0; i < circleSides; i++ {
		a := 2 * math.Pi * float64(i) / circleSides
		verts = append(verts, [2]float64{
			c.CenterX + c.Radius*math.Cos(a),
			c.CenterY + c.Radius*math.Sin(a),
		})
	}
	return fillDeformedPolygon(verts, d, cx, cy, skin)
}

// Polygon is an arbitrary simple polygon region given by its vertices in
// reference image coordinates.
type Polygon struct {
	Vertices [][2]float64
}

// Validate checks the polygon has enough vertices to enclose area.
func (p Polygon) Validate() error {
	if len(p.Vertices) < 3 {
		return fmt.Errorf("polygon needs at least 3 vertices, got %d", len(p.Vertices))
	}
	return nil
}

// Contains reports whether the reference pixel lies inside the polygon.
func (p Polygon) Contains(x, y int) bool {
	return inPolygon(float64(x), float64(y), p.Vertices)
}

// Bounds returns the integer bounding box of the undeformed polygon.
func (p Polygon) Bounds() (int, int, int, int) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range p.Vertices {
		minX = math.Min(minX, v[0])
		minY = math.Min(minY, v[1])
		maxX = math.Max(maxX, v[0])
		maxY = math.Max(maxY, v[1])
	}
	return int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY))
}

// Fill projects the polygon's vertices through the deformation and
// rasterizes the result.
func (p Polygon) Fill(d Deformation, cx, cy, skin float64) map[Pixel]bool {
	return fillDeformedPolygon(p.Vertices, d, cx, cy, skin)
}

// fillDeformedPolygon maps reference vertices through the deformation,
// scaling their offsets from the centroid by the skin factor, and returns
// the covered pixels.
func fillDeformedPolygon(verts [][2]float64, d Deformation, cx, cy, skin float64) map[Pixel]bool {
	mapped := make([][2]float64, len(verts))
	for i, v := range verts {
		dx := (v[0] - cx) * skin
		dy := (v[1] - cy) * skin
		x, y := d.Map(cx, cy, dx, dy)
		mapped[i] = [2]float64{x, y}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range mapped {
		minX = math.Min(minX, v[0])
		minY = math.Min(minY, v[1])
		maxX = math.Max(maxX, v[0])
		maxY = math.Max(maxY, v[1])
	}

	// The epsilon nudges pixel centers off exact polygon edges so
	// axis-aligned footprints rasterize consistently.
	const eps = 1e-4
	pixels := make(map[Pixel]bool)
	for y := int(math.Floor(minY)); y <= int(math.Ceil(maxY)); y++ {
		for x := int(math.Floor(minX)); x <= int(math.Ceil(maxX)); x++ {
			if inPolygon(float64(x)+eps, float64(y)+eps, mapped) {
				pixels[Pixel{X: x, Y: y}] = true
			}
		}
	}
	return pixels
}

// inPolygon is an even-odd ray casting test.
func inPolygon(x, y float64, verts [][2]float64) bool {
	in := false
	j := len(verts) - 1
	for i := 0; i < len(verts); i++ {
		xi, yi := verts[i][0], verts[i][1]
		xj, yj := verts[j][0], verts[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
		j = i
	}
	return in
}
