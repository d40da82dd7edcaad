package subset

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dyluth/speckle/pkg/image"
)

// Subset is the pixel set correlated for one analysis point. Pixels carry
// reference intensities sampled once from the reference image, plus the
// activation state maintained by obstruction masking and subset
// evolution.
type Subset struct {
	cx, cy float64
	shapes []Shape

	px         []Pixel
	ref        []float64
	blocked    []bool
	wasBlocked []bool
	hasRef     bool
}

// NewSquare builds the standard square subset of the given odd size
// centered on (cx, cy).
func NewSquare(cx, cy float64, size int) (*Subset, error) {
	if size < 3 || size%2 == 0 {
		return nil, fmt.Errorf("square subset size must be odd and at least 3, got %d", size)
	}
	return NewConformal(cx, cy, Rectangle{CenterX: cx, CenterY: cy, W: float64(size - 1), H: float64(size - 1)})
}

// NewConformal builds a subset from explicit shape regions.
func NewConformal(cx, cy float64, shapes ...Shape) (*Subset, error) {
	if len(shapes) == 0 {
		return nil, fmt.Errorf("conformal subset needs at least one shape")
	}
	s := &Subset{cx: cx, cy: cy, shapes: shapes}

	seen := make(map[Pixel]bool)
	for _, shape := range shapes {
		minX, minY, maxX, maxY := shape.Bounds()
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				p := Pixel{X: x, Y: y}
				if !seen[p] && shape.Contains(x, y) {
					seen[p] = true
					s.px = append(s.px, p)
				}
			}
		}
	}
	if len(s.px) == 0 {
		return nil, fmt.Errorf("subset at (%.1f, %.1f) covers no pixels", cx, cy)
	}
	s.ref = make([]float64, len(s.px))
	s.blocked = make([]bool, len(s.px))
	s.wasBlocked = make([]bool, len(s.px))
	return s, nil
}

// Centroid returns the subset center in reference image coordinates.
func (s *Subset) Centroid() (float64, float64) { return s.cx, s.cy }

// Size returns the number of pixels in the subset.
func (s *Subset) Size() int { return len(s.px) }

// Pixel returns the i-th pixel coordinate.
func (s *Subset) Pixel(i int) Pixel { return s.px[i] }

// Ref returns the i-th reference intensity. InitializeRef must have run.
func (s *Subset) Ref(i int) float64 { return s.ref[i] }

// Blocked reports whether the i-th pixel is currently hidden by an
// occluder.
func (s *Subset) Blocked(i int) bool { return s.blocked[i] }

// Usable reports whether the i-th pixel participates in correlation. A
// pixel that has ever been blocked stays out of the active set until
// Readmit returns it, even after the occluder moves off it.
func (s *Subset) Usable(i int) bool { return !s.blocked[i] && !s.wasBlocked[i] }

// UsableCount returns the number of pixels participating in correlation.
func (s *Subset) UsableCount() int {
	n := 0
	for i := range s.px {
		if s.Usable(i) {
			n++
		}
	}
	return n
}

// InitializeRef samples the reference intensities from the reference
// image. Must run once before the subset is correlated.
func (s *Subset) InitializeRef(ref *image.Scalar) error {
	for i, p := range s.px {
		if !ref.In(p.X, p.Y) {
			return errors.Errorf("subset pixel (%d, %d) lies outside the %dx%d reference image",
				p.X, p.Y, ref.Width(), ref.Height())
		}
		s.ref[i] = ref.At(p.X, p.Y)
	}
	s.hasRef = true
	return nil
}

// HasRef reports whether reference intensities have been sampled.
func (s *Subset) HasRef() bool { return s.hasRef }

// SetBlocked replaces the blocked-pixel set with the given footprint.
// History is not merged: a pixel is blocked afterwards exactly when the
// footprint covers it. Pixels entering the blocked state are remembered
// for later readmission by subset evolution.
func (s *Subset) SetBlocked(footprint map[Pixel]bool) {
	for i, p := range s.px {
		s.blocked[i] = footprint[p]
		if s.blocked[i] {
			s.wasBlocked[i] = true
		}
	}
}

// BlockedCount returns the number of currently blocked pixels.
func (s *Subset) BlockedCount() int {
	n := 0
	for i := range s.px {
		if s.blocked[i] {
			n++
		}
	}
	return n
}

// DeformedFootprint projects the subset's shapes through the deformation
// about the subset centroid, scaled by the skin factor, and returns the
// covered pixels. This is the footprint an occluder contributes to the
// blocked sets of the points it hides.
func (s *Subset) DeformedFootprint(d Deformation, skin float64) map[Pixel]bool {
	footprint := make(map[Pixel]bool)
	for _, shape := range s.shapes {
		for p := range shape.Fill(d, s.cx, s.cy, skin) {
			footprint[p] = true
		}
	}
	return footprint
}

// Readmit returns previously obstructed pixels to the active set once the
// fitted shape is known, re-sampling their reference intensities from the
// deformed image at their mapped positions. Pixels whose mapped position
// falls outside the image stay hidden. Returns the number of pixels
// readmitted.
func (s *Subset) Readmit(d Deformation, def *image.Scalar) int {
	readmitted := 0
	for i, p := range s.px {
		if !s.wasBlocked[i] || s.blocked[i] {
			continue
		}
		x, y := d.Map(s.cx, s.cy, float64(p.X)-s.cx, float64(p.Y)-s.cy)
		v, err := def.Interp(x, y)
		if err != nil {
			continue
		}
		s.ref[i] = v
		s.wasBlocked[i] = false
		readmitted++
	}
	return readmitted
}
