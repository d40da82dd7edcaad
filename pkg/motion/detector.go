// Package motion provides the per-point motion gating and displacement
// prediction helpers used during frame initialization: windowed
// frame-difference detectors that decide whether a point moved at all,
// and Kalman predictors that project a point's displacement into the next
// frame.
package motion

import (
	"fmt"

	"github.com/dyluth/speckle/pkg/image"
)

// Window describes a motion-test region for one point. UseID lets a point
// reuse the detector of another reference point instead of owning a
// window itself; OwnWindow marks a point that evaluates its own region.
type Window struct {
	StartX, StartY int
	EndX, EndY     int
	Tol            float64
	UseID          int
}

// OwnWindow is the UseID value for a point that owns its window.
const OwnWindow = -1

// Validate checks the window's geometry and tolerance.
func (w Window) Validate() error {
	if w.EndX <= w.StartX || w.EndY <= w.StartY {
		return fmt.Errorf("motion window must span a positive area, got (%d,%d)-(%d,%d)",
			w.StartX, w.StartY, w.EndX, w.EndY)
	}
	if w.Tol < 0 {
		return fmt.Errorf("motion window tolerance must not be negative, got %g", w.Tol)
	}
	return nil
}

// Detector answers a boolean motion test against a deformed image. A
// detector persists across frames and is reset once at the start of each
// frame; within a frame the first Motion call computes the answer and
// later calls (from points sharing the detector) reuse it.
type Detector interface {
	Reset()
	Motion(img *image.Scalar) bool
}

// WindowDetector compares the window region of consecutive deformed
// images and reports motion when the mean absolute intensity difference
// exceeds the tolerance.
type WindowDetector struct {
	win    Window
	prev   []float64
	cached bool
	moved  bool
}

// NewWindowDetector creates a detector for the given window.
func NewWindowDetector(win Window) *WindowDetector {
	return &WindowDetector{win: win}
}

// Reset clears the cached per-frame answer. The baseline window from the
// previous frame is kept for the next difference.
func (d *WindowDetector) Reset() {
	d.cached = false
}

// Motion evaluates the window against the image. The first frame, with no
// baseline yet, always reports motion.
func (d *WindowDetector) Motion(img *image.Scalar) bool {
	if d.cached {
		return d.moved
	}
	cur := d.extract(img)
	if d.prev == nil {
		d.prev = cur
		d.moved = true
		d.cached = true
		return true
	}

	var sum float64
	for i := range cur {
		diff := cur[i] - d.prev[i]
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	mean := sum / float64(len(cur))

	d.moved = mean > d.win.Tol
	d.prev = cur
	d.cached = true
	return d.moved
}

func (d *WindowDetector) extract(img *image.Scalar) []float64 {
	vals := make([]float64, 0, (d.win.EndX-d.win.StartX)*(d.win.EndY-d.win.StartY))
	for y := d.win.StartY; y < d.win.EndY; y++ {
		for x := d.win.StartX; x < d.win.EndX; x++ {
			vals = append(vals, img.At(x, y))
		}
	}
	return vals
}
