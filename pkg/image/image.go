// Package image provides the grayscale scalar images consumed by a
// correlation analysis: decoding from common file formats, intensity
// gradients, binomial smoothing, right-angle rotation, sub-pixel
// interpolation and whole-image phase correlation.
package image

import (
	stdimage "image"

	"github.com/pkg/errors"
)

// Scalar is a grayscale image with float64 intensities, the working
// representation for all correlation math. Gradients are computed on
// demand and cached.
type Scalar struct {
	w, h  int
	pix   []float64
	gradX []float64
	gradY []float64
}

// NewScalar creates a zero-filled w by h image.
func NewScalar(w, h int) (*Scalar, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.Errorf("invalid image dimensions %dx%d", w, h)
	}
	return &Scalar{w: w, h: h, pix: make([]float64, w*h)}, nil
}

// FromImage converts a decoded image to scalar intensities using the
// standard luma weights. 16-bit sources keep their full range scaled to
// 0..255.
func FromImage(src stdimage.Image) (*Scalar, error) {
	bounds := src.Bounds()
	s, err := NewScalar(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert decoded image")
	}
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels; scale the luma to 0..255.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			s.pix[y*s.w+x] = luma / 257.0
		}
	}
	return s, nil
}

// Width returns the image width in pixels.
func (s *Scalar) Width() int { return s.w }

// Height returns the image height in pixels.
func (s *Scalar) Height() int { return s.h }

// In reports whether (x, y) lies inside the image.
func (s *Scalar) In(x, y int) bool {
	return x >= 0 && x < s.w && y >= 0 && y < s.h
}

// At returns the intensity at (x, y). Coordinates outside the image clamp
// to the nearest edge pixel.
func (s *Scalar) At(x, y int) float64 {
	x = clamp(x, 0, s.w-1)
	y = clamp(y, 0, s.h-1)
	return s.pix[y*s.w+x]
}

// Set stores an intensity at (x, y). Out-of-range coordinates are ignored.
func (s *Scalar) Set(x, y int, v float64) {
	if !s.In(x, y) {
		return
	}
	s.pix[y*s.w+x] = v
}

// HasGradients reports whether ComputeGradients has run.
func (s *Scalar) HasGradients() bool { return s.gradX != nil }

// ComputeGradients fills the intensity gradient planes with central
// differences, one-sided at the borders. Safe to call more than once.
func (s *Scalar) ComputeGradients() {
	if s.gradX != nil {
		return
	}
	s.gradX = make([]float64, len(s.pix))
	s.gradY = make([]float64, len(s.pix))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			i := y*s.w + x
			switch {
			case x == 0:
				s.gradX[i] = s.At(1, y) - s.At(0, y)
			case x == s.w-1:
				s.gradX[i] = s.At(x, y) - s.At(x-1, y)
			default:
				s.gradX[i] = 0.5 * (s.At(x+1, y) - s.At(x-1, y))
			}
			switch {
			case y == 0:
				s.gradY[i] = s.At(x, 1) - s.At(x, 0)
			case y == s.h-1:
				s.gradY[i] = s.At(x, y) - s.At(x, y-1)
			default:
				s.gradY[i] = 0.5 * (s.At(x, y+1) - s.At(x, y-1))
			}
		}
	}
}

// GradX returns the x gradient at (x, y). ComputeGradients must have run.
func (s *Scalar) GradX(x, y int) float64 {
	return s.gradX[clamp(y, 0, s.h-1)*s.w+clamp(x, 0, s.w-1)]
}

// GradY returns the y gradient at (x, y). ComputeGradients must have run.
func (s *Scalar) GradY(x, y int) float64 {
	return s.gradY[clamp(y, 0, s.h-1)*s.w+clamp(x, 0, s.w-1)]
}

// GaussFilter smooths the image in place with a separable binomial mask.
// size must be an odd width between 5 and 13. Cached gradients are
// invalidated.
func (s *Scalar) GaussFilter(size int) error {
	if size < 5 || size > 13 || size%2 == 0 {
		return errors.Errorf("gauss filter mask size must be odd and between 5 and 13, got %d", size)
	}
	mask := binomial(size)
	half := size / 2

	tmp := make([]float64, len(s.pix))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			var v float64
			for k := -half; k <= half; k++ {
				v += mask[k+half] * s.At(x+k, y)
			}
			tmp[y*s.w+x] = v
		}
	}
	out := make([]float64, len(s.pix))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			var v float64
			for k := -half; k <= half; k++ {
				yy := clamp(y+k, 0, s.h-1)
				v += mask[k+half] * tmp[yy*s.w+x]
			}
			out[y*s.w+x] = v
		}
	}
	s.pix = out
	s.gradX = nil
	s.gradY = nil
	return nil
}

// Rotate returns a copy of the image rotated clockwise by 90, 180 or 270
// degrees.
func (s *Scalar) Rotate(degrees int) (*Scalar, error) {
	switch degrees {
	case 90:
		out, _ := NewScalar(s.h, s.w)
		for y := 0; y < out.h; y++ {
			for x := 0; x < out.w; x++ {
				out.pix[y*out.w+x] = s.At(y, s.h-1-x)
			}
		}
		return out, nil
	case 180:
		out, _ := NewScalar(s.w, s.h)
		for y := 0; y < out.h; y++ {
			for x := 0; x < out.w; x++ {
				out.pix[y*out.w+x] = s.At(s.w-1-x, s.h-1-y)
			}
		}
		return out, nil
	case 270:
		out, _ := NewScalar(s.h, s.w)
		for y := 0; y < out.h; y++ {
			for x := 0; x < out.w; x++ {
				out.pix[y*out.w+x] = s.At(s.w-1-y, x)
			}
		}
		return out, nil
	default:
		return nil, errors.Errorf("rotation must be 90, 180 or 270 degrees, got %d", degrees)
	}
}

// binomial returns normalized Pascal-row weights of the given width.
func binomial(size int) []float64 {
	row := make([]float64, size)
	row[0] = 1
	for i := 1; i < size; i++ {
		for j := i; j > 0; j-- {
			row[j] += row[j-1]
		}
	}
	var sum float64
	for _, v := range row {
		sum += v
	}
	for i := range row {
		row[i] /= sum
	}
	return row
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
