package image

import (
	"math"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned when a sub-pixel sample falls outside the
// image area the active interpolant can evaluate.
var ErrOutOfBounds = errors.New("sample position outside image bounds")

// Interp returns the bilinear interpolation of the intensity at the
// sub-pixel position (x, y).
func (s *Scalar) Interp(x, y float64) (float64, error) {
	if x < 0 || y < 0 || x > float64(s.w-1) || y > float64(s.h-1) {
		return 0, errors.Wrapf(ErrOutOfBounds, "bilinear sample at (%.2f, %.2f)", x, y)
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	v00 := s.At(x0, y0)
	v10 := s.At(x0+1, y0)
	v01 := s.At(x0, y0+1)
	v11 := s.At(x0+1, y0+1)
	return v00*(1-fx)*(1-fy) + v10*fx*(1-fy) + v01*(1-fx)*fy + v11*fx*fy, nil
}

// InterpKeys returns the Keys bicubic interpolation of the intensity at
// the sub-pixel position (x, y). Positions within two pixels of the
// border fall back to bilinear.
func (s *Scalar) InterpKeys(x, y float64) (float64, error) {
	if x < 2 || y < 2 || x > float64(s.w-3) || y > float64(s.h-3) {
		return s.Interp(x, y)
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var wx, wy [4]float64
	for i := 0; i < 4; i++ {
		wx[i] = keysKernel(float64(i-1) - fx)
		wy[i] = keysKernel(float64(i-1) - fy)
	}
	var v float64
	for j := 0; j < 4; j++ {
		var row float64
		for i := 0; i < 4; i++ {
			row += wx[i] * s.At(x0-1+i, y0-1+j)
		}
		v += wy[j] * row
	}
	return v, nil
}

// InterpGrad returns the bilinear interpolation of the intensity
// gradients at the sub-pixel position (x, y). ComputeGradients must have
// run.
func (s *Scalar) InterpGrad(x, y float64) (float64, float64, error) {
	if !s.HasGradients() {
		return 0, 0, errors.New("image gradients not computed")
	}
	if x < 0 || y < 0 || x > float64(s.w-1) || y > float64(s.h-1) {
		return 0, 0, errors.Wrapf(ErrOutOfBounds, "gradient sample at (%.2f, %.2f)", x, y)
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	w00 := (1 - fx) * (1 - fy)
	w10 := fx * (1 - fy)
	w01 := (1 - fx) * fy
	w11 := fx * fy
	gx := w00*s.GradX(x0, y0) + w10*s.GradX(x0+1, y0) + w01*s.GradX(x0, y0+1) + w11*s.GradX(x0+1, y0+1)
	gy := w00*s.GradY(x0, y0) + w10*s.GradY(x0+1, y0) + w01*s.GradY(x0, y0+1) + w11*s.GradY(x0+1, y0+1)
	return gx, gy, nil
}

// keysKernel is the cubic convolution kernel with a = -0.5.
func keysKernel(t float64) float64 {
	const a = -0.5
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (a+2)*t*t*t - (a+3)*t*t + 1
	case t < 2:
		return a*t*t*t - 5*a*t*t + 8*a*t - 4*a
	default:
		return 0
	}
}
