package image

import (
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
)

// PhaseCorrelate estimates the whole-image translation of b relative to a
// using the Fourier cross-power spectrum. The returned (du, dv) is the
// shift that best maps a onto b, refined to sub-pixel precision with a
// three-point parabola around the correlation peak.
func PhaseCorrelate(a, b *Scalar) (float64, float64, error) {
	if a.w != b.w || a.h != b.h {
		return 0, 0, errors.Errorf("phase correlation requires matching dimensions, got %dx%d and %dx%d",
			a.w, a.h, b.w, b.h)
	}

	fa := fft2(a)
	fb := fft2(b)

	// Normalized cross-power spectrum: conj(Fa)*Fb so a forward shift of
	// b produces a peak at a positive offset.
	const eps = 1e-12
	r := make([]complex128, len(fa))
	for i := range r {
		c := cmplx.Conj(fa[i]) * fb[i]
		mag := cmplx.Abs(c)
		if mag > eps {
			r[i] = c / complex(mag, 0)
		}
	}
	corr := ifft2(r, a.w, a.h)

	// Integer peak.
	px, py := 0, 0
	best := cmplx.Abs(corr[0])
	for y := 0; y < a.h; y++ {
		for x := 0; x < a.w; x++ {
			if v := cmplx.Abs(corr[y*a.w+x]); v > best {
				best = v
				px, py = x, y
			}
		}
	}

	du := signedShift(float64(px)+parabolicOffset(corr, a.w, a.h, px, py, true), a.w)
	dv := signedShift(float64(py)+parabolicOffset(corr, a.w, a.h, px, py, false), a.h)
	return du, dv, nil
}

// fft2 computes the unnormalized 2-D DFT of the image.
func fft2(s *Scalar) []complex128 {
	data := make([]complex128, s.w*s.h)
	for i, v := range s.pix {
		data[i] = complex(v, 0)
	}
	rowFFT := fourier.NewCmplxFFT(s.w)
	row := make([]complex128, s.w)
	for y := 0; y < s.h; y++ {
		copy(row, data[y*s.w:(y+1)*s.w])
		rowFFT.Coefficients(data[y*s.w:(y+1)*s.w], row)
	}
	colFFT := fourier.NewCmplxFFT(s.h)
	col := make([]complex128, s.h)
	out := make([]complex128, s.h)
	for x := 0; x < s.w; x++ {
		for y := 0; y < s.h; y++ {
			col[y] = data[y*s.w+x]
		}
		colFFT.Coefficients(out, col)
		for y := 0; y < s.h; y++ {
			data[y*s.w+x] = out[y]
		}
	}
	return data
}

// ifft2 computes the unnormalized inverse 2-D DFT. Scale does not matter
// to the peak search.
func ifft2(coeff []complex128, w, h int) []complex128 {
	data := make([]complex128, len(coeff))
	copy(data, coeff)
	rowFFT := fourier.NewCmplxFFT(w)
	row := make([]complex128, w)
	for y := 0; y < h; y++ {
		copy(row, data[y*w:(y+1)*w])
		rowFFT.Sequence(data[y*w:(y+1)*w], row)
	}
	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	out := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		colFFT.Sequence(out, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = out[y]
		}
	}
	return data
}

// parabolicOffset fits a parabola through the peak and its two circular
// neighbors along one axis and returns the fractional offset in [-0.5,
// 0.5].
func parabolicOffset(corr []complex128, w, h, px, py int, alongX bool) float64 {
	sample := func(dx, dy int) float64 {
		x := (px + dx + w) % w
		y := (py + dy + h) % h
		return cmplx.Abs(corr[y*w+x])
	}
	var vm, v0, vp float64
	if alongX {
		vm, v0, vp = sample(-1, 0), sample(0, 0), sample(1, 0)
	} else {
		vm, v0, vp = sample(0, -1), sample(0, 0), sample(0, 1)
	}
	den := vm - 2*v0 + vp
	if den == 0 {
		return 0
	}
	off := 0.5 * (vm - vp) / den
	if off > 0.5 {
		off = 0.5
	}
	if off < -0.5 {
		off = -0.5
	}
	return off
}

// signedShift wraps a peak position into a signed displacement.
func signedShift(pos float64, n int) float64 {
	if pos > float64(n)/2 {
		return pos - float64(n)
	}
	return pos
}
