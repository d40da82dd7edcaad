package image

import (
	stdimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// Load decodes an image file into scalar intensities. The format is
// chosen by extension: .tif/.tiff, .png, .jpg/.jpeg.
func Load(path string) (*Scalar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open image file %s", path)
	}
	defer f.Close()

	var decoded stdimage.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		decoded, err = tiff.Decode(f)
	case ".png":
		decoded, err = png.Decode(f)
	case ".jpg", ".jpeg":
		decoded, err = jpeg.Decode(f)
	default:
		return nil, errors.Errorf("unsupported image format %q (want .tif, .tiff, .png, .jpg or .jpeg)", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "Can't decode image file %s", path)
	}
	return FromImage(decoded)
}

// WritePNG writes the image as an 8-bit grayscale PNG, clamping
// intensities to 0..255. Used for debug output.
func WritePNG(s *Scalar, path string) error {
	out := stdimage.NewGray(stdimage.Rect(0, 0, s.w, s.h))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			v := s.At(x, y)
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Can't create image file %s", path)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return errors.Wrapf(err, "Can't encode PNG %s", path)
	}
	return nil
}
