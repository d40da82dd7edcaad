package engine

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/dyluth/speckle/pkg/image"
	"github.com/dyluth/speckle/pkg/subset"
)

// dumpDeformedSubset rasterizes the subset at its solved position onto
// a mid-gray canvas, usable pixels white and masked pixels black, and
// writes the result under the dump directory keyed by frame and point.
func (a *Analysis) dumpDeformedSubset(id int, d subset.Deformation) {
	if err := os.MkdirAll(a.opts.DumpDir, 0o755); err != nil {
		log.Printf("[Engine] Can't create dump directory %s: %v", a.opts.DumpDir, err)
		return
	}
	canvas, err := image.NewScalar(a.defImg.Width(), a.defImg.Height())
	if err != nil {
		return
	}
	for y := 0; y < canvas.Height(); y++ {
		for x := 0; x < canvas.Width(); x++ {
			canvas.Set(x, y, 128)
		}
	}
	s := a.subsets[id]
	cx, cy := s.Centroid()
	for i := 0; i < s.Size(); i++ {
		p := s.Pixel(i)
		x, y := d.Map(cx, cy, float64(p.X)-cx, float64(p.Y)-cy)
		v := 255.0
		if !s.Usable(i) {
			v = 0
		}
		canvas.Set(int(math.Round(x)), int(math.Round(y)), v)
	}
	name := filepath.Join(a.opts.DumpDir, fmt.Sprintf("subset_%04d_%03d.png", a.frame, id))
	if err := image.WritePNG(canvas, name); err != nil {
		log.Printf("[Engine] Can't write %s: %v", name, err)
	}
}
