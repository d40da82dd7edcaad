// Package trajectory loads per-point expected-path files and answers the
// initial-guess and path-deviation queries made during frame
// initialization. A path file holds one displacement sample per line,
// "u v" or "u v theta", describing where the point is expected to travel
// over the sequence. Samples are immutable once loaded; searches are
// backed by a k-d tree over (u, v, theta).
package trajectory

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// DefaultNeighbors is the number of path samples evaluated by a local
// search around the previous solution.
const DefaultNeighbors = 6

// Sample is one expected-path entry.
type Sample struct {
	U     float64
	V     float64
	Theta float64
}

// Eval scores a candidate sample, lower is better. Callers typically bind
// this to a correlation mismatch evaluation against the current deformed
// image.
type Eval func(Sample) float64

// Path is an immutable set of expected-path samples for one point.
type Path struct {
	samples []Sample
	tree    *kdtree.Tree
}

// Load reads a path file. Blank lines are skipped; every other line must
// hold two or three whitespace-separated numbers.
func Load(path string) (*Path, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open trajectory file %s", path)
	}
	defer f.Close()

	var samples []Sample
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 && len(fields) != 3 {
			return nil, errors.Errorf("Can't read trajectory line %d of %s: want 2 or 3 values, got %d",
				lineNo, path, len(fields))
		}
		var vals [3]float64
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Can't parse trajectory value %q on line %d of %s",
					field, lineNo, path)
			}
			vals[i] = v
		}
		samples = append(samples, Sample{U: vals[0], V: vals[1], Theta: vals[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "Can't read trajectory file %s", path)
	}

	p, err := FromSamples(samples)
	return p, errors.Wrapf(err, "Can't build trajectory from %s", path)
}

// FromSamples builds a path from in-memory samples.
func FromSamples(samples []Sample) (*Path, error) {
	if len(samples) == 0 {
		return nil, errors.New("Can't build trajectory with no samples")
	}
	owned := make([]Sample, len(samples))
	copy(owned, samples)

	pts := make(kdtree.Points, len(owned))
	for i, s := range owned {
		pts[i] = kdtree.Point{s.U, s.V, s.Theta}
	}
	return &Path{samples: owned, tree: kdtree.New(pts, false)}, nil
}

// Len returns the number of samples.
func (p *Path) Len() int { return len(p.samples) }

// At returns sample i.
func (p *Path) At(i int) Sample { return p.samples[i] }

// GlobalSearch evaluates every sample and returns the best one with its
// score. Used on the first frame and after a failed frame, when the
// previous solution says nothing about where the point is.
func (p *Path) GlobalSearch(eval Eval) (Sample, float64) {
	best := p.samples[0]
	bestScore := eval(best)
	for _, s := range p.samples[1:] {
		if score := eval(s); score < bestScore {
			best, bestScore = s, score
		}
	}
	return best, bestScore
}

// LocalSearch evaluates only the k samples nearest to the previous
// solution and returns the best with its score. Falls back to a global
// search when k covers the whole path.
func (p *Path) LocalSearch(u, v, theta float64, k int, eval Eval) (Sample, float64) {
	if k >= len(p.samples) {
		return p.GlobalSearch(eval)
	}
	keep := kdtree.NewNKeeper(k)
	p.tree.NearestSet(keep, kdtree.Point{u, v, theta})

	var best Sample
	bestScore := math.Inf(1)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		pt := cd.Comparable.(kdtree.Point)
		s := Sample{U: pt[0], V: pt[1], Theta: pt[2]}
		if score := eval(s); score < bestScore {
			best, bestScore = s, score
		}
	}
	return best, bestScore
}

// ClosestDistance returns the Euclidean distance in (u, v, theta) from
// the given solution to the nearest path sample. The path-deviation gate
// compares it against the configured threshold.
func (p *Path) ClosestDistance(u, v, theta float64) float64 {
	c, _ := p.tree.Nearest(kdtree.Point{u, v, theta})
	pt := c.(kdtree.Point)
	du := pt[0] - u
	dv := pt[1] - v
	dt := pt[2] - theta
	return math.Sqrt(du*du + dv*dv + dt*dt)
}
