// Package engine drives the correlation run: it owns the field stores and
// worker assignments, steps every point through the per-frame initialize,
// optimize, validate, commit pipeline, and keeps the cross-frame helper
// state (objectives, motion detectors, displacement predictors, path
// initializers) that tracking analyses depend on.
package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/speckle/internal/objective"
	"github.com/dyluth/speckle/internal/partition"
	"github.com/dyluth/speckle/internal/trajectory"
	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/image"
	"github.com/dyluth/speckle/pkg/motion"
	"github.com/dyluth/speckle/pkg/subset"
)

// Objective is the correlation capability the engine drives for one
// point: mismatch and uncertainty evaluation plus the two refinement
// methods. Implementations hold the subset geometry and are rebound to
// the deformed image every frame.
type Objective interface {
	Subset() *subset.Subset
	SetDeformedImage(*image.Scalar)
	Gamma(subset.Deformation) (float64, error)
	Sigma(subset.Deformation) float64
	UpdateFast(*subset.Deformation) (objective.Update, error)
	UpdateRobust(*subset.Deformation) (objective.Update, error)
}

// PointDef places one analysis point. Shapes, when present, define a
// conformal subset; otherwise a square subset of the given size is used.
type PointDef struct {
	X, Y   float64
	Size   int
	Shapes []subset.Shape
}

// Setup carries the point definitions and the sparse per-point side
// tables for an analysis.
type Setup struct {
	Points []PointDef

	// Obstructions maps a point id to the ids that can occlude it.
	Obstructions map[int][]int
	// Neighbors holds, per point, the id seeding its initial guess, or
	// field.NoNeighbor for a seed point. Empty disables neighbor
	// initialization.
	Neighbors []int
	// MotionWindows configures the optional per-point motion gate.
	MotionWindows map[int]motion.Window
	// PathFiles names an expected-trajectory file per point.
	PathFiles map[int]string
	// SkipSolve marks points whose solve is skipped after the guess.
	SkipSolve map[int]bool
	// Seeds holds externally known starting solutions, written into the
	// fields before the first frame.
	Seeds map[int]subset.Deformation
}

// Analysis is one correlation run over a point set. Build it once with
// New, bind the reference image, then per frame bind the deformed image
// and call ExecuteFrame.
type Analysis struct {
	id   string
	opts Options

	n       int
	subsets []*subset.Subset

	all      *field.Store
	parts    []*field.Store
	distMap  *field.Map
	seedMap  *field.Map
	active   *field.Map
	localIdx []int

	frame   int
	refImg  *image.Scalar
	defImg  *image.Scalar
	prevImg *image.Scalar

	phaseDu float64
	phaseDv float64

	obstructions  map[int][]int
	motionWindows map[int]motion.Window
	pathFiles     map[int]string
	skipSolve     map[int]bool

	// Per-worker arenas for lazily created cross-frame helpers. Each
	// worker only touches its own maps, keyed by global point id.
	objectives []map[int]Objective
	detectors  []map[int]*motion.WindowDetector
	predictors []map[int]*motion.Predictor
	paths      []map[int]*trajectory.Path

	postProcessors []PostProcessor
}

// New validates the options and setup and builds the analysis: subsets,
// field store, seed values and both worker assignments.
func New(opts Options, setup Setup) (*Analysis, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	n := len(setup.Points)
	if n == 0 {
		return nil, fmt.Errorf("analysis requires at least one point")
	}

	subsets := make([]*subset.Subset, n)
	for i, p := range setup.Points {
		var s *subset.Subset
		var err error
		if len(p.Shapes) > 0 {
			s, err = subset.NewConformal(p.X, p.Y, p.Shapes...)
		} else {
			s, err = subset.NewSquare(p.X, p.Y, p.Size)
		}
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		subsets[i] = s
	}

	if err := validateSetup(n, setup); err != nil {
		return nil, err
	}

	all := field.NewStore(n)
	for i, p := range setup.Points {
		all.SetValue(i, field.CoordinateX, p.X)
		all.SetValue(i, field.CoordinateY, p.Y)
	}
	for i, nid := range setup.Neighbors {
		all.SetValue(i, field.NeighborID, float64(nid))
	}
	for id, d := range setup.Seeds {
		all.SetValue(id, field.DisplacementX, d.U)
		all.SetValue(id, field.DisplacementY, d.V)
		all.SetValue(id, field.RotationZ, d.Theta)
		all.SetValue(id, field.NormalStrainX, d.Ex)
		all.SetValue(id, field.NormalStrainY, d.Ey)
		all.SetValue(id, field.ShearStrainXY, d.Gxy)
		// a seed counts as solved so field-value guesses accept it
		all.SetValue(id, field.Sigma, 0)
	}

	distMap, err := partition.Dependency(n, opts.Workers, setup.Obstructions)
	if err != nil {
		return nil, fmt.Errorf("dependency partition: %w", err)
	}
	seedMap, err := partition.Seed(n, opts.Workers, setup.Neighbors, setup.Obstructions)
	if err != nil {
		return nil, fmt.Errorf("seed partition: %w", err)
	}

	a := &Analysis{
		id:            uuid.New().String(),
		opts:          opts,
		n:             n,
		subsets:       subsets,
		all:           all,
		distMap:       distMap,
		seedMap:       seedMap,
		obstructions:  setup.Obstructions,
		motionWindows: setup.MotionWindows,
		pathFiles:     setup.PathFiles,
		skipSolve:     setup.SkipSolve,
		objectives:    make([]map[int]Objective, opts.Workers),
		detectors:     make([]map[int]*motion.WindowDetector, opts.Workers),
		predictors:    make([]map[int]*motion.Predictor, opts.Workers),
		paths:         make([]map[int]*trajectory.Path, opts.Workers),
	}
	for w := 0; w < opts.Workers; w++ {
		a.objectives[w] = make(map[int]Objective)
		a.detectors[w] = make(map[int]*motion.WindowDetector)
		a.predictors[w] = make(map[int]*motion.Predictor)
		a.paths[w] = make(map[int]*trajectory.Path)
	}

	a.logEvent("analysis_created", map[string]interface{}{
		"points":         n,
		"workers":        opts.Workers,
		"mode":           opts.Mode.String(),
		"initialization": opts.Initialization.String(),
		"optimization":   opts.Optimization.String(),
	})
	return a, nil
}

func validateSetup(n int, setup Setup) error {
	inRange := func(id int) bool { return id >= 0 && id < n }

	for id, blockers := range setup.Obstructions {
		if !inRange(id) {
			return fmt.Errorf("obstruction entry for unknown point %d", id)
		}
		for _, b := range blockers {
			if !inRange(b) {
				return fmt.Errorf("point %d lists unknown blocker %d", id, b)
			}
		}
	}
	if len(setup.Neighbors) > 0 {
		if len(setup.Neighbors) != n {
			return fmt.Errorf("neighbor list holds %d entries for %d points", len(setup.Neighbors), n)
		}
		for id, nid := range setup.Neighbors {
			if nid != field.NoNeighbor && !inRange(nid) {
				return fmt.Errorf("point %d names unknown neighbor %d", id, nid)
			}
		}
	}
	for id, w := range setup.MotionWindows {
		if !inRange(id) {
			return fmt.Errorf("motion window for unknown point %d", id)
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("motion window for point %d: %w", id, err)
		}
		if w.UseID != motion.OwnWindow {
			if !inRange(w.UseID) {
				return fmt.Errorf("point %d reuses motion window of unknown point %d", id, w.UseID)
			}
			if _, ok := setup.MotionWindows[w.UseID]; !ok {
				return fmt.Errorf("point %d reuses motion window of point %d which has none", id, w.UseID)
			}
		}
	}
	for id := range setup.PathFiles {
		if !inRange(id) {
			return fmt.Errorf("path file for unknown point %d", id)
		}
	}
	for id := range setup.SkipSolve {
		if !inRange(id) {
			return fmt.Errorf("skip-solve flag for unknown point %d", id)
		}
	}
	for id := range setup.Seeds {
		if !inRange(id) {
			return fmt.Errorf("seed for unknown point %d", id)
		}
	}
	return nil
}

// GridPoints lays points on a regular grid, inset one subset dimension
// from the image border, stepping by (stepX, stepY). Point ids run
// row-major.
func GridPoints(width, height, stepX, stepY, size int) ([]PointDef, error) {
	if stepX <= 0 || stepY <= 0 {
		return nil, fmt.Errorf("grid steps must be positive, got (%d, %d)", stepX, stepY)
	}
	trimmedW := width - 2*size
	trimmedH := height - 2*size
	if trimmedW <= 0 || trimmedH <= 0 {
		return nil, fmt.Errorf("%dx%d image is too small for a grid of size-%d subsets", width, height, size)
	}
	numX := trimmedW/stepX + 1
	numY := trimmedH/stepY + 1

	points := make([]PointDef, 0, numX*numY)
	for i := 0; i < numX*numY; i++ {
		yIt := i / numX
		xIt := i % numX
		points = append(points, PointDef{
			X:    float64(size + xIt*stepX - 1),
			Y:    float64(size + yIt*stepY - 1),
			Size: size,
		})
	}
	return points, nil
}

// SetReferenceImage binds the reference image and samples every subset's
// reference intensities from it.
func (a *Analysis) SetReferenceImage(img *image.Scalar) error {
	if a.defImg != nil && (img.Width() != a.defImg.Width() || img.Height() != a.defImg.Height()) {
		return fmt.Errorf("reference image is %dx%d but deformed image is %dx%d",
			img.Width(), img.Height(), a.defImg.Width(), a.defImg.Height())
	}
	for id, s := range a.subsets {
		if err := s.InitializeRef(img); err != nil {
			return fmt.Errorf("point %d: %w", id, err)
		}
	}
	a.refImg = img
	return nil
}

// SetDeformedImage binds the frame's deformed image. Its dimensions must
// match the reference image.
func (a *Analysis) SetDeformedImage(img *image.Scalar) error {
	if a.refImg != nil && (img.Width() != a.refImg.Width() || img.Height() != a.refImg.Height()) {
		return fmt.Errorf("deformed image is %dx%d but reference image is %dx%d",
			img.Width(), img.Height(), a.refImg.Width(), a.refImg.Height())
	}
	a.defImg = img
	return nil
}

// logEvent emits a structured JSON log line for machine consumption.
func (a *Analysis) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["run_id"] = a.id

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
