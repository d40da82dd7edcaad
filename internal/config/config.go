package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/speckle/internal/engine"
	"github.com/dyluth/speckle/internal/objective"
	"github.com/dyluth/speckle/internal/report"
	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/motion"
	"github.com/dyluth/speckle/pkg/subset"
)

// File represents the top-level speckle.yml configuration
type File struct {
	Version  string         `yaml:"version"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Images   ImagesConfig   `yaml:"images"`
	Points   PointsConfig   `yaml:"points"`
	Output   OutputConfig   `yaml:"output,omitempty"`
}

// AnalysisConfig selects the analysis mode and carries the flat
// parameter overrides applied on top of the mode's defaults
type AnalysisConfig struct {
	Mode       string               `yaml:"mode"` // Required: "tracking" or "generic"
	Parameters map[string]yaml.Node `yaml:"parameters,omitempty"`
}

// ImagesConfig names the reference image and the deformed sequence
type ImagesConfig struct {
	Reference string   `yaml:"reference"`
	Deformed  []string `yaml:"deformed"`
}

// PointsConfig defines the point set, either as a regular grid or as an
// explicit list with per-point side tables. Exactly one must be given.
type PointsConfig struct {
	Grid *GridConfig   `yaml:"grid,omitempty"`
	List []PointConfig `yaml:"list,omitempty"`
}

// GridConfig lays points on a regular grid over the reference image
type GridConfig struct {
	StepX      int `yaml:"step_x"`
	StepY      int `yaml:"step_y"`
	SubsetSize int `yaml:"subset_size"`
}

// PointConfig defines one point. Ids are list positions, so neighbor,
// obstructed_by and motion window references use list indices.
type PointConfig struct {
	X      float64    `yaml:"x"`
	Y      float64    `yaml:"y"`
	Size   int        `yaml:"size,omitempty"`   // Square subset size; ignored when shapes are given
	Shapes []ShapeDef `yaml:"shapes,omitempty"` // Conformal subset geometry

	Neighbor     *int          `yaml:"neighbor,omitempty"` // Seed-chain parent; omit to mark a seed
	ObstructedBy []int         `yaml:"obstructed_by,omitempty"`
	MotionWindow *WindowConfig `yaml:"motion_window,omitempty"`
	PathFile     string        `yaml:"path_file,omitempty"`
	SkipSolve    bool          `yaml:"skip_solve,omitempty"`
	Seed         *SeedConfig   `yaml:"seed,omitempty"`
}

// ShapeDef defines one conformal shape; exactly one member must be set
type ShapeDef struct {
	Circle    *CircleDef  `yaml:"circle,omitempty"`
	Rectangle *RectDef    `yaml:"rectangle,omitempty"`
	Polygon   *PolygonDef `yaml:"polygon,omitempty"`
}

// CircleDef is a circular subset region
type CircleDef struct {
	CenterX float64 `yaml:"center_x"`
	CenterY float64 `yaml:"center_y"`
	Radius  float64 `yaml:"radius"`
}

// RectDef is an axis-aligned rectangular subset region
type RectDef struct {
	CenterX float64 `yaml:"center_x"`
	CenterY float64 `yaml:"center_y"`
	Width   float64 `yaml:"width"`
	Height  float64 `yaml:"height"`
}

// PolygonDef is a simple polygon subset region
type PolygonDef struct {
	Vertices [][2]float64 `yaml:"vertices"`
}

// WindowConfig is a motion-test region. Omitting use_id means the point
// evaluates its own window.
type WindowConfig struct {
	StartX int     `yaml:"start_x"`
	StartY int     `yaml:"start_y"`
	EndX   int     `yaml:"end_x"`
	EndY   int     `yaml:"end_y"`
	Tol    float64 `yaml:"tolerance,omitempty"`
	UseID  *int    `yaml:"use_id,omitempty"`
}

// SeedConfig is an externally known starting solution for one point
type SeedConfig struct {
	U     float64 `yaml:"u"`
	V     float64 `yaml:"v"`
	Theta float64 `yaml:"theta,omitempty"`
	Ex    float64 `yaml:"ex,omitempty"`
	Ey    float64 `yaml:"ey,omitempty"`
	Gxy   float64 `yaml:"gxy,omitempty"`
}

// OutputConfig shapes the text report and optional strain gauge
type OutputConfig struct {
	Directory    string   `yaml:"directory,omitempty"`
	Prefix       string   `yaml:"prefix,omitempty"`
	Layout       string   `yaml:"layout,omitempty"` // "single", "per_frame" or "per_point"
	Delimiter    string   `yaml:"delimiter,omitempty"`
	Fields       []string `yaml:"fields,omitempty"`
	StrainWindow float64  `yaml:"strain_window,omitempty"` // Gauge diameter in px; 0 disables the gauge
}

// defaultOutputFields is the report column set used when none is given
var defaultOutputFields = []string{
	string(field.CoordinateX),
	string(field.CoordinateY),
	string(field.DisplacementX),
	string(field.DisplacementY),
	string(field.Sigma),
	string(field.Gamma),
	string(field.StatusFlag),
}

// Load reads and validates speckle.yml from the specified path
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &f, nil
}

// Validate performs strict validation on the configuration. Everything
// that can fail without the images loaded fails here, before any frame
// executes.
func (f *File) Validate() error {
	// Required: version
	if f.Version != "1" {
		return fmt.Errorf("unsupported version: %s (expected: 1)", f.Version)
	}

	mode, err := parseMode(f.Analysis.Mode)
	if err != nil {
		return err
	}
	// Dry-run the parameter overlay so unrecognized names fail at load
	opts := engine.DefaultOptions(mode)
	if err := applyParameters(&opts, f.Analysis.Parameters); err != nil {
		return err
	}

	if f.Images.Reference == "" {
		return fmt.Errorf("images.reference is required")
	}
	if len(f.Images.Deformed) == 0 {
		return fmt.Errorf("at least one deformed image is required")
	}

	if (f.Points.Grid == nil) == (len(f.Points.List) == 0) {
		return fmt.Errorf("exactly one of points.grid or points.list is required")
	}
	for i, pc := range f.Points.List {
		for _, sd := range pc.Shapes {
			if _, err := sd.build(); err != nil {
				return fmt.Errorf("point %d: %w", i, err)
			}
		}
	}

	if _, err := parseLayout(f.Output.Layout); err != nil {
		return err
	}
	if f.Output.StrainWindow < 0 {
		return fmt.Errorf("output.strain_window must not be negative, got %g", f.Output.StrainWindow)
	}
	return nil
}

// EngineOptions builds the engine options: mode defaults, then the flat
// parameter overrides, then the correlation objective factory.
func (f *File) EngineOptions() (engine.Options, error) {
	mode, err := parseMode(f.Analysis.Mode)
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.DefaultOptions(mode)
	if err := applyParameters(&opts, f.Analysis.Parameters); err != nil {
		return engine.Options{}, err
	}
	opts.NewObjective = func(s *subset.Subset) engine.Objective { return objective.New(s) }
	return opts, nil
}

// EngineSetup translates the point section into engine point definitions
// and side tables. The reference image dimensions are needed for grid
// layouts.
func (f *File) EngineSetup(width, height int) (engine.Setup, error) {
	if f.Points.Grid != nil {
		g := f.Points.Grid
		pts, err := engine.GridPoints(width, height, g.StepX, g.StepY, g.SubsetSize)
		if err != nil {
			return engine.Setup{}, err
		}
		return engine.Setup{Points: pts}, nil
	}

	var setup engine.Setup
	neighbors := make([]int, len(f.Points.List))
	haveNeighbors := false
	for i, pc := range f.Points.List {
		pd := engine.PointDef{X: pc.X, Y: pc.Y, Size: pc.Size}
		for _, sd := range pc.Shapes {
			shape, err := sd.build()
			if err != nil {
				return engine.Setup{}, fmt.Errorf("point %d: %w", i, err)
			}
			pd.Shapes = append(pd.Shapes, shape)
		}
		setup.Points = append(setup.Points, pd)

		neighbors[i] = field.NoNeighbor
		if pc.Neighbor != nil {
			neighbors[i] = *pc.Neighbor
			haveNeighbors = true
		}
		if len(pc.ObstructedBy) > 0 {
			if setup.Obstructions == nil {
				setup.Obstructions = make(map[int][]int)
			}
			setup.Obstructions[i] = pc.ObstructedBy
		}
		if pc.MotionWindow != nil {
			if setup.MotionWindows == nil {
				setup.MotionWindows = make(map[int]motion.Window)
			}
			setup.MotionWindows[i] = pc.MotionWindow.window()
		}
		if pc.PathFile != "" {
			if setup.PathFiles == nil {
				setup.PathFiles = make(map[int]string)
			}
			setup.PathFiles[i] = pc.PathFile
		}
		if pc.SkipSolve {
			if setup.SkipSolve == nil {
				setup.SkipSolve = make(map[int]bool)
			}
			setup.SkipSolve[i] = true
		}
		if pc.Seed != nil {
			if setup.Seeds == nil {
				setup.Seeds = make(map[int]subset.Deformation)
			}
			setup.Seeds[i] = subset.Deformation{
				U: pc.Seed.U, V: pc.Seed.V, Theta: pc.Seed.Theta,
				Ex: pc.Seed.Ex, Ey: pc.Seed.Ey, Gxy: pc.Seed.Gxy,
			}
		}
	}
	if haveNeighbors {
		setup.Neighbors = neighbors
	}
	return setup, nil
}

// ReportSpec translates the output section, filling in default columns
// when none are requested.
func (f *File) ReportSpec() (report.Spec, error) {
	layout, err := parseLayout(f.Output.Layout)
	if err != nil {
		return report.Spec{}, err
	}
	fields := f.Output.Fields
	if len(fields) == 0 {
		fields = defaultOutputFields
	}
	return report.Spec{
		Dir:       f.Output.Directory,
		Prefix:    f.Output.Prefix,
		Fields:    fields,
		Delimiter: f.Output.Delimiter,
		Layout:    layout,
	}, nil
}

func (w *WindowConfig) window() motion.Window {
	win := motion.Window{
		StartX: w.StartX, StartY: w.StartY,
		EndX: w.EndX, EndY: w.EndY,
		Tol:   w.Tol,
		UseID: motion.OwnWindow,
	}
	if w.UseID != nil {
		win.UseID = *w.UseID
	}
	return win
}

func (s *ShapeDef) build() (subset.Shape, error) {
	defined := 0
	if s.Circle != nil {
		defined++
	}
	if s.Rectangle != nil {
		defined++
	}
	if s.Polygon != nil {
		defined++
	}
	if defined != 1 {
		return nil, fmt.Errorf("each shape needs exactly one of circle, rectangle or polygon")
	}
	switch {
	case s.Circle != nil:
		return subset.Circle{CenterX: s.Circle.CenterX, CenterY: s.Circle.CenterY, Radius: s.Circle.Radius}, nil
	case s.Rectangle != nil:
		return subset.Rectangle{CenterX: s.Rectangle.CenterX, CenterY: s.Rectangle.CenterY, W: s.Rectangle.Width, H: s.Rectangle.Height}, nil
	default:
		p := subset.Polygon{Vertices: s.Polygon.Vertices}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
}
