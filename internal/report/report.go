// Package report renders solved fields as delimited text files, one row
// per point per frame. Columns can name engine fields or fields provided
// by a registered post-processor; everything is read back through the
// public accessors.
package report

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dyluth/speckle/internal/engine"
	"github.com/dyluth/speckle/pkg/field"
)

// Layout selects how rows are split across files.
type Layout int

const (
	// LayoutSingleFile appends every frame to one file, with the frame
	// index as the leading column.
	LayoutSingleFile Layout = iota
	// LayoutFilePerFrame writes one file per frame, named with a
	// zero-padded frame index.
	LayoutFilePerFrame
	// LayoutFilePerPoint accumulates one file per point, one row per
	// frame.
	LayoutFilePerPoint
)

// Spec describes the requested report output.
type Spec struct {
	// Dir is the output directory, created if missing. Defaults to ".".
	Dir string
	// Prefix names the output files. Defaults to "speckle_solution".
	Prefix string
	// Fields lists the engine or post-processor fields to emit, in
	// column order.
	Fields []string
	// Delimiter separates columns. Defaults to ",".
	Delimiter string
	Layout    Layout
}

type column struct {
	name string
	read func(id int) (float64, error)
}

// Writer emits one report per solved frame in the configured layout.
type Writer struct {
	spec Spec
	a    *engine.Analysis
	cols []column

	single     *os.File
	pointFresh map[int]bool
}

// NewWriter resolves the requested fields against the analysis and
// prepares the output directory. Unknown field names are rejected here,
// before any frame runs.
func NewWriter(spec Spec, a *engine.Analysis) (*Writer, error) {
	if spec.Dir == "" {
		spec.Dir = "."
	}
	if spec.Prefix == "" {
		spec.Prefix = "speckle_solution"
	}
	if spec.Delimiter == "" {
		spec.Delimiter = ","
	}
	if len(spec.Fields) == 0 {
		return nil, fmt.Errorf("no output fields requested")
	}

	w := &Writer{spec: spec, a: a, pointFresh: make(map[int]bool)}
	for _, name := range spec.Fields {
		col, ok := w.resolve(name)
		if !ok {
			return nil, fmt.Errorf("unknown output field %q (valid fields: %s)", name, strings.Join(w.validNames(), ", "))
		}
		w.cols = append(w.cols, col)
	}
	if err := os.MkdirAll(spec.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	log.Printf("[Report] Writing %d columns per point to %s", len(w.cols), spec.Dir)
	return w, nil
}

// WriteFrame emits the rows for one solved frame.
func (w *Writer) WriteFrame(frame int) error {
	switch w.spec.Layout {
	case LayoutFilePerFrame:
		return w.writeFrameFile(frame)
	case LayoutFilePerPoint:
		return w.writePointFiles(frame)
	default:
		return w.appendSingle(frame)
	}
}

// Close releases the single-file layout's handle. The other layouts
// close after each frame.
func (w *Writer) Close() error {
	if w.single == nil {
		return nil
	}
	err := w.single.Close()
	w.single = nil
	return err
}

func (w *Writer) appendSingle(frame int) error {
	if w.single == nil {
		path := filepath.Join(w.spec.Dir, w.spec.Prefix+".txt")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report %s: %w", path, err)
		}
		w.single = f
		fmt.Fprintf(f, "# run: %s\n", w.a.RunID())
		fmt.Fprintf(f, "# points: %d\n", w.a.NumPoints())
		if err := w.writeColumns(f, "FRAME", "POINT_ID"); err != nil {
			return err
		}
	}
	for id := 0; id < w.a.NumPoints(); id++ {
		if err := w.writeRow(w.single, id, strconv.Itoa(frame), strconv.Itoa(id)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeFrameFile(frame int) error {
	path := filepath.Join(w.spec.Dir, fmt.Sprintf("%s_%04d.txt", w.spec.Prefix, frame))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# run: %s\n", w.a.RunID())
	fmt.Fprintf(f, "# frame: %d\n", frame)
	fmt.Fprintf(f, "# points: %d\n", w.a.NumPoints())
	if err := w.writeColumns(f, "POINT_ID"); err != nil {
		return err
	}
	for id := 0; id < w.a.NumPoints(); id++ {
		if err := w.writeRow(f, id, strconv.Itoa(id)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePointFiles(frame int) error {
	for id := 0; id < w.a.NumPoints(); id++ {
		if err := w.writePointFile(frame, id); err != nil {
			return err
		}
	}
	return nil
}

// writePointFile truncates the point's file on its first frame so stale
// output from an earlier run never mixes with this one.
func (w *Writer) writePointFile(frame, id int) error {
	path := filepath.Join(w.spec.Dir, fmt.Sprintf("%s_pt_%04d.txt", w.spec.Prefix, id))
	var f *os.File
	var err error
	if w.pointFresh[id] {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	} else {
		f, err = os.Create(path)
	}
	if err != nil {
		return fmt.Errorf("open report %s: %w", path, err)
	}
	defer f.Close()

	if !w.pointFresh[id] {
		fmt.Fprintf(f, "# run: %s\n", w.a.RunID())
		fmt.Fprintf(f, "# point: %d\n", id)
		if err := w.writeColumns(f, "FRAME"); err != nil {
			return err
		}
		w.pointFresh[id] = true
	}
	return w.writeRow(f, id, strconv.Itoa(frame))
}

func (w *Writer) writeColumns(f io.Writer, leading ...string) error {
	cols := append([]string{}, leading...)
	for _, c := range w.cols {
		cols = append(cols, c.name)
	}
	_, err := fmt.Fprintln(f, strings.Join(cols, w.spec.Delimiter))
	return err
}

func (w *Writer) writeRow(f io.Writer, id int, leading ...string) error {
	cells := append([]string{}, leading...)
	for _, col := range w.cols {
		v, err := col.read(id)
		if err != nil {
			return fmt.Errorf("read %s for point %d: %w", col.name, id, err)
		}
		cells = append(cells, strconv.FormatFloat(v, 'g', -1, 64))
	}
	_, err := fmt.Fprintln(f, strings.Join(cells, w.spec.Delimiter))
	return err
}

// resolve binds a requested name to an engine field or a post-processor
// field, in that order.
func (w *Writer) resolve(name string) (column, bool) {
	for _, known := range field.Names() {
		if string(known) == name {
			fn := known
			return column{name: name, read: func(id int) (float64, error) {
				return w.a.FieldValue(id, fn)
			}}, true
		}
	}
	for _, pp := range w.a.PostProcessors() {
		for _, fn := range pp.FieldNames() {
			if fn == name {
				p := pp
				return column{name: name, read: func(id int) (float64, error) {
					return p.Value(id, name)
				}}, true
			}
		}
	}
	return column{}, false
}

func (w *Writer) validNames() []string {
	var names []string
	for _, n := range field.Names() {
		names = append(names, string(n))
	}
	for _, pp := range w.a.PostProcessors() {
		names = append(names, pp.FieldNames()...)
	}
	return names
}
