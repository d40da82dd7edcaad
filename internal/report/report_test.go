package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/speckle/internal/engine"
	"github.com/dyluth/speckle/pkg/subset"
)

// reportAnalysis builds three points with seeded solutions so rows can
// be written without running a frame.
func reportAnalysis(t *testing.T) *engine.Analysis {
	t.Helper()
	opts := engine.DefaultOptions(engine.ModeGeneric)
	opts.NewObjective = func(*subset.Subset) engine.Objective { return nil }
	a, err := engine.New(opts, engine.Setup{
		Points: []engine.PointDef{
			{X: 20, Y: 20, Size: 15},
			{X: 40, Y: 20, Size: 15},
			{X: 60, Y: 20, Size: 15},
		},
		Seeds: map[int]subset.Deformation{
			0: {U: 1.5},
			1: {U: -0.25},
			2: {U: 3},
		},
	})
	require.NoError(t, err)
	return a
}

func TestSingleFileLayoutAppendsFrames(t *testing.T) {
	a := reportAnalysis(t)
	dir := t.TempDir()

	w, err := NewWriter(Spec{Dir: dir, Fields: []string{"COORDINATE_X", "DISPLACEMENT_X"}}, a)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0))
	require.NoError(t, w.WriteFrame(1))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "speckle_solution.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 9)
	assert.Contains(t, lines[0], a.RunID())
	assert.Equal(t, "# points: 3", lines[1])
	assert.Equal(t, "FRAME,POINT_ID,COORDINATE_X,DISPLACEMENT_X", lines[2])
	assert.Equal(t, "0,0,20,1.5", lines[3])
	assert.Equal(t, "0,1,40,-0.25", lines[4])
	assert.Equal(t, "1,2,60,3", lines[8])
}

func TestFilePerFrameLayoutNamesFiles(t *testing.T) {
	a := reportAnalysis(t)
	dir := t.TempDir()

	w, err := NewWriter(Spec{Dir: dir, Layout: LayoutFilePerFrame, Fields: []string{"DISPLACEMENT_X"}}, a)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0))
	require.NoError(t, w.WriteFrame(7))

	data, err := os.ReadFile(filepath.Join(dir, "speckle_solution_0007.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "# frame: 7", lines[1])
	assert.Equal(t, "POINT_ID,DISPLACEMENT_X", lines[3])
	assert.Equal(t, "1,-0.25", lines[5])

	_, err = os.Stat(filepath.Join(dir, "speckle_solution_0000.txt"))
	assert.NoError(t, err)
}

func TestFilePerPointLayoutAccumulates(t *testing.T) {
	a := reportAnalysis(t)
	dir := t.TempDir()

	w, err := NewWriter(Spec{Dir: dir, Layout: LayoutFilePerPoint, Fields: []string{"DISPLACEMENT_X"}}, a)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0))
	require.NoError(t, w.WriteFrame(1))

	data, err := os.ReadFile(filepath.Join(dir, "speckle_solution_pt_0001.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "# point: 1", lines[1])
	assert.Equal(t, "FRAME,DISPLACEMENT_X", lines[2])
	assert.Equal(t, "0,-0.25", lines[3])
	assert.Equal(t, "1,-0.25", lines[4])
}

func TestCustomDelimiter(t *testing.T) {
	a := reportAnalysis(t)
	dir := t.TempDir()

	w, err := NewWriter(Spec{Dir: dir, Delimiter: " ", Fields: []string{"GAMMA"}}, a)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "speckle_solution.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "FRAME POINT_ID GAMMA", lines[2])
	assert.Equal(t, "0 0 -1", lines[3])
}

func TestUnknownFieldRejected(t *testing.T) {
	a := reportAnalysis(t)

	_, err := NewWriter(Spec{Dir: t.TempDir(), Fields: []string{"WIBBLE"}}, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output field "WIBBLE"`)
	assert.Contains(t, err.Error(), "DISPLACEMENT_X")
}

func TestNoFieldsRejected(t *testing.T) {
	a := reportAnalysis(t)

	_, err := NewWriter(Spec{Dir: t.TempDir()}, a)
	assert.ErrorContains(t, err, "no output fields requested")
}

type fakeDerived struct{}

func (fakeDerived) Initialize(*engine.Analysis) error { return nil }

func (fakeDerived) PreExecute() {}

func (fakeDerived) Execute() {}

func (fakeDerived) FieldNames() []string { return []string{"TWICE_ID"} }

func (fakeDerived) Value(id int, name string) (float64, error) { return float64(2 * id), nil }

func TestPostProcessorFieldsReportable(t *testing.T) {
	a := reportAnalysis(t)
	require.NoError(t, a.AddPostProcessor(fakeDerived{}))
	dir := t.TempDir()

	w, err := NewWriter(Spec{Dir: dir, Fields: []string{"TWICE_ID", "SIGMA"}}, a)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "speckle_solution.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "FRAME,POINT_ID,TWICE_ID,SIGMA", lines[2])
	assert.Equal(t, "0,2,4,0", lines[5])
}
