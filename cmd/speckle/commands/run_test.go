package commands

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/speckle/pkg/image"
)

// writeTestImage renders a deterministic textured pattern to disk
func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img, err := image.NewScalar(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, float64((x*7+y*13)%251))
		}
	}
	require.NoError(t, image.WritePNG(img, path))
}

func TestRunCommand_SolvesStaticFrame(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestImage(t, filepath.Join(tmpDir, "ref.png"), 80, 80)
	writeTestImage(t, filepath.Join(tmpDir, "def.png"), 80, 80)

	doc := `version: "1"
analysis:
  mode: generic
images:
  reference: ` + filepath.Join(tmpDir, "ref.png") + `
  deformed:
    - ` + filepath.Join(tmpDir, "def.png") + `
points:
  list:
    - x: 40
      y: 40
      size: 21
      seed: {u: 0, v: 0}
output:
  directory: ` + filepath.Join(tmpDir, "out") + `
  fields: [DISPLACEMENT_X, VSG_STRAIN_XX, STATUS_FLAG]
  strain_window: 25
`
	configPath := filepath.Join(tmpDir, "speckle.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(doc), 0644))

	runConfigPath = configPath
	defer func() { runConfigPath = "speckle.yml" }()

	require.NoError(t, runAnalysis(nil, nil))

	data, err := os.ReadFile(filepath.Join(tmpDir, "out", "speckle_solution.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "FRAME,POINT_ID,DISPLACEMENT_X,VSG_STRAIN_XX,STATUS_FLAG", lines[2])

	cells := strings.Split(lines[3], ",")
	require.Len(t, cells, 5)
	u, err := strconv.ParseFloat(cells[2], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0, u, 1e-6, "identical frames should not move the point")
	// a lone point has no gauge neighborhood, so strain stays zero
	assert.Equal(t, "0", cells[3])
	assert.Equal(t, "3", cells[4], "expected the correlation-successful status")
}

func TestRunCommand_MissingConfig(t *testing.T) {
	runConfigPath = filepath.Join(t.TempDir(), "missing.yml")
	defer func() { runConfigPath = "speckle.yml" }()

	err := runAnalysis(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or invalid")
}
