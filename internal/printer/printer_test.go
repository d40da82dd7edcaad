package printer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Analysis failed", "The reference image could not be read", []string{})
		require.Error(t, err)
		require.Equal(t, "Analysis failed", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Analysis failed", "Explanation", []string{"Check the image path"})
		require.Error(t, err)
		require.Equal(t, "Analysis failed", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Analysis failed", "Explanation", []string{
			"Check the image path",
			"Run speckle init for a starter config",
		})
		require.Error(t, err)
		require.Equal(t, "Analysis failed", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		context := map[string]string{
			"Config": "speckle.yml",
			"Frame":  "3",
		}
		err := ErrorWithContext("Frame failed", "Explanation", context, []string{})
		require.Error(t, err)
		require.Equal(t, "Frame failed", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		context := map[string]string{"Config": "speckle.yml"}
		err := ErrorWithContext("Frame failed", "Explanation", context, []string{"Lower the gamma threshold"})
		require.Error(t, err)
		require.Equal(t, "Frame failed", err.Error())
	})
}

// The Error helpers print their formatted output to stderr with colors;
// the returned error carries only the title for cobra's handling, so a
// failure is never printed twice.
