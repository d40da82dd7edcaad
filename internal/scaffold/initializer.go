package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/speckle/internal/config"
)

// starterConfig is the speckle.yml written by speckle init
const starterConfig = `# speckle analysis configuration
version: "1"

analysis:
  # tracking follows a few points through large motion,
  # generic solves a dense grid of small motions
  mode: tracking
  parameters:
    workers: 2
    skin_factor: 1.1
    final_gamma_threshold: 0.95

images:
  reference: images/ref.png
  deformed:
    - images/def_0001.png
    - images/def_0002.png

points:
  # swap the list for a grid when solving dense fields:
  #   grid: {step_x: 10, step_y: 10, subset_size: 21}
  list:
    - x: 120
      y: 90
      size: 21
      seed: {u: 0, v: 0}

output:
  directory: results
`

// imagesReadme explains what belongs in the images directory
const imagesReadme = `# Images

Put the frames for the analysis here:

- ` + "`ref.png`" + ` - the reference (undeformed) image
- ` + "`def_NNNN.png`" + ` - the deformed sequence, one file per frame

PNG, JPEG and TIFF grayscale images are supported. Every frame must have
the same dimensions as the reference image.
`

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the speckle project structure
// If force is true, it will remove existing speckle.yml and images/ directory
func Initialize(force bool) error {
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	if err := createDirectories(); err != nil {
		return err
	}

	if err := writeFiles(projectFiles()); err != nil {
		return err
	}

	// Load the file we just wrote so a broken scaffold fails loudly here
	if err := validateCreatedFiles(); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	if _, err := os.Stat("speckle.yml"); err == nil {
		fmt.Println("⚠️  Removing existing speckle.yml...")
		if err := os.Remove("speckle.yml"); err != nil {
			return fmt.Errorf("failed to remove speckle.yml: %w", err)
		}
	}

	if info, err := os.Stat("images"); err == nil && info.IsDir() {
		fmt.Println("⚠️  Removing existing images/ directory...")
		if err := os.RemoveAll("images"); err != nil {
			return fmt.Errorf("failed to remove images/ directory: %w", err)
		}
	}

	return nil
}

// projectFiles lists everything speckle init creates
func projectFiles() []FileInfo {
	return []FileInfo{
		{
			Path:        "speckle.yml",
			Content:     []byte(starterConfig),
			Permissions: 0644,
		},
		{
			Path:        filepath.Join("images", "README.md"),
			Content:     []byte(imagesReadme),
			Permissions: 0644,
		},
	}
}

// createDirectories creates the necessary directory structure
func createDirectories() error {
	for _, dir := range []string{"images", "results"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// writeFiles writes all project files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles runs the created config through the real loader
func validateCreatedFiles() error {
	if _, err := config.Load("speckle.yml"); err != nil {
		return fmt.Errorf("created speckle.yml does not validate: %w", err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized speckle project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ speckle.yml")
	fmt.Println("  ✓ images/README.md")
	fmt.Println("  ✓ results/")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Put the reference and deformed frames into images/")
	fmt.Println("  2. Adjust the points section to cover your speckle pattern")
	fmt.Println("  3. Run 'speckle run' to execute the analysis")
}
