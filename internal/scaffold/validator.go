package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting checks if speckle.yml or the images/ directory already
// exist. Returns an error if they do, nil otherwise.
func CheckExisting() error {
	var existingFiles []string

	if _, err := os.Stat("speckle.yml"); err == nil {
		existingFiles = append(existingFiles, "speckle.yml")
	}

	if info, err := os.Stat("images"); err == nil && info.IsDir() {
		existingFiles = append(existingFiles, "images/")
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'speckle init --force' to reinitialize (this will overwrite existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
