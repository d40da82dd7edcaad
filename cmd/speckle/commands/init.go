package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/speckle/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new speckle project",
	Long: `Initialize a new speckle project with a starter configuration.

Creates:
  • speckle.yml - analysis configuration
  • images/ - where the reference and deformed frames go
  • results/ - where reports are written

Use --force to reinitialize an existing project (WARNING: removes the existing configuration and images).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialization (removes existing speckle.yml and images/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return err
		}
	}

	if err := scaffold.Initialize(forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()

	return nil
}
