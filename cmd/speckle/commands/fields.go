package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/speckle/internal/postproc"
	"github.com/dyluth/speckle/internal/printer"
	"github.com/dyluth/speckle/pkg/field"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the field names reports can request",
	Long: `List every field name the output section of speckle.yml can request.

Engine fields are solved per point per frame. Strain gauge fields are
derived after each frame and need output.strain_window set.`,
	RunE: runFields,
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

func runFields(cmd *cobra.Command, args []string) error {
	printer.Println("Engine fields:")
	for _, name := range field.Names() {
		printer.Printf("  %s\n", name)
	}

	printer.Println()
	printer.Println("Strain gauge fields (need output.strain_window):")
	for _, name := range []string{postproc.FieldStrainXX, postproc.FieldStrainYY, postproc.FieldStrainXY} {
		printer.Printf("  %s\n", name)
	}

	return nil
}
