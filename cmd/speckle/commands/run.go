package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/speckle/internal/config"
	"github.com/dyluth/speckle/internal/engine"
	"github.com/dyluth/speckle/internal/postproc"
	"github.com/dyluth/speckle/internal/printer"
	"github.com/dyluth/speckle/internal/report"
	"github.com/dyluth/speckle/pkg/image"
)

var (
	runConfigPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a correlation analysis",
	Long: `Execute the analysis described by a speckle.yml configuration.

Loads the reference image, solves every deformed frame in sequence and
writes a report per the output section. A failed point is recorded with
its status and never aborts the run.`,
	RunE: runAnalysis,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "speckle.yml", "Path to the analysis configuration")
	rootCmd.AddCommand(runCmd)
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Phase 1: Configuration
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf(`%s not found or invalid

Initialize a project first:
  speckle init

Error details: %w`, runConfigPath, err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}

	// Phase 2: Images and point set
	refImg, err := image.Load(cfg.Images.Reference)
	if err != nil {
		return fmt.Errorf("failed to load reference image: %w", err)
	}
	setup, err := cfg.EngineSetup(refImg.Width(), refImg.Height())
	if err != nil {
		return err
	}
	a, err := engine.New(opts, setup)
	if err != nil {
		return err
	}
	if err := a.SetReferenceImage(refImg); err != nil {
		return err
	}

	// Phase 3: Output
	if cfg.Output.StrainWindow > 0 {
		if err := a.AddPostProcessor(postproc.NewVSGStrain(cfg.Output.StrainWindow)); err != nil {
			return err
		}
	}
	spec, err := cfg.ReportSpec()
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(spec, a)
	if err != nil {
		return err
	}
	defer writer.Close()

	// Phase 4: Frame loop
	start := time.Now()
	printer.Info("Run %s: %d points, %d frames\n", a.RunID(), a.NumPoints(), len(cfg.Images.Deformed))
	for i, path := range cfg.Images.Deformed {
		printer.Step("Frame %d/%d: %s\n", i+1, len(cfg.Images.Deformed), path)

		defImg, err := image.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load frame %d: %w", i, err)
		}
		if err := a.SetDeformedImage(defImg); err != nil {
			return err
		}
		if err := a.ExecuteFrame(ctx); err != nil {
			return printer.ErrorWithContext("Frame failed", err.Error(), map[string]string{
				"Config": runConfigPath,
				"Frame":  fmt.Sprintf("%d", i),
			}, nil)
		}
		if err := writer.WriteFrame(i); err != nil {
			return err
		}
	}

	printer.Success("Analysis complete: %d frames in %s\n",
		len(cfg.Images.Deformed), time.Since(start).Round(time.Millisecond))
	return nil
}
