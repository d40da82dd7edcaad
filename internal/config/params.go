package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/speckle/internal/engine"
	"github.com/dyluth/speckle/internal/report"
)

// validParameters is the fixed whitelist of flat analysis parameters. A
// key outside this list is a fatal configuration error.
var validParameters = []string{
	"workers",
	"initialization_method",
	"projection_method",
	"optimization_method",
	"skin_factor",
	"initial_gamma_threshold",
	"final_gamma_threshold",
	"path_distance_threshold",
	"subset_evolution",
	"dump_subset_images",
	"dump_dir",
}

// applyParameters overlays the user's flat parameter set onto the mode
// defaults, key by key. Keys are applied in sorted order so errors are
// deterministic.
func applyParameters(opts *engine.Options, params map[string]yaml.Node) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := params[name]
		var err error
		switch name {
		case "workers":
			err = node.Decode(&opts.Workers)
		case "initialization_method":
			var s string
			if err = node.Decode(&s); err == nil {
				opts.Initialization, err = parseInitStrategy(s)
			}
		case "projection_method":
			var s string
			if err = node.Decode(&s); err == nil {
				opts.Projection, err = parseProjection(s)
			}
		case "optimization_method":
			var s string
			if err = node.Decode(&s); err == nil {
				opts.Optimization, err = parseOptMethod(s)
			}
		case "skin_factor":
			err = node.Decode(&opts.SkinFactor)
		case "initial_gamma_threshold":
			err = node.Decode(&opts.InitialGammaThreshold)
		case "final_gamma_threshold":
			err = node.Decode(&opts.FinalGammaThreshold)
		case "path_distance_threshold":
			err = node.Decode(&opts.PathDistanceThreshold)
		case "subset_evolution":
			err = node.Decode(&opts.SubsetEvolution)
		case "dump_subset_images":
			err = node.Decode(&opts.DumpSubsetImages)
		case "dump_dir":
			err = node.Decode(&opts.DumpDir)
		default:
			return fmt.Errorf("unrecognized parameter %q (valid parameters: %s)",
				name, strings.Join(validParameters, ", "))
		}
		if err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

func parseMode(s string) (engine.Mode, error) {
	switch s {
	case "tracking":
		return engine.ModeTracking, nil
	case "generic":
		return engine.ModeGeneric, nil
	case "":
		return 0, fmt.Errorf("analysis mode is required (tracking or generic)")
	default:
		return 0, fmt.Errorf("unrecognized analysis mode %q (valid: tracking, generic)", s)
	}
}

func parseInitStrategy(s string) (engine.InitStrategy, error) {
	switch s {
	case "field_values":
		return engine.InitFieldValues, nil
	case "neighbor_first_step_only":
		return engine.InitNeighborFirstStepOnly, nil
	case "neighbor":
		return engine.InitNeighborEveryFrame, nil
	case "phase_correlation":
		return engine.InitPhaseCorrelation, nil
	default:
		return 0, fmt.Errorf("unrecognized initialization method %q (valid: field_values, neighbor_first_step_only, neighbor, phase_correlation)", s)
	}
}

func parseProjection(s string) (engine.Projection, error) {
	switch s {
	case "last_step":
		return engine.ProjectionLastStep, nil
	case "velocity_based":
		return engine.ProjectionVelocity, nil
	case "kalman":
		return engine.ProjectionKalman, nil
	default:
		return 0, fmt.Errorf("unrecognized projection method %q (valid: last_step, velocity_based, kalman)", s)
	}
}

func parseOptMethod(s string) (engine.OptMethod, error) {
	switch s {
	case "gradient_based":
		return engine.OptGradientBased, nil
	case "simplex":
		return engine.OptSimplex, nil
	case "gradient_then_simplex":
		return engine.OptGradientThenSimplex, nil
	case "simplex_then_gradient":
		return engine.OptSimplexThenGradient, nil
	default:
		return 0, fmt.Errorf("unrecognized optimization method %q (valid: gradient_based, simplex, gradient_then_simplex, simplex_then_gradient)", s)
	}
}

func parseLayout(s string) (report.Layout, error) {
	switch s {
	case "", "single":
		return report.LayoutSingleFile, nil
	case "per_frame":
		return report.LayoutFilePerFrame, nil
	case "per_point":
		return report.LayoutFilePerPoint, nil
	default:
		return 0, fmt.Errorf("unrecognized output layout %q (valid: single, per_frame, per_point)", s)
	}
}
