package engine

import (
	"fmt"

	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/subset"
)

// PostProcessor derives additional per-point quantities from the solved
// fields after each frame.
type PostProcessor interface {
	// Initialize binds the processor to the analysis it reads from.
	Initialize(a *Analysis) error
	// PreExecute runs once before the first frame solves.
	PreExecute()
	// Execute runs after each frame's fields are synchronized.
	Execute()
	// FieldNames lists the derived fields the processor provides.
	FieldNames() []string
	// Value returns a derived field value for one point.
	Value(id int, name string) (float64, error)
}

// AddPostProcessor initializes the processor against this analysis and
// registers it for the per-frame hooks.
func (a *Analysis) AddPostProcessor(pp PostProcessor) error {
	if err := pp.Initialize(a); err != nil {
		return fmt.Errorf("post-processor: %w", err)
	}
	a.postProcessors = append(a.postProcessors, pp)
	return nil
}

// PostProcessors returns the processors registered on this analysis.
func (a *Analysis) PostProcessors() []PostProcessor { return a.postProcessors }

// RunID returns the unique id stamped on this analysis' log events.
func (a *Analysis) RunID() string { return a.id }

// NumPoints returns the number of points under analysis.
func (a *Analysis) NumPoints() int { return a.n }

// Frame returns the index of the next frame to execute.
func (a *Analysis) Frame() int { return a.frame }

// Subset returns the subset geometry backing one point.
func (a *Analysis) Subset(id int) (*subset.Subset, error) {
	if id < 0 || id >= a.n {
		return nil, fmt.Errorf("unknown point %d", id)
	}
	return a.subsets[id], nil
}

// FieldValue reads one synchronized field value by point id. Values
// reflect the last completed frame.
func (a *Analysis) FieldValue(id int, name field.Name) (float64, error) {
	if id < 0 || id >= a.n {
		return 0, fmt.Errorf("unknown point %d", id)
	}
	for _, n := range field.Names() {
		if n == name {
			return a.all.Value(id, name), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}
