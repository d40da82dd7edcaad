package field

import "fmt"

// Name identifies one scalar attribute tracked per point.
type Name string

// The full set of per-point field names.
const (
	CoordinateX   Name = "COORDINATE_X"
	CoordinateY   Name = "COORDINATE_Y"
	DisplacementX Name = "DISPLACEMENT_X"
	DisplacementY Name = "DISPLACEMENT_Y"
	RotationZ     Name = "ROTATION_Z"
	NormalStrainX Name = "NORMAL_STRAIN_X"
	NormalStrainY Name = "NORMAL_STRAIN_Y"
	ShearStrainXY Name = "SHEAR_STRAIN_XY"
	Sigma         Name = "SIGMA"
	Match         Name = "MATCH"
	Gamma         Name = "GAMMA"
	StatusFlag    Name = "STATUS_FLAG"
	Iterations    Name = "ITERATIONS"
	NeighborID    Name = "NEIGHBOR_ID"
)

// Sentinel values used across the field set.
const (
	// Unsolved marks a quality field (SIGMA, MATCH, GAMMA) with no valid
	// solution behind it.
	Unsolved = -1.0
	// NoNeighbor marks a point as a seed in the NEIGHBOR_ID field.
	NoNeighbor = -1
)

// Names returns all field names in storage order. The returned slice is
// shared; callers must not modify it.
func Names() []Name {
	return allNames
}

var allNames = []Name{
	CoordinateX,
	CoordinateY,
	DisplacementX,
	DisplacementY,
	RotationZ,
	NormalStrainX,
	NormalStrainY,
	ShearStrainXY,
	Sigma,
	Match,
	Gamma,
	StatusFlag,
	Iterations,
	NeighborID,
}

// Validate checks that the name is one of the known field names.
func (n Name) Validate() error {
	for _, known := range allNames {
		if n == known {
			return nil
		}
	}
	return fmt.Errorf("unknown field name: %s (valid names: %v)", n, allNames)
}
