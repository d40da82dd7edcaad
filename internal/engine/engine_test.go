package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/speckle/internal/objective"
	"github.com/dyluth/speckle/pkg/field"
	"github.com/dyluth/speckle/pkg/image"
	"github.com/dyluth/speckle/pkg/motion"
	"github.com/dyluth/speckle/pkg/subset"
)

// fakeObjective scripts the correlation result so pipeline behavior can
// be tested without real image numerics.
type fakeObjective struct {
	sub *subset.Subset

	gamma    float64
	gammaErr error
	sigma    float64

	fastUpdate   objective.Update
	fastErr      error
	fastSet      *subset.Deformation
	robustUpdate objective.Update
	robustErr    error
	robustSet    *subset.Deformation

	fastCalls   int
	robustCalls int
}

func (f *fakeObjective) Subset() *subset.Subset { return f.sub }

func (f *fakeObjective) SetDeformedImage(*image.Scalar) {}

func (f *fakeObjective) Sigma(subset.Deformation) float64 { return f.sigma }

func (f *fakeObjective) Gamma(subset.Deformation) (float64, error) {
	return f.gamma, f.gammaErr
}

func (f *fakeObjective) UpdateFast(d *subset.Deformation) (objective.Update, error) {
	f.fastCalls++
	if f.fastSet != nil {
		*d = *f.fastSet
	}
	return f.fastUpdate, f.fastErr
}

func (f *fakeObjective) UpdateRobust(d *subset.Deformation) (objective.Update, error) {
	f.robustCalls++
	if f.robustSet != nil {
		*d = *f.robustSet
	}
	return f.robustUpdate, f.robustErr
}

type fakeFactory struct {
	mu       sync.Mutex
	template fakeObjective
	made     []*fakeObjective
}

func (f *fakeFactory) build(s *subset.Subset) Objective {
	f.mu.Lock()
	defer f.mu.Unlock()
	fo := f.template
	fo.sub = s
	f.made = append(f.made, &fo)
	return &fo
}

// convergeAtGuess scripts an objective that accepts whatever guess it is
// handed as the converged solution.
func convergeAtGuess() *fakeFactory {
	return &fakeFactory{template: fakeObjective{
		gamma:        0.01,
		sigma:        0.02,
		fastUpdate:   objective.Update{Iterations: 1, Converged: true},
		robustUpdate: objective.Update{Iterations: 1, Converged: true},
	}}
}

func testImage(t *testing.T, w, h int) *image.Scalar {
	t.Helper()
	img, err := image.NewScalar(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, float64((x*7+y*13)%251))
		}
	}
	return img
}

func runFrame(t *testing.T, a *Analysis, img *image.Scalar) {
	t.Helper()
	require.NoError(t, a.SetDeformedImage(img))
	require.NoError(t, a.ExecuteFrame(context.Background()))
}

func fieldVal(t *testing.T, a *Analysis, id int, name field.Name) float64 {
	t.Helper()
	v, err := a.FieldValue(id, name)
	require.NoError(t, err)
	return v
}

func TestOcclusionMaskGrowsWithSkinFactor(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.SkinFactor = 1.1
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{
			{X: 40, Y: 40, Size: 25},
			{X: 40, Y: 40, Size: 21},
		},
		Obstructions: map[int][]int{0: {1}},
		Seeds: map[int]subset.Deformation{
			0: {},
			1: {},
		},
	})
	require.NoError(t, err)

	img := testImage(t, 80, 80)
	require.NoError(t, a.SetReferenceImage(img))
	runFrame(t, a, testImage(t, 80, 80))

	hidden, err := a.Subset(0)
	require.NoError(t, err)
	occluder, err := a.Subset(1)
	require.NoError(t, err)

	// Count how many of the hidden subset's pixels the occluder covers
	// without the skin applied.
	unscaled := occluder.DeformedFootprint(subset.Deformation{}, 1.0)
	overlap := 0
	for i := 0; i < hidden.Size(); i++ {
		if unscaled[hidden.Pixel(i)] {
			overlap++
		}
	}

	assert.Greater(t, hidden.BlockedCount(), 0)
	assert.Greater(t, hidden.BlockedCount(), overlap)
	assert.Zero(t, occluder.BlockedCount())
}

func TestFieldValueInitFailsWithoutPriorSolution(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeGeneric)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(InitializeFailed), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Sigma))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Match))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Gamma))
	assert.Zero(t, fieldVal(t, a, 0, field.Iterations))
}

func TestInitialGammaGateRejectsPoorGuess(t *testing.T) {
	factory := convergeAtGuess()
	factory.template.gamma = 0.10
	opts := DefaultOptions(ModeTracking)
	opts.InitialGammaThreshold = 0.05
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(InitializeFailed), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Sigma))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Match))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Gamma))
	assert.Zero(t, fieldVal(t, a, 0, field.Iterations))

	// The gate fires before any optimizer runs.
	require.Len(t, factory.made, 1)
	assert.Zero(t, factory.made[0].fastCalls)
	assert.Zero(t, factory.made[0].robustCalls)
}

func TestFallbackOptimizerRecoversAfterFastFailure(t *testing.T) {
	factory := convergeAtGuess()
	factory.template.fastUpdate = objective.Update{Iterations: 7, Converged: false}
	factory.template.robustUpdate = objective.Update{Iterations: 3, Converged: true}
	opts := DefaultOptions(ModeTracking)
	opts.Optimization = OptGradientThenSimplex
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, 3.0, fieldVal(t, a, 0, field.Iterations))
	assert.Equal(t, 0.01, fieldVal(t, a, 0, field.Gamma))
	assert.Equal(t, 0.02, fieldVal(t, a, 0, field.Sigma))

	require.Len(t, factory.made, 1)
	assert.Equal(t, 1, factory.made[0].fastCalls)
	assert.Equal(t, 1, factory.made[0].robustCalls)
}

func TestSingleMethodFailureRecordsFailedStep(t *testing.T) {
	factory := convergeAtGuess()
	factory.template.fastUpdate = objective.Update{Iterations: 9, Converged: false}
	opts := DefaultOptions(ModeGeneric)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(CorrelationFailed), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Sigma))
	assert.Equal(t, 9.0, fieldVal(t, a, 0, field.Iterations))
}

func TestCommitRoundTrip(t *testing.T) {
	want := subset.Deformation{U: 1.5, V: -0.75, Theta: 0.1, Ex: 0.01, Ey: -0.02, Gxy: 0.005}
	factory := convergeAtGuess()
	factory.template.fastSet = &want
	factory.template.fastUpdate = objective.Update{Iterations: 4, Converged: true}
	factory.template.gamma = 0.03
	factory.template.sigma = 0.2
	opts := DefaultOptions(ModeGeneric)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, want.U, fieldVal(t, a, 0, field.DisplacementX))
	assert.Equal(t, want.V, fieldVal(t, a, 0, field.DisplacementY))
	assert.Equal(t, want.Theta, fieldVal(t, a, 0, field.RotationZ))
	assert.Equal(t, want.Ex, fieldVal(t, a, 0, field.NormalStrainX))
	assert.Equal(t, want.Ey, fieldVal(t, a, 0, field.NormalStrainY))
	assert.Equal(t, want.Gxy, fieldVal(t, a, 0, field.ShearStrainXY))
	assert.Equal(t, 0.2, fieldVal(t, a, 0, field.Sigma))
	assert.Zero(t, fieldVal(t, a, 0, field.Match))
	assert.Equal(t, 0.03, fieldVal(t, a, 0, field.Gamma))
	assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, 4.0, fieldVal(t, a, 0, field.Iterations))
}

func TestMotionGateSkipsStillFrames(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
		MotionWindows: map[int]motion.Window{
			0: {StartX: 10, StartY: 10, EndX: 50, EndY: 50, Tol: 5, UseID: motion.OwnWindow},
		},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))

	// First frame always reports motion and solves normally.
	runFrame(t, a, testImage(t, 64, 64))
	assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, 0.01, fieldVal(t, a, 0, field.Gamma))

	// An identical frame is skipped, touching only match, status and
	// iterations.
	runFrame(t, a, testImage(t, 64, 64))
	assert.Equal(t, float64(FrameSkippedNoMotion), fieldVal(t, a, 0, field.StatusFlag))
	assert.Zero(t, fieldVal(t, a, 0, field.Match))
	assert.Zero(t, fieldVal(t, a, 0, field.Iterations))
	assert.Equal(t, 0.01, fieldVal(t, a, 0, field.Gamma))
	assert.Equal(t, 0.02, fieldVal(t, a, 0, field.Sigma))
}

func TestNeighborInitializationFollowsSeedChain(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.Initialization = InitNeighborEveryFrame
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{
			{X: 20, Y: 20, Size: 15},
			{X: 40, Y: 20, Size: 15},
			{X: 60, Y: 20, Size: 15},
		},
		Neighbors: []int{field.NoNeighbor, 0, 1},
		Seeds:     map[int]subset.Deformation{0: {U: 2}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 96, 48)))
	runFrame(t, a, testImage(t, 96, 48))

	for id := 0; id < 3; id++ {
		assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, id, field.StatusFlag), "point %d", id)
		assert.Equal(t, 2.0, fieldVal(t, a, id, field.DisplacementX), "point %d", id)
	}
}

func TestVelocityProjectionExtrapolates(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.Projection = ProjectionVelocity
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {U: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))

	// With an objective that accepts every guess, the committed
	// displacement doubles the step each frame: 2*1-0, 2*2-1, 2*3-2.
	for _, want := range []float64{2, 3, 4} {
		runFrame(t, a, testImage(t, 64, 64))
		assert.Equal(t, want, fieldVal(t, a, 0, field.DisplacementX))
	}
}

func TestPathInitializationStartsOnTrajectory(t *testing.T) {
	pathFile := filepath.Join(t.TempDir(), "track.txt")
	require.NoError(t, os.WriteFile(pathFile, []byte("5 5 0\n9 9 0\n"), 0o644))

	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points:    []PointDef{{X: 30, Y: 30, Size: 15}},
		PathFiles: map[int]string{0: pathFile},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, 5.0, fieldVal(t, a, 0, field.DisplacementX))
	assert.Equal(t, 5.0, fieldVal(t, a, 0, field.DisplacementY))
}

func TestPathDistanceGateRejectsFarSolutions(t *testing.T) {
	pathFile := filepath.Join(t.TempDir(), "track.txt")
	require.NoError(t, os.WriteFile(pathFile, []byte("5 5 0\n9 9 0\n"), 0o644))

	factory := convergeAtGuess()
	factory.template.fastSet = &subset.Deformation{U: 20, V: 20}
	factory.template.fastUpdate = objective.Update{Iterations: 2, Converged: true}
	opts := DefaultOptions(ModeTracking)
	opts.Optimization = OptGradientBased
	opts.PathDistanceThreshold = 0.5
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points:    []PointDef{{X: 30, Y: 30, Size: 15}},
		PathFiles: map[int]string{0: pathFile},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(FrameFailedHighPathDistance), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, field.Unsolved, fieldVal(t, a, 0, field.Sigma))
	assert.Equal(t, 2.0, fieldVal(t, a, 0, field.Iterations))
}

func TestSkipSolveRecordsGuess(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points:    []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:     map[int]subset.Deformation{0: {U: 1.5}},
		SkipSolve: map[int]bool{0: true},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	runFrame(t, a, testImage(t, 64, 64))

	assert.Equal(t, float64(FrameSkipped), fieldVal(t, a, 0, field.StatusFlag))
	assert.Equal(t, 1.5, fieldVal(t, a, 0, field.DisplacementX))
	assert.Equal(t, 0.02, fieldVal(t, a, 0, field.Sigma))
	assert.Equal(t, 0.01, fieldVal(t, a, 0, field.Gamma))
	assert.Zero(t, fieldVal(t, a, 0, field.Iterations))

	require.Len(t, factory.made, 1)
	assert.Zero(t, factory.made[0].fastCalls)
	assert.Zero(t, factory.made[0].robustCalls)
}

func TestParallelWorkersSolveAllPoints(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeGeneric)
	opts.Workers = 2
	opts.NewObjective = factory.build

	seeds := make(map[int]subset.Deformation)
	points := make([]PointDef, 4)
	for i := range points {
		points[i] = PointDef{X: float64(20 + 25*i), Y: 20, Size: 15}
		seeds[i] = subset.Deformation{U: 1}
	}
	a, err := New(opts, Setup{Points: points, Seeds: seeds})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 128, 48)))
	runFrame(t, a, testImage(t, 128, 48))

	for id := 0; id < 4; id++ {
		assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, id, field.StatusFlag), "point %d", id)
		assert.Equal(t, 1.0, fieldVal(t, a, id, field.DisplacementX), "point %d", id)
	}
}

func TestKalmanProjectionRunsAcrossFrames(t *testing.T) {
	factory := convergeAtGuess()
	factory.template.fastSet = &subset.Deformation{U: 1, V: 1}
	factory.template.fastUpdate = objective.Update{Iterations: 2, Converged: true}
	opts := DefaultOptions(ModeTracking)
	opts.Optimization = OptGradientBased
	opts.Projection = ProjectionKalman
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	for frame := 0; frame < 3; frame++ {
		runFrame(t, a, testImage(t, 64, 64))
		assert.Equal(t, float64(CorrelationSuccessful), fieldVal(t, a, 0, field.StatusFlag))
		assert.Equal(t, 1.0, fieldVal(t, a, 0, field.DisplacementX))
	}
}

func TestExecuteFrameHonorsContext(t *testing.T) {
	factory := convergeAtGuess()
	opts := DefaultOptions(ModeTracking)
	opts.NewObjective = factory.build

	a, err := New(opts, Setup{
		Points: []PointDef{{X: 30, Y: 30, Size: 15}},
		Seeds:  map[int]subset.Deformation{0: {}},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetReferenceImage(testImage(t, 64, 64)))
	require.NoError(t, a.SetDeformedImage(testImage(t, 64, 64)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.ExecuteFrame(ctx), context.Canceled)
	assert.Zero(t, a.Frame())

	require.NoError(t, a.ExecuteFrame(context.Background()))
	assert.Equal(t, 1, a.Frame())
}
