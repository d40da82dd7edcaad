package motion

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// Predictor projects a point's displacement into the next frame with a
// 2D Kalman filter over the committed (u, v) track. It feeds the kalman
// projection method: Predict when the frame's initial guess is built,
// Update after the solution commits. Frames that fail to commit leave the
// filter coasting on its last prediction.
type Predictor struct {
	tracker *kalman_filter.Kalman2D
}

// Kalman filter process and measurement parameters. The committed
// displacements are low-noise measurements, so the measurement deviations
// sit well below the acceleration deviation.
const (
	predictorDt       = 1.0
	predictorUx       = 1.0
	predictorUy       = 1.0
	predictorStdDevA  = 2.0
	predictorStdDevMx = 0.1
	predictorStdDevMy = 0.1
)

// NewPredictor creates a predictor whose state starts at the given
// displacement.
func NewPredictor(u, v float64) *Predictor {
	kf := kalman_filter.NewKalman2D(predictorDt, predictorUx, predictorUy, predictorStdDevA,
		predictorStdDevMx, predictorStdDevMy, kalman_filter.WithState2D(u, v))
	return &Predictor{tracker: kf}
}

// Predict advances the filter one frame and returns the projected
// displacement.
func (p *Predictor) Predict() (float64, float64) {
	p.tracker.Predict()
	return p.tracker.GetState()
}

// Update folds a committed displacement into the filter. Call after
// Predict in the same frame.
func (p *Predictor) Update(u, v float64) error {
	if err := p.tracker.Update(u, v); err != nil {
		return errors.Wrap(err, "Can't update displacement predictor")
	}
	return nil
}

// Distance returns the Euclidean distance between a predicted and a
// fitted displacement, used to judge prediction quality.
func Distance(u1, v1, u2, v2 float64) float64 {
	return math.Hypot(u1-u2, v1-v2)
}
