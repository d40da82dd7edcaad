package engine

import "fmt"

// Status is the terminal outcome of one point's pass through the
// correlation pipeline. Exactly one status is recorded per point per
// frame, into the STATUS_FLAG field.
type Status int

const (
	InitializeSuccessful Status = iota
	InitializeFailed
	InitializeFailedByException
	CorrelationSuccessful
	CorrelationFailed
	CorrelationFailedByException
	FrameSkipped
	FrameSkippedNoMotion
	FrameFailedHighGamma
	FrameFailedHighPathDistance
)

// NeverRun is the STATUS_FLAG value of a point no frame has processed.
const NeverRun Status = -1

func (s Status) String() string {
	switch s {
	case NeverRun:
		return "never run"
	case InitializeSuccessful:
		return "initialization successful"
	case InitializeFailed:
		return "initialization failed"
	case InitializeFailedByException:
		return "initialization failed by exception"
	case CorrelationSuccessful:
		return "correlation successful"
	case CorrelationFailed:
		return "correlation failed"
	case CorrelationFailedByException:
		return "correlation failed by exception"
	case FrameSkipped:
		return "frame skipped"
	case FrameSkippedNoMotion:
		return "frame skipped, no motion"
	case FrameFailedHighGamma:
		return "frame failed, high gamma"
	case FrameFailedHighPathDistance:
		return "frame failed, high path distance"
	default:
		return fmt.Sprintf("unknown status (%d)", int(s))
	}
}

// Failed reports whether the status records a failure rather than a
// success or a deliberate skip.
func (s Status) Failed() bool {
	switch s {
	case InitializeFailed, InitializeFailedByException,
		CorrelationFailed, CorrelationFailedByException,
		FrameFailedHighGamma, FrameFailedHighPathDistance:
		return true
	default:
		return false
	}
}
