package crowdsense

import "github.com/visiona/crowdsense/internal/detect"

// Public API - Re-export internal types as stable contract

// Detector binds the JPEG coefficient scanner, the frame store, the diff
// engine and the auto-sensitivity calibrator behind one process-frame
// operation.
type Detector = detect.Detector

// Listeners are the detector's outbound callbacks.
type Listeners = detect.Listeners

// Result summarizes one processed frame.
type Result = detect.Result

// AutoStatus is the per-frame outcome of an auto-sensitivity window.
type AutoStatus = detect.AutoStatus

const (
	AutoNoStart  = detect.AutoNoStart
	AutoContinue = detect.AutoContinue
	AutoError    = detect.AutoError
	AutoSuccess  = detect.AutoSuccess
)

// Sensitivity bounds and defaults.
const (
	SensitivityMin               = detect.SensitivityMin
	SensitivityMax               = detect.SensitivityMax
	DefaultDetectedAreaThreshold = detect.DefaultDetectedAreaThreshold
)

// Public API errors - Re-export internal errors as stable contract
var (
	ErrSensitivityRange   = detect.ErrSensitivityRange
	ErrAreaThresholdRange = detect.ErrAreaThresholdRange
)

// New creates a detector with default settings: user sensitivity 1,
// detected-area threshold 10.0, no listeners.
func New() *Detector {
	return detect.NewDetector()
}
