package sweep

import "errors"

// Sweep errors
var (
	// ErrInvalidStep indicates a non-positive frequency step
	ErrInvalidStep = errors.New("frequency step must be positive")

	// ErrInvalidRange indicates a stop frequency below the start frequency
	ErrInvalidRange = errors.New("stop frequency must not be below start frequency")

	// ErrInvalidTolerance indicates a non-positive servo tolerance
	ErrInvalidTolerance = errors.New("servo tolerance must be positive (dB)")

	// ErrInvalidIterations indicates a non-positive servo iteration bound
	ErrInvalidIterations = errors.New("servo iteration bound must be positive")

	// ErrInvalidAverages indicates a non-positive extended averaging count
	ErrInvalidAverages = errors.New("extended averaging counts must be positive")

	// ErrNoCalibration indicates the first grid frequency has no calibration match
	ErrNoCalibration = errors.New("no calibration match for the first sweep frequency")
)
