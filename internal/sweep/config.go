package sweep

import "fmt"

// DefaultExtendedAverages are the noise-cancel averaging counts exercised
// per frequency point when the configuration does not override them.
var DefaultExtendedAverages = []int{5, 10, 15, 20, 50}

const (
	DefaultToleranceDB   = 0.05
	DefaultMaxIterations = 10
)

// Config defines one sweep campaign. It is immutable once the sweep begins.
type Config struct {
	StartHz float64
	StopHz  float64
	StepHz  float64

	TargetOutputDBm float64
	ToleranceDB     float64
	ExpectedGainDB  float64

	// ExtendedAverages lists the noise-cancel averaging counts to exercise
	// per point, in order. Empty means standard measurement only.
	ExtendedAverages []int

	MaxServoIterations int
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.StepHz <= 0 {
		return ErrInvalidStep
	}
	if c.StopHz < c.StartHz {
		return ErrInvalidRange
	}
	if c.ToleranceDB <= 0 {
		return ErrInvalidTolerance
	}
	if c.MaxServoIterations <= 0 {
		return ErrInvalidIterations
	}
	for _, n := range c.ExtendedAverages {
		if n <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidAverages, n)
		}
	}
	return nil
}
