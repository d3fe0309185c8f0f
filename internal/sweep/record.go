package sweep

import "time"

// ServoResult reports the outcome of one power-leveling run.
type ServoResult struct {
	// Iterations is the number of meter readings taken, 1..MaxServoIterations.
	Iterations int
	SettleTime time.Duration
	// Converged is true when a reading landed strictly inside the tolerance
	// band. Reaching the iteration bound leaves it false; the sweep still
	// proceeds to measurement at the last-set power.
	Converged bool
}

// Record is the measurement outcome for one processed frequency point.
// Records are appended to the sweep's result sequence in grid order and
// never mutated after append.
type Record struct {
	SourceSetupTime   time.Duration
	AnalyzerSetupTime time.Duration

	FrequencyGHz    float64
	TargetOutputDBm float64

	Servo ServoResult

	CorrectedInputDBm  float64
	CorrectedOutputDBm float64

	// Standard holds the standard-averaged EVM+ACLR acquisition.
	Standard EvmAclrResult

	// Extended holds one noise-canceled acquisition per configured
	// averaging count, keyed by the count value.
	Extended map[int]EvmAclrResult

	TotalElapsed time.Duration
}
