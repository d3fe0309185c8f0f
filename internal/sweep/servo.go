package sweep

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Servo closes the power-leveling loop: it reads DUT output power from the
// meter and corrects the source setpoint until the output lands inside the
// tolerance band. It is an integral-only controller; gain is close enough to
// linear over the correction ranges seen here that no shaping is needed.
type Servo struct {
	Source        SignalSource
	Meter         PowerMeter
	MaxIterations int
	ToleranceDB   float64

	logger zerolog.Logger
}

// NewServo builds a servo around the given source and meter.
func NewServo(source SignalSource, meter PowerMeter, maxIterations int, toleranceDB float64) *Servo {
	return &Servo{
		Source:        source,
		Meter:         meter,
		MaxIterations: maxIterations,
		ToleranceDB:   toleranceDB,
		logger:        log.With().Str("component", "servo").Logger(),
	}
}

// Level drives the DUT output toward targetOutputDBm. The starting setpoint
// (target − expected gain) has already been applied by the caller during
// configure; Level only issues corrections. Convergence uses a strict
// less-than comparison, so a reading exactly on the tolerance boundary does
// not converge. Meter and source transport errors propagate; running out of
// iterations does not — it is reported through the result.
func (s *Servo) Level(keyGHz, targetOutputDBm, expectedGainDB float64) (ServoResult, error) {
	setpoint := targetOutputDBm - expectedGainDB
	start := time.Now()

	var res ServoResult
	for i := 0; i < s.MaxIterations; i++ {
		_, output, err := s.Meter.Measure()
		if err != nil {
			res.SettleTime = time.Since(start)
			return res, fmt.Errorf("read output power at %.3f GHz: %w", keyGHz, err)
		}
		res.Iterations = i + 1

		if math.Abs(output-targetOutputDBm) < s.ToleranceDB {
			res.Converged = true
			break
		}

		setpoint += targetOutputDBm - output
		if err := s.Source.SetPower(setpoint); err != nil {
			res.SettleTime = time.Since(start)
			return res, fmt.Errorf("adjust source power at %.3f GHz: %w", keyGHz, err)
		}
	}
	res.SettleTime = time.Since(start)

	if res.Converged {
		s.logger.Info().
			Float64("freq_ghz", keyGHz).
			Int("iterations", res.Iterations).
			Dur("settle_time", res.SettleTime).
			Msg("servo converged")
	} else {
		s.logger.Warn().
			Float64("freq_ghz", keyGHz).
			Int("iterations", res.Iterations).
			Dur("settle_time", res.SettleTime).
			Msg("servo did not converge within iteration bound")
	}

	return res, nil
}
