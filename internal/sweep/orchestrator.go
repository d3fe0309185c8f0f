package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rjboer/rfsweep/internal/cal"
)

// Orchestrator drives one sweep campaign: it derives the frequency grid,
// matches calibration per point, configures the instruments, levels power,
// runs the measurement protocol, and accumulates one Record per processed
// point. Execution is strictly sequential; the instruments are shared
// stateful hardware and every step depends on the state the previous step
// left behind.
type Orchestrator struct {
	cfg      Config
	cal      Calibration
	source   SignalSource
	analyzer Analyzer
	meter    PowerMeter
	sink     ResultSink

	logger    zerolog.Logger
	records   []Record
	processed map[float64]struct{}
}

// NewOrchestrator validates the configuration and wires the sweep together.
func NewOrchestrator(cfg Config, table Calibration, source SignalSource, analyzer Analyzer, meter PowerMeter, sink ResultSink) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}
	return &Orchestrator{
		cfg:       cfg,
		cal:       table,
		source:    source,
		analyzer:  analyzer,
		meter:     meter,
		sink:      sink,
		logger:    log.With().Str("component", "sweep").Logger(),
		processed: make(map[float64]struct{}),
	}, nil
}

// Run executes the sweep. Whatever happens — normal completion or a fatal
// instrument error partway through — all three instruments are released and
// the collected records are flushed to the sink before Run returns.
func (o *Orchestrator) Run() (err error) {
	grid := o.cfg.Grid()
	o.logger.Info().
		Int("points", len(grid)).
		Float64("start_ghz", KeyFromHz(o.cfg.StartHz)).
		Float64("stop_ghz", KeyFromHz(o.cfg.StopHz)).
		Msg("starting sweep")

	defer func() {
		if finErr := o.finalize(); err == nil {
			err = finErr
		}
	}()

	if err := o.prime(grid); err != nil {
		return err
	}

	servo := NewServo(o.source, o.meter, o.cfg.MaxServoIterations, o.cfg.ToleranceDB)

	for _, pt := range grid {
		key := pt.KeyGHz()

		if _, dup := o.processed[key]; dup {
			o.logger.Warn().Float64("freq_ghz", key).Msg("frequency already processed, skipping")
			continue
		}
		rec, lookErr := o.cal.Lookup(key)
		if lookErr != nil {
			if errors.Is(lookErr, cal.ErrNotFound) {
				o.logger.Warn().Float64("freq_ghz", key).Msg("no calibration match, skipping")
				continue
			}
			return fmt.Errorf("calibration lookup for %.3f GHz: %w", key, lookErr)
		}
		o.processed[key] = struct{}{}

		if err := o.configure(pt, rec); err != nil {
			return err
		}

		servoRes, err := servo.Level(key, o.cfg.TargetOutputDBm, o.cfg.ExpectedGainDB)
		if err != nil {
			return err
		}

		record, err := o.measure(pt, rec, servoRes)
		if err != nil {
			return err
		}
		o.records = append(o.records, record)

		o.logger.Info().
			Float64("freq_ghz", key).
			Int("servo_iterations", servoRes.Iterations).
			Bool("servo_converged", servoRes.Converged).
			Float64("evm_db", record.Standard.EVMDB).
			Dur("elapsed", record.TotalElapsed).
			Msg("measurement completed")
	}

	return nil
}

// Records returns the records accumulated so far, in grid order.
func (o *Orchestrator) Records() []Record { return o.records }

// prime performs the one-time cold configuration using the first grid
// frequency's calibration record, so per-iteration configures only have to
// update what changes. A missing match for the first frequency is fatal.
func (o *Orchestrator) prime(grid []FrequencyPoint) error {
	if len(grid) == 0 {
		return ErrInvalidRange
	}

	first := grid[0]
	rec, err := o.cal.Lookup(first.KeyGHz())
	if err != nil {
		if errors.Is(err, cal.ErrNotFound) {
			return fmt.Errorf("%w (%.3f GHz)", ErrNoCalibration, first.KeyGHz())
		}
		return fmt.Errorf("calibration lookup for %.3f GHz: %w", first.KeyGHz(), err)
	}

	o.logger.Info().Float64("freq_ghz", first.KeyGHz()).Msg("priming instruments")
	return o.configure(first, rec)
}

// configure pushes the point's frequency and calibration offsets to all
// three instruments. The source's starting power is target − expected gain;
// the servo corrects from there.
func (o *Orchestrator) configure(pt FrequencyPoint, rec cal.Record) error {
	if err := o.meter.Configure(pt.Hz, rec.InputOffsetDB, rec.OutputOffsetDB); err != nil {
		return fmt.Errorf("configure power meter at %.3f GHz: %w", pt.KeyGHz(), err)
	}
	initialPower := o.cfg.TargetOutputDBm - o.cfg.ExpectedGainDB
	if err := o.source.Configure(pt.Hz, initialPower, rec.SourceOffsetDB); err != nil {
		return fmt.Errorf("configure source at %.3f GHz: %w", pt.KeyGHz(), err)
	}
	if err := o.analyzer.Configure(pt.Hz, rec.AnalyzerOffsetDB); err != nil {
		return fmt.Errorf("configure analyzer at %.3f GHz: %w", pt.KeyGHz(), err)
	}
	return nil
}

// measure runs the standard protocol and every configured extended-averaging
// variant against the analyzer and assembles the point's record.
func (o *Orchestrator) measure(pt FrequencyPoint, rec cal.Record, servoRes ServoResult) (Record, error) {
	key := pt.KeyGHz()

	input, output, err := o.meter.Measure()
	if err != nil {
		return Record{}, fmt.Errorf("read corrected power at %.3f GHz: %w", key, err)
	}

	start := time.Now()
	standard, err := o.analyzer.MeasureEvmAclr(pt.Hz, rec.AnalyzerOffsetDB, output)
	if err != nil {
		return Record{}, fmt.Errorf("standard EVM/ACLR at %.3f GHz: %w", key, err)
	}

	extended := make(map[int]EvmAclrResult, len(o.cfg.ExtendedAverages))
	for _, avg := range o.cfg.ExtendedAverages {
		res, err := o.analyzer.MeasureExtendedEvmAclr(pt.Hz, rec.AnalyzerOffsetDB, avg)
		if err != nil {
			return Record{}, fmt.Errorf("extended EVM/ACLR (%d averages) at %.3f GHz: %w", avg, key, err)
		}
		extended[avg] = res
	}

	return Record{
		SourceSetupTime:    o.source.SetupTime(),
		AnalyzerSetupTime:  o.analyzer.SetupTime(),
		FrequencyGHz:       key,
		TargetOutputDBm:    o.cfg.TargetOutputDBm,
		Servo:              servoRes,
		CorrectedInputDBm:  input,
		CorrectedOutputDBm: output,
		Standard:           standard,
		Extended:           extended,
		TotalElapsed:       time.Since(start),
	}, nil
}

// finalize releases all three instruments independently, so one failure does
// not suppress the others, then flushes the collected records. It reports
// the first error encountered.
func (o *Orchestrator) finalize() error {
	var firstErr error

	release := func(name string, fn func() error) {
		if err := fn(); err != nil {
			o.logger.Error().Err(err).Str("instrument", name).Msg("release failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("release %s: %w", name, err)
			}
		}
	}
	release("source", o.source.Release)
	release("analyzer", o.analyzer.Release)
	release("power meter", o.meter.Release)

	if err := o.sink.Flush(o.records); err != nil {
		o.logger.Error().Err(err).Msg("flushing results failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("flush results: %w", err)
		}
	}

	o.logger.Info().Int("records", len(o.records)).Msg("sweep finalized")
	return firstErr
}
