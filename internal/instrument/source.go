// Package instrument implements the bench instrument backends — signal
// source (VSG), vector signal analyzer (VSA), and dual-channel power meter —
// on top of the scpi client. Each backend owns one SCPI session and tracks
// any device state the measurement protocol depends on.
package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rjboer/rfsweep/scpi"
)

// SourceConfig configures the signal source backend.
type SourceConfig struct {
	Addr string
	// WaveformPreset is the saved instrument state recalled after reset; it
	// carries the 5G NR uplink waveform the campaign transmits.
	WaveformPreset string
	Timeout        time.Duration
}

// Source drives the vector signal generator.
type Source struct {
	client    *scpi.Client
	logger    zerolog.Logger
	setupTime time.Duration
}

// NewSource connects to the generator, resets it, and recalls the waveform
// preset. The elapsed setup time is recorded for the campaign report.
func NewSource(ctx context.Context, cfg SourceConfig) (*Source, error) {
	logger := log.With().Str("instrument", "source").Str("addr", cfg.Addr).Logger()
	start := time.Now()

	client, err := scpi.Dial(ctx, cfg.Addr, scpi.WithTimeout(cfg.Timeout), scpi.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("source init: %w", err)
	}

	s := &Source{client: client, logger: logger}
	if err := client.QuerySync("*RST"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("source reset: %w", err)
	}
	if cfg.WaveformPreset != "" {
		if err := client.QuerySync(fmt.Sprintf("SYSTem:RCL '%s'", cfg.WaveformPreset)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("source recall waveform preset: %w", err)
		}
	}

	s.setupTime = time.Since(start)
	logger.Info().Dur("setup_time", s.setupTime).Msg("source initialized")
	return s, nil
}

// Configure applies the calibration power offset, sets auto attenuation,
// tunes the CW frequency, sets the starting power, and enables RF output.
func (s *Source) Configure(freqHz, initialPowerDBm, offsetDB float64) error {
	if err := s.client.Write(fmt.Sprintf(":SOUR1:POW:LEV:IMM:OFFS %.3f", offsetDB)); err != nil {
		return fmt.Errorf("source power offset: %w", err)
	}
	if err := s.client.QuerySync(":OUTput1:AMODe AUTO"); err != nil {
		return fmt.Errorf("source attenuation mode: %w", err)
	}
	if err := s.client.QuerySync(fmt.Sprintf(":SOUR1:FREQ:CW %.0f", freqHz)); err != nil {
		return fmt.Errorf("source frequency: %w", err)
	}
	if err := s.client.QuerySync(fmt.Sprintf(":SOUR1:POW:LEV:IMM:AMPL %.2f", initialPowerDBm)); err != nil {
		return fmt.Errorf("source power: %w", err)
	}
	if err := s.client.QuerySync(":OUTP1:STAT 1"); err != nil {
		return fmt.Errorf("source RF output: %w", err)
	}
	return nil
}

// SetPower updates the output power setpoint.
func (s *Source) SetPower(powerDBm float64) error {
	if err := s.client.QuerySync(fmt.Sprintf(":SOUR1:POW:LEV:IMM:AMPL %.2f", powerDBm)); err != nil {
		return fmt.Errorf("source power: %w", err)
	}
	return nil
}

// SetupTime reports how long initialization took.
func (s *Source) SetupTime() time.Duration { return s.setupTime }

// Release closes the SCPI session.
func (s *Source) Release() error {
	s.logger.Debug().Msg("releasing source")
	return s.client.Close()
}
