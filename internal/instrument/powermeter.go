package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rjboer/rfsweep/scpi"
)

// PowerMeterConfig configures the dual-channel power meter backend.
type PowerMeterConfig struct {
	Addr    string
	Timeout time.Duration
}

// PowerMeter drives the dual-channel power meter. Sensor 1 measures DUT
// input power, sensor 2 measures DUT output power.
type PowerMeter struct {
	client    *scpi.Client
	logger    zerolog.Logger
	setupTime time.Duration
}

// NewPowerMeter connects to the power meter. The meter needs no reset or
// state recall; it measures continuously once the offsets are configured.
func NewPowerMeter(ctx context.Context, cfg PowerMeterConfig) (*PowerMeter, error) {
	logger := log.With().Str("instrument", "power meter").Str("addr", cfg.Addr).Logger()
	start := time.Now()

	client, err := scpi.Dial(ctx, cfg.Addr, scpi.WithTimeout(cfg.Timeout), scpi.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("power meter init: %w", err)
	}

	m := &PowerMeter{client: client, logger: logger, setupTime: time.Since(start)}
	logger.Info().Dur("setup_time", m.setupTime).Msg("power meter initialized")
	return m, nil
}

// Configure sets both sensor frequencies and enables the per-channel
// correction offsets from the calibration record.
func (m *PowerMeter) Configure(freqHz, inputOffsetDB, outputOffsetDB float64) error {
	cmds := []string{
		fmt.Sprintf(":SENS1:FREQ %.0f", freqHz),
		fmt.Sprintf(":SENS2:FREQ %.0f", freqHz),
		fmt.Sprintf("CALCulate1:CHANnel1:CORRection:OFFSet:MAGNitude %.3f", inputOffsetDB),
		"CALCulate1:CHANnel1:CORRection:OFFSet:STATe ON",
		fmt.Sprintf("CALCulate2:CHANnel1:CORRection:OFFSet:MAGNitude %.3f", outputOffsetDB),
		"CALCulate2:CHANnel1:CORRection:OFFSet:STATe ON",
	}
	for _, cmd := range cmds {
		if err := m.client.Write(cmd); err != nil {
			return fmt.Errorf("power meter configure: %w", err)
		}
	}
	return nil
}

// Measure reads the corrected input and output power in dBm.
func (m *PowerMeter) Measure() (inputDBm, outputDBm float64, err error) {
	inputDBm, err = m.client.QueryFloat(":MEAS1?")
	if err != nil {
		return 0, 0, fmt.Errorf("power meter input reading: %w", err)
	}
	outputDBm, err = m.client.QueryFloat(":MEAS2?")
	if err != nil {
		return 0, 0, fmt.Errorf("power meter output reading: %w", err)
	}
	return inputDBm, outputDBm, nil
}

// SetupTime reports how long initialization took.
func (m *PowerMeter) SetupTime() time.Duration { return m.setupTime }

// Release closes the SCPI session.
func (m *PowerMeter) Release() error {
	m.logger.Debug().Msg("releasing power meter")
	return m.client.Close()
}
