package instrument

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rjboer/rfsweep/internal/sweep"
	"github.com/rjboer/rfsweep/scpi"
)

// measurementMode is the analyzer's active measurement application. It is
// global device state: every choreography entry point below states the mode
// it requires on entry and restores the EVM baseline before returning.
type measurementMode int

const (
	modeEVM measurementMode = iota
	modeACLR
)

// AnalyzerConfig configures the vector signal analyzer backend.
type AnalyzerConfig struct {
	Addr string
	// DemodState is the saved analyzer state loaded after reset; it carries
	// the 5G NR demodulation setup matched to the source waveform.
	DemodState string
	Timeout    time.Duration
}

// Analyzer drives the vector signal analyzer through the EVM and ACLR
// measurement choreography.
type Analyzer struct {
	client    *scpi.Client
	logger    zerolog.Logger
	setupTime time.Duration

	mode        measurementMode
	noiseCancel bool
}

// NewAnalyzer connects to the analyzer, resets it, loads the demod state,
// runs the initial auto adjustments, and arms the generator-coupled
// continuous acquisition settings.
func NewAnalyzer(ctx context.Context, cfg AnalyzerConfig) (*Analyzer, error) {
	logger := log.With().Str("instrument", "analyzer").Str("addr", cfg.Addr).Logger()
	start := time.Now()

	client, err := scpi.Dial(ctx, cfg.Addr, scpi.WithTimeout(cfg.Timeout), scpi.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("analyzer init: %w", err)
	}

	a := &Analyzer{client: client, logger: logger, mode: modeEVM}

	setup := []string{
		"*RST",
		"MMEM:SEL:ITEM:HWS ON",
		fmt.Sprintf(`MMEM:LOAD:STAT 1,"%s"`, cfg.DemodState),
		":SENS:ADJ:LEV",
		":SENS:ADJ:EVM",
		"CONF:GEN:CONN:STAT ON",
		"CONF:GEN:CONT:STAT ON",
		"CONF:GEN:RFO:STAT ON",
		"CONF:SETT:RF",
		"CONF:SETT:NR5G",
		"INIT:IMM",
	}
	for _, cmd := range setup {
		if err := client.QuerySync(cmd); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("analyzer setup: %w", err)
		}
	}

	a.setupTime = time.Since(start)
	logger.Info().Dur("setup_time", a.setupTime).Msg("analyzer initialized")
	return a, nil
}

// Configure tunes the center frequency and applies the calibration
// reference-level offset.
func (a *Analyzer) Configure(freqHz, refLevelOffsetDB float64) error {
	if err := a.client.QuerySync(fmt.Sprintf(":SENS:FREQ:CENT %.0f", freqHz)); err != nil {
		return fmt.Errorf("analyzer center frequency: %w", err)
	}
	if err := a.client.Write(fmt.Sprintf(":DISP:WIND:TRAC:Y:SCAL:RLEV:OFFS %.2f", refLevelOffsetDB)); err != nil {
		return fmt.Errorf("analyzer reference-level offset: %w", err)
	}
	return nil
}

// AutoLevel runs the analyzer's automatic level adjustment.
func (a *Analyzer) AutoLevel() error {
	if err := a.client.QuerySync(":SENS:ADJ:LEV"); err != nil {
		return fmt.Errorf("analyzer auto level: %w", err)
	}
	return nil
}

// AutoEVM runs the analyzer's automatic EVM range adjustment.
func (a *Analyzer) AutoEVM() error {
	if err := a.client.QuerySync(":SENS:ADJ:EVM"); err != nil {
		return fmt.Errorf("analyzer auto EVM: %w", err)
	}
	return nil
}

// MeasureEvmAclr runs the standard-averaged protocol for one frequency:
// retune, auto-adjust, acquire once and fetch averaged power and EVM, then
// switch to ACLR, acquire, fetch the channel/lower/upper triple, and switch
// back to EVM mode. Requires the analyzer in EVM mode on entry and leaves
// it there on exit. referencePowerDBm is the servo-leveled DUT output; the
// demod state pins the reference level, so it is informational here.
func (a *Analyzer) MeasureEvmAclr(freqHz, refLevelOffsetDB, referencePowerDBm float64) (sweep.EvmAclrResult, error) {
	var res sweep.EvmAclrResult
	if err := a.requireBaseline("MeasureEvmAclr"); err != nil {
		return res, err
	}

	if err := a.Configure(freqHz, refLevelOffsetDB); err != nil {
		return res, err
	}
	prep := []string{
		"CONF:SETT:NR5G",
		":SENS:ADJ:LEV",
		":SENS:ADJ:EVM",
		":DISP:WIND3:SUBW1:TRAC:Y:SCAL:AUTO ALL",
	}
	for _, cmd := range prep {
		if err := a.client.QuerySync(cmd); err != nil {
			return res, fmt.Errorf("analyzer EVM preparation: %w", err)
		}
	}

	evmStart := time.Now()
	if err := a.client.Write("INIT:IMM; *WAI"); err != nil {
		return res, fmt.Errorf("analyzer EVM acquisition: %w", err)
	}
	power, err := a.client.QueryFloat("FETC:CC1:ISRC:FRAM:SUMM:POW:AVERage?")
	if err != nil {
		return res, fmt.Errorf("fetch analyzer power: %w", err)
	}
	evm, err := a.client.QueryFloat("FETC:CC1:ISRC:FRAM:SUMM:EVM:ALL:AVERage?")
	if err != nil {
		return res, fmt.Errorf("fetch EVM: %w", err)
	}
	res.PowerDBm = power
	res.EVMDB = evm
	res.EVMTime = time.Since(evmStart)

	chanPow, lower, upper, aclrTime, err := a.measureACLR(false)
	if err != nil {
		return res, err
	}
	res.ChannelPowerDBm = chanPow
	res.LowerACLRDB = lower
	res.UpperACLRDB = upper
	res.ACLRTime = aclrTime

	a.logger.Info().
		Float64("power_dbm", res.PowerDBm).
		Float64("evm_db", res.EVMDB).
		Float64("chan_power_dbm", res.ChannelPowerDBm).
		Float64("lower_aclr_db", res.LowerACLRDB).
		Float64("upper_aclr_db", res.UpperACLRDB).
		Msg("standard EVM/ACLR measured")
	return res, nil
}

// MeasureExtendedEvmAclr runs the noise-canceled variant: enable noise-cancel
// averaging with the given count, acquire and fetch EVM, then measure ACLR
// with noise correction on. Requires the EVM baseline (noise-cancel off) on
// entry and restores it on exit, so the next call — a different count or the
// next frequency's standard measurement — starts from a known state.
func (a *Analyzer) MeasureExtendedEvmAclr(freqHz, refLevelOffsetDB float64, averagingCount int) (sweep.EvmAclrResult, error) {
	var res sweep.EvmAclrResult
	if err := a.requireBaseline("MeasureExtendedEvmAclr"); err != nil {
		return res, err
	}

	evmStart := time.Now()
	if err := a.client.QuerySync("SENS:ADJ:NCAN:AVER:STAT ON"); err != nil {
		return res, fmt.Errorf("enable noise-cancel averaging: %w", err)
	}
	a.noiseCancel = true
	if err := a.client.QuerySync(fmt.Sprintf("SENS:ADJ:NCAN:AVER:COUN %d", averagingCount)); err != nil {
		return res, fmt.Errorf("set noise-cancel averaging count: %w", err)
	}
	if err := a.client.QuerySync("INIT:IMM"); err != nil {
		return res, fmt.Errorf("noise-cancel acquisition: %w", err)
	}
	evm, err := a.client.QueryFloat("FETC:CC1:ISRC:FRAM:SUMM:EVM:ALL:AVERage?")
	if err != nil {
		return res, fmt.Errorf("fetch noise-canceled EVM: %w", err)
	}
	res.PowerDBm = math.NaN() // no separate power fetch in this variant
	res.EVMDB = evm
	res.EVMTime = time.Since(evmStart)

	chanPow, lower, upper, aclrTime, err := a.measureACLR(true)
	if err != nil {
		return res, err
	}
	res.ChannelPowerDBm = chanPow
	res.LowerACLRDB = lower
	res.UpperACLRDB = upper
	res.ACLRTime = aclrTime

	if err := a.client.QuerySync("SENS:ADJ:NCAN:AVER:STAT OFF"); err != nil {
		return res, fmt.Errorf("disable noise-cancel averaging: %w", err)
	}
	a.noiseCancel = false

	a.logger.Info().
		Int("averages", averagingCount).
		Float64("evm_db", res.EVMDB).
		Float64("chan_power_dbm", res.ChannelPowerDBm).
		Msg("noise-canceled EVM/ACLR measured")
	return res, nil
}

// measureACLR switches to the ACLR measurement, acquires, fetches the
// positional channel-power/lower/upper triple, and switches back to EVM.
func (a *Analyzer) measureACLR(noiseCorrection bool) (chanPow, lower, upper float64, elapsed time.Duration, err error) {
	start := time.Now()
	if err = a.client.Write("CONF:NR5G:MEAS ACLR"); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("switch to ACLR measurement: %w", err)
	}
	a.mode = modeACLR
	if noiseCorrection {
		if err = a.client.QuerySync("SENS:POW:NCOR ON"); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("enable noise correction: %w", err)
		}
	}
	if err = a.client.Write("INIT:IMM;*WAI"); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("ACLR acquisition: %w", err)
	}
	payload, err := a.client.Query("CALC:MARK:FUNC:POW:RES? ACP")
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("fetch ACLR result: %w", err)
	}
	chanPow, lower, upper = parseACPTriple(payload)
	elapsed = time.Since(start)

	if err = a.client.Write("CONF:NR5G:MEAS EVM"); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("switch back to EVM measurement: %w", err)
	}
	a.mode = modeEVM
	return chanPow, lower, upper, elapsed, nil
}

// parseACPTriple decodes the ACP power result list. The element order is a
// fixed protocol contract: 0 = channel power, 1 = lower adjacent, 2 = upper
// adjacent. A field that does not parse yields NaN for that field only.
func parseACPTriple(payload string) (chanPow, lower, upper float64) {
	fields := strings.Split(payload, ",")
	at := func(i int) float64 {
		if i >= len(fields) {
			return math.NaN()
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}
	return at(0), at(1), at(2)
}

// requireBaseline rejects calls made outside the EVM/no-noise-cancel
// baseline. Every protocol entry point restores this state on exit, so a
// violation means a previous call was interrupted mid-choreography.
func (a *Analyzer) requireBaseline(op string) error {
	if a.mode != modeEVM {
		return fmt.Errorf("%s: analyzer not in EVM mode", op)
	}
	if a.noiseCancel {
		return fmt.Errorf("%s: noise-cancel averaging still enabled", op)
	}
	return nil
}

// SetupTime reports how long initialization took.
func (a *Analyzer) SetupTime() time.Duration { return a.setupTime }

// Release closes the SCPI session.
func (a *Analyzer) Release() error {
	a.logger.Debug().Msg("releasing analyzer")
	return a.client.Close()
}
