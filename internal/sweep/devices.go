package sweep

import (
	"time"

	"github.com/rjboer/rfsweep/internal/cal"
)

// EvmAclrResult holds one EVM+ACLR acquisition pair from the analyzer.
// Fields fetched from a corrupted instrument reply are NaN; the positional
// channel-power/lower/upper ordering is a protocol contract.
type EvmAclrResult struct {
	PowerDBm        float64
	EVMDB           float64
	EVMTime         time.Duration
	ChannelPowerDBm float64
	LowerACLRDB     float64
	UpperACLRDB     float64
	ACLRTime        time.Duration
}

// SignalSource abstracts the vector signal generator driving the DUT.
type SignalSource interface {
	// Configure pushes frequency, starting power, and the calibration power
	// offset, and enables RF output.
	Configure(freqHz, initialPowerDBm, offsetDB float64) error
	// SetPower updates the output power setpoint (used by the servo).
	SetPower(powerDBm float64) error
	SetupTime() time.Duration
	Release() error
}

// Analyzer abstracts the vector signal analyzer. Its measurement mode is
// global device state: both Measure entry points require the analyzer in
// EVM mode with noise-cancel averaging off, and guarantee the same on exit.
type Analyzer interface {
	Configure(freqHz, refLevelOffsetDB float64) error
	AutoLevel() error
	AutoEVM() error
	// MeasureEvmAclr runs the standard-averaged EVM acquisition followed by
	// an ACLR acquisition.
	MeasureEvmAclr(freqHz, refLevelOffsetDB, referencePowerDBm float64) (EvmAclrResult, error)
	// MeasureExtendedEvmAclr runs the noise-canceled variant with the given
	// averaging count.
	MeasureExtendedEvmAclr(freqHz, refLevelOffsetDB float64, averagingCount int) (EvmAclrResult, error)
	SetupTime() time.Duration
	Release() error
}

// PowerMeter abstracts the dual-channel power meter: channel 1 reads DUT
// input power, channel 2 reads DUT output power.
type PowerMeter interface {
	Configure(freqHz, inputOffsetDB, outputOffsetDB float64) error
	Measure() (inputDBm, outputDBm float64, err error)
	Release() error
}

// Calibration resolves a canonical frequency key to its offset record.
type Calibration interface {
	Lookup(keyGHz float64) (cal.Record, error)
}

// ResultSink receives the ordered record sequence when the sweep finishes,
// whether it completed or aborted.
type ResultSink interface {
	Flush(records []Record) error
}
