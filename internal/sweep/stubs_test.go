package sweep

import (
	"time"
)

// stubSource records every configure and setpoint push.
type stubSource struct {
	configures   []float64 // frequencies, Hz
	setpoints    []float64
	released     bool
	configureErr error
	setPowerErr  error
	releaseErr   error
}

func (s *stubSource) Configure(freqHz, initialPowerDBm, offsetDB float64) error {
	if s.configureErr != nil {
		return s.configureErr
	}
	s.configures = append(s.configures, freqHz)
	return nil
}

func (s *stubSource) SetPower(powerDBm float64) error {
	if s.setPowerErr != nil {
		return s.setPowerErr
	}
	s.setpoints = append(s.setpoints, powerDBm)
	return nil
}

func (s *stubSource) SetupTime() time.Duration { return 100 * time.Millisecond }

func (s *stubSource) Release() error {
	s.released = true
	return s.releaseErr
}

// stubMeter replays a sequence of output-power readings; the last one
// repeats once the sequence is exhausted.
type stubMeter struct {
	inputDBm   float64
	outputs    []float64
	reads      int
	configures []float64
	released   bool
	measureErr error
}

func (m *stubMeter) Configure(freqHz, inputOffsetDB, outputOffsetDB float64) error {
	m.configures = append(m.configures, freqHz)
	return nil
}

func (m *stubMeter) Measure() (float64, float64, error) {
	if m.measureErr != nil {
		return 0, 0, m.measureErr
	}
	i := m.reads
	if i >= len(m.outputs) {
		i = len(m.outputs) - 1
	}
	m.reads++
	return m.inputDBm, m.outputs[i], nil
}

func (m *stubMeter) Release() error {
	m.released = true
	return nil
}

// stubAnalyzer returns canned results and records the measurement order.
type stubAnalyzer struct {
	standard    EvmAclrResult
	extended    EvmAclrResult
	measured    []float64 // frequencies of standard measurements, Hz
	extAverages []int
	released    bool
	measureErr  error
	failAtCall  int // 1-based standard-measurement index to fail at, 0 = never
	calls       int
}

func (a *stubAnalyzer) Configure(freqHz, refLevelOffsetDB float64) error { return nil }
func (a *stubAnalyzer) AutoLevel() error                                 { return nil }
func (a *stubAnalyzer) AutoEVM() error                                   { return nil }

func (a *stubAnalyzer) MeasureEvmAclr(freqHz, refLevelOffsetDB, referencePowerDBm float64) (EvmAclrResult, error) {
	a.calls++
	if a.failAtCall > 0 && a.calls >= a.failAtCall {
		return EvmAclrResult{}, a.measureErr
	}
	a.measured = append(a.measured, freqHz)
	return a.standard, nil
}

func (a *stubAnalyzer) MeasureExtendedEvmAclr(freqHz, refLevelOffsetDB float64, averagingCount int) (EvmAclrResult, error) {
	a.extAverages = append(a.extAverages, averagingCount)
	return a.extended, nil
}

func (a *stubAnalyzer) SetupTime() time.Duration { return 200 * time.Millisecond }

func (a *stubAnalyzer) Release() error {
	a.released = true
	return nil
}

// memorySink captures the flushed record sequence.
type memorySink struct {
	records []Record
	flushed bool
	err     error
}

func (s *memorySink) Flush(records []Record) error {
	s.flushed = true
	s.records = records
	return s.err
}
