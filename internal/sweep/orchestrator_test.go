package sweep

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/rfsweep/internal/cal"
)

func testConfig() Config {
	return Config{
		StartHz:            3.5e9,
		StopHz:             3.502e9,
		StepHz:             1e6,
		TargetOutputDBm:    10,
		ToleranceDB:        0.05,
		ExpectedGainDB:     20,
		ExtendedAverages:   []int{5, 10},
		MaxServoIterations: 10,
	}
}

func calFor(keys ...float64) *cal.Table {
	records := make([]cal.Record, len(keys))
	for i, k := range keys {
		records[i] = cal.Record{
			KeyGHz:           k,
			SourceOffsetDB:   1.0,
			AnalyzerOffsetDB: -0.5,
			InputOffsetDB:    10.0,
			OutputOffsetDB:   20.0,
		}
	}
	return cal.New(records)
}

func newTestBench() (*stubSource, *stubAnalyzer, *stubMeter, *memorySink) {
	src := &stubSource{}
	analyzer := &stubAnalyzer{
		standard: EvmAclrResult{
			PowerDBm:        9.9,
			EVMDB:           -38.5,
			EVMTime:         1 * time.Second,
			ChannelPowerDBm: -10.0,
			LowerACLRDB:     -45.2,
			UpperACLRDB:     -44.8,
			ACLRTime:        2 * time.Second,
		},
		extended: EvmAclrResult{EVMDB: -40.1, ChannelPowerDBm: -10.1, LowerACLRDB: -46.0, UpperACLRDB: -45.5},
	}
	meter := &stubMeter{inputDBm: -9.8, outputs: []float64{10.0}}
	sink := &memorySink{}
	return src, analyzer, meter, sink
}

func TestSweepEndToEnd(t *testing.T) {
	src, analyzer, meter, sink := newTestBench()
	orch, err := NewOrchestrator(testConfig(), calFor(3.5, 3.501, 3.502), src, analyzer, meter, sink)
	require.NoError(t, err)

	require.NoError(t, orch.Run())

	require.True(t, sink.flushed)
	require.Len(t, sink.records, 3)

	wantKeys := []float64{3.5, 3.501, 3.502}
	for i, rec := range sink.records {
		assert.Equal(t, wantKeys[i], rec.FrequencyGHz)
		assert.GreaterOrEqual(t, rec.Servo.Iterations, 1)
		assert.LessOrEqual(t, rec.Servo.Iterations, 10)
		assert.True(t, rec.Servo.Converged)
		assert.Equal(t, 10.0, rec.TargetOutputDBm)
		assert.Equal(t, -9.8, rec.CorrectedInputDBm)
		assert.Equal(t, 10.0, rec.CorrectedOutputDBm)
		assert.Equal(t, -38.5, rec.Standard.EVMDB)
		require.Len(t, rec.Extended, 2)
		assert.Equal(t, -40.1, rec.Extended[5].EVMDB)
		assert.Equal(t, -40.1, rec.Extended[10].EVMDB)
	}

	// Cold configure plus one configure per point.
	assert.Len(t, src.configures, 4)
	assert.Len(t, meter.configures, 4)
	assert.Equal(t, []int{5, 10, 5, 10, 5, 10}, analyzer.extAverages)

	assert.True(t, src.released)
	assert.True(t, analyzer.released)
	assert.True(t, meter.released)
}

func TestSweepDedupByCanonicalKey(t *testing.T) {
	// 200 kHz steps collapse onto repeated 3-decimal GHz keys; only the
	// first occurrence of each key is measured.
	cfg := testConfig()
	cfg.StartHz = 3.5e9
	cfg.StopHz = 3.5008e9
	cfg.StepHz = 2e5

	src, analyzer, meter, sink := newTestBench()
	orch, err := NewOrchestrator(cfg, calFor(3.5, 3.501), src, analyzer, meter, sink)
	require.NoError(t, err)

	require.NoError(t, orch.Run())
	require.Len(t, sink.records, 2)
	assert.Equal(t, 3.5, sink.records[0].FrequencyGHz)
	assert.Equal(t, 3.501, sink.records[1].FrequencyGHz)
}

func TestSweepSkipsUnmatchedFrequency(t *testing.T) {
	src, analyzer, meter, sink := newTestBench()
	// No record for 3.501; the point is skipped, the sweep continues.
	orch, err := NewOrchestrator(testConfig(), calFor(3.5, 3.502), src, analyzer, meter, sink)
	require.NoError(t, err)

	require.NoError(t, orch.Run())
	require.Len(t, sink.records, 2)
	assert.Equal(t, 3.5, sink.records[0].FrequencyGHz)
	assert.Equal(t, 3.502, sink.records[1].FrequencyGHz)
}

func TestSweepFirstFrequencyUnmatchedIsFatal(t *testing.T) {
	src, analyzer, meter, sink := newTestBench()
	orch, err := NewOrchestrator(testConfig(), calFor(3.501, 3.502), src, analyzer, meter, sink)
	require.NoError(t, err)

	err = orch.Run()
	assert.ErrorIs(t, err, ErrNoCalibration)

	// Finalize still runs: instruments released, empty flush delivered.
	assert.True(t, src.released)
	assert.True(t, analyzer.released)
	assert.True(t, meter.released)
	assert.True(t, sink.flushed)
	assert.Empty(t, sink.records)
}

func TestSweepTransportErrorAbortsButFlushesPartial(t *testing.T) {
	boom := errors.New("connection reset")
	src, analyzer, meter, sink := newTestBench()
	analyzer.measureErr = boom
	analyzer.failAtCall = 2 // first point succeeds, second dies

	orch, err := NewOrchestrator(testConfig(), calFor(3.5, 3.501, 3.502), src, analyzer, meter, sink)
	require.NoError(t, err)

	err = orch.Run()
	assert.ErrorIs(t, err, boom)

	require.True(t, sink.flushed)
	require.Len(t, sink.records, 1)
	assert.Equal(t, 3.5, sink.records[0].FrequencyGHz)
	assert.True(t, src.released)
	assert.True(t, analyzer.released)
	assert.True(t, meter.released)
}

func TestSweepNonConvergenceIsRecordedNotFatal(t *testing.T) {
	src, analyzer, meter, sink := newTestBench()
	meter.outputs = []float64{5.0} // never reaches target

	orch, err := NewOrchestrator(testConfig(), calFor(3.5, 3.501, 3.502), src, analyzer, meter, sink)
	require.NoError(t, err)

	require.NoError(t, orch.Run())
	require.Len(t, sink.records, 3)
	for _, rec := range sink.records {
		assert.Equal(t, 10, rec.Servo.Iterations)
		assert.False(t, rec.Servo.Converged)
	}
}

func TestFinalizeReleaseFailureDoesNotSuppressOthers(t *testing.T) {
	boom := errors.New("socket already closed")
	src, analyzer, meter, sink := newTestBench()
	src.releaseErr = boom

	orch, err := NewOrchestrator(testConfig(), calFor(3.5, 3.501, 3.502), src, analyzer, meter, sink)
	require.NoError(t, err)

	err = orch.Run()
	assert.ErrorIs(t, err, boom)
	assert.True(t, analyzer.released)
	assert.True(t, meter.released)
	assert.True(t, sink.flushed)
	assert.Len(t, sink.records, 3)
}

func TestNewOrchestratorRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StepHz = 0
	src, analyzer, meter, sink := newTestBench()
	_, err := NewOrchestrator(cfg, calFor(3.5), src, analyzer, meter, sink)
	assert.ErrorIs(t, err, ErrInvalidStep)
}
