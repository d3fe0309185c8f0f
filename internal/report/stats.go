package report

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rjboer/rfsweep/internal/sweep"
)

// statRow is one line of the statistics sheet.
type statRow struct {
	Metric string
	Value  float64
}

// statistics summarizes the record sequence: a test count, mean setup times,
// and min/max/mean per metric, in the measurement sheet's column order.
// NaN fields (degraded fetches) are excluded from each metric's series.
func statistics(records []sweep.Record, averages []int) []statRow {
	rows := []statRow{{Metric: "Number of Tests", Value: float64(len(records))}}

	series := func(pick func(sweep.Record) float64) []float64 {
		vals := make([]float64, 0, len(records))
		for _, r := range records {
			if v := pick(r); !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		return vals
	}
	meanOf := func(vals []float64) float64 {
		if len(vals) == 0 {
			return math.NaN()
		}
		return stat.Mean(vals, nil)
	}
	mean := func(name string, pick func(sweep.Record) float64) {
		rows = append(rows, statRow{Metric: name + " - Mean", Value: meanOf(series(pick))})
	}
	maxMinMean := func(name string, pick func(sweep.Record) float64) {
		vals := series(pick)
		maxV, minV := math.NaN(), math.NaN()
		if len(vals) > 0 {
			maxV = floats.Max(vals)
			minV = floats.Min(vals)
		}
		rows = append(rows,
			statRow{Metric: name + " - Max", Value: maxV},
			statRow{Metric: name + " - Min", Value: minV},
			statRow{Metric: name + " - Mean", Value: meanOf(vals)},
		)
	}

	mean("VSG Setup Time (s)", func(r sweep.Record) float64 { return seconds(r.SourceSetupTime) })
	mean("VSA Setup Time (s)", func(r sweep.Record) float64 { return seconds(r.AnalyzerSetupTime) })

	maxMinMean("Servo Iterations", func(r sweep.Record) float64 { return float64(r.Servo.Iterations) })
	maxMinMean("EVM (dB)", func(r sweep.Record) float64 { return r.Standard.EVMDB })
	maxMinMean("EVM Measure Time (s)", func(r sweep.Record) float64 { return seconds(r.Standard.EVMTime) })
	maxMinMean("Channel Power (dBm)", func(r sweep.Record) float64 { return r.Standard.ChannelPowerDBm })
	maxMinMean("Lower Adjacent ACLR (dB)", func(r sweep.Record) float64 { return r.Standard.LowerACLRDB })
	maxMinMean("Upper Adjacent ACLR (dB)", func(r sweep.Record) float64 { return r.Standard.UpperACLRDB })
	maxMinMean("ACLR Measure Time (s)", func(r sweep.Record) float64 { return seconds(r.Standard.ACLRTime) })

	for _, avg := range averages {
		avg := avg
		pickExt := func(get func(sweep.EvmAclrResult) float64) func(sweep.Record) float64 {
			return func(r sweep.Record) float64 {
				ext, ok := r.Extended[avg]
				if !ok {
					return math.NaN()
				}
				return get(ext)
			}
		}
		cols := extendedColumns(avg)
		picks := []func(sweep.Record) float64{
			pickExt(func(e sweep.EvmAclrResult) float64 { return e.EVMDB }),
			pickExt(func(e sweep.EvmAclrResult) float64 { return seconds(e.EVMTime) }),
			pickExt(func(e sweep.EvmAclrResult) float64 { return e.ChannelPowerDBm }),
			pickExt(func(e sweep.EvmAclrResult) float64 { return e.LowerACLRDB }),
			pickExt(func(e sweep.EvmAclrResult) float64 { return e.UpperACLRDB }),
			pickExt(func(e sweep.EvmAclrResult) float64 { return seconds(e.ACLRTime) }),
		}
		for i, col := range cols {
			maxMinMean(col, picks[i])
		}
	}

	return rows
}
