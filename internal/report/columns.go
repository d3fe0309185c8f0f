// Package report renders the sweep's record sequence into its persisted
// forms: an xlsx workbook with a statistics sheet, and a flat CSV.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/rjboer/rfsweep/internal/sweep"
)

var baseColumns = []string{
	"VSG Setup Time (s)",
	"VSA Setup Time (s)",
	"Center Frequency (GHz)",
	"Target Output Power (dBm)",
	"Servo Iterations",
	"Servo Converged",
	"Servo Settle Time (s)",
	"Corrected Input Power (dBm)",
	"Corrected Output Power (dBm)",
	"VSA Output Power (dBm)",
	"EVM (dB)",
	"EVM Measure Time (s)",
	"Channel Power (dBm)",
	"Lower Adjacent ACLR (dB)",
	"Upper Adjacent ACLR (dB)",
	"ACLR Measure Time (s)",
}

// extendedColumns returns the per-averaging-count column labels.
func extendedColumns(avg int) []string {
	return []string{
		fmt.Sprintf("Noise-Canceled EVM %d avg (dB)", avg),
		fmt.Sprintf("Noise-Canceled EVM Time %d avg (s)", avg),
		fmt.Sprintf("Noise-Canceled Channel Power %d avg (dBm)", avg),
		fmt.Sprintf("Noise-Canceled Lower Adjacent ACLR %d avg (dB)", avg),
		fmt.Sprintf("Noise-Canceled Upper Adjacent ACLR %d avg (dB)", avg),
		fmt.Sprintf("Noise-Canceled ACLR Time %d avg (s)", avg),
	}
}

// headerRow builds the full measurement header for the configured
// averaging counts, in report column order.
func headerRow(averages []int) []string {
	header := append([]string{}, baseColumns...)
	for _, avg := range averages {
		header = append(header, extendedColumns(avg)...)
	}
	return append(header, "Total Elapsed Time (s)")
}

// recordRow flattens one record into the header's column order.
func recordRow(rec sweep.Record, averages []int) []any {
	row := []any{
		seconds(rec.SourceSetupTime),
		seconds(rec.AnalyzerSetupTime),
		rec.FrequencyGHz,
		rec.TargetOutputDBm,
		rec.Servo.Iterations,
		rec.Servo.Converged,
		seconds(rec.Servo.SettleTime),
		rec.CorrectedInputDBm,
		rec.CorrectedOutputDBm,
		rec.Standard.PowerDBm,
		rec.Standard.EVMDB,
		seconds(rec.Standard.EVMTime),
		rec.Standard.ChannelPowerDBm,
		rec.Standard.LowerACLRDB,
		rec.Standard.UpperACLRDB,
		seconds(rec.Standard.ACLRTime),
	}
	for _, avg := range averages {
		ext, ok := rec.Extended[avg]
		if !ok {
			ext = sweep.EvmAclrResult{
				EVMDB:           math.NaN(),
				ChannelPowerDBm: math.NaN(),
				LowerACLRDB:     math.NaN(),
				UpperACLRDB:     math.NaN(),
			}
		}
		row = append(row,
			ext.EVMDB,
			seconds(ext.EVMTime),
			ext.ChannelPowerDBm,
			ext.LowerACLRDB,
			ext.UpperACLRDB,
			seconds(ext.ACLRTime),
		)
	}
	return append(row, seconds(rec.TotalElapsed))
}

// seconds renders a duration as seconds with millisecond resolution.
func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1e3) / 1e3
}
