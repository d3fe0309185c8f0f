package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/rjboer/rfsweep/internal/sweep"
)

// CSVSink writes the measurement rows as a flat CSV with the same column
// order as the workbook's Measurements sheet.
type CSVSink struct {
	path     string
	averages []int
}

// NewCSVSink builds a sink writing to path.
func NewCSVSink(path string, averages []int) *CSVSink {
	return &CSVSink{path: path, averages: averages}
}

// Flush writes the header and one row per record.
func (s *CSVSink) Flush(records []sweep.Record) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headerRow(s.averages)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(formatRow(recordRow(rec, s.averages))); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv %s: %w", s.path, err)
	}

	log.Info().Str("path", s.path).Int("records", len(records)).Msg("csv saved")
	return nil
}

func formatRow(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch tv := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(tv, 'f', -1, 64)
		case int:
			out[i] = strconv.Itoa(tv)
		case bool:
			out[i] = strconv.FormatBool(tv)
		default:
			out[i] = fmt.Sprint(tv)
		}
	}
	return out
}

// MultiSink fans one flush out to several sinks, keeping the first error.
type MultiSink []sweep.ResultSink

// Flush delivers the records to every sink; a failing sink does not stop
// the others.
func (m MultiSink) Flush(records []sweep.Record) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Flush(records); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
