package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/rjboer/rfsweep/internal/sweep"
)

const (
	measurementsSheet = "Measurements"
	statisticsSheet   = "Statistics"
)

// WorkbookSink writes the campaign results to an xlsx workbook: one
// Measurements sheet with a row per record, and — when any records exist —
// a Statistics sheet with mean rows highlighted.
type WorkbookSink struct {
	path     string
	averages []int
}

// NewWorkbookSink builds a sink writing to path, with extended-averaging
// columns for the given counts in order.
func NewWorkbookSink(path string, averages []int) *WorkbookSink {
	return &WorkbookSink{path: path, averages: averages}
}

// Flush renders and saves the workbook. An empty record sequence still
// produces a workbook, just without derived statistics.
func (s *WorkbookSink) Flush(records []sweep.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", measurementsSheet); err != nil {
		return fmt.Errorf("rename measurements sheet: %w", err)
	}

	header := headerRow(s.averages)
	if err := s.setRow(f, measurementsSheet, 1, stringsToAny(header)); err != nil {
		return err
	}
	for i, rec := range records {
		if err := s.setRow(f, measurementsSheet, i+2, recordRow(rec, s.averages)); err != nil {
			return err
		}
	}

	if len(records) > 0 {
		if err := s.writeStatistics(f, records); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("no records collected, skipping statistics sheet")
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	log.Info().Str("path", s.path).Int("records", len(records)).Msg("workbook saved")
	return nil
}

func (s *WorkbookSink) writeStatistics(f *excelize.File, records []sweep.Record) error {
	if _, err := f.NewSheet(statisticsSheet); err != nil {
		return fmt.Errorf("create statistics sheet: %w", err)
	}

	meanStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFFF00"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create mean style: %w", err)
	}

	if err := s.setRow(f, statisticsSheet, 1, []any{"Metric", "Value"}); err != nil {
		return err
	}
	for i, row := range statistics(records, s.averages) {
		n := i + 2
		if err := s.setRow(f, statisticsSheet, n, []any{row.Metric, row.Value}); err != nil {
			return err
		}
		if strings.Contains(row.Metric, "Mean") {
			if err := f.SetCellStyle(statisticsSheet, fmt.Sprintf("A%d", n), fmt.Sprintf("B%d", n), meanStyle); err != nil {
				return fmt.Errorf("style statistics row %d: %w", n, err)
			}
		}
	}
	return nil
}

func (s *WorkbookSink) setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d coordinates: %w", row, err)
	}
	sanitized := make([]any, len(values))
	for i, v := range values {
		// xlsx has no NaN representation; degraded fields become text.
		if fv, ok := v.(float64); ok && math.IsNaN(fv) {
			sanitized[i] = "NaN"
			continue
		}
		sanitized[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &sanitized); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
