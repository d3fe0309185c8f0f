// Package cal loads the per-frequency calibration table and resolves
// canonical frequency keys to correction offsets.
package cal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// ErrNotFound indicates no calibration record exists for a frequency key.
var ErrNotFound = errors.New("no calibration record for frequency")

// Expected header names in the calibration CSV.
const (
	colFrequency      = "Center Frequency (GHz)"
	colSourceOffset   = "VSG Offset (dB)"
	colAnalyzerOffset = "VSA Offset (dB)"
	colInputOffset    = "Input Power Offset (dB)"
	colOutputOffset   = "Output Power Offset (dB)"
)

// Record holds the four correction offsets for one frequency key.
type Record struct {
	KeyGHz           float64
	SourceOffsetDB   float64
	AnalyzerOffsetDB float64
	InputOffsetDB    float64
	OutputOffsetDB   float64
}

// Table is an immutable calibration lookup, keyed by the canonical
// 3-decimal GHz key. Matching is exact on the rounded key; there is no
// nearest-neighbor or interpolation fallback.
type Table struct {
	byKey map[float64]Record
	keys  []float64
}

// roundKey normalizes a GHz value to the canonical 3-decimal key.
func roundKey(ghz float64) float64 {
	return math.Round(ghz*1e3) / 1e3
}

// New builds a table from records. When two records share a key, the first
// wins; later duplicates are dropped. This mirrors the table-loading policy,
// it is not an error.
func New(records []Record) *Table {
	t := &Table{byKey: make(map[float64]Record, len(records))}
	for _, r := range records {
		r.KeyGHz = roundKey(r.KeyGHz)
		if _, dup := t.byKey[r.KeyGHz]; dup {
			log.Debug().Float64("freq_ghz", r.KeyGHz).Msg("duplicate calibration row ignored (first match wins)")
			continue
		}
		t.byKey[r.KeyGHz] = r
		t.keys = append(t.keys, r.KeyGHz)
	}
	return t
}

// Load reads the calibration CSV. A missing column or a cell that does not
// parse as a number is a fatal load error: the sweep must abort before any
// instrument is touched rather than run against a broken table.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calibration table: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read calibration table %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("calibration table %s is empty", path)
	}

	idx := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		idx[name] = i
	}
	for _, required := range []string{colFrequency, colSourceOffset, colAnalyzerOffset, colInputOffset, colOutputOffset} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("calibration table %s missing column %q", path, required)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec, err := parseRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("calibration table %s row %d: %w", path, n+2, err)
		}
		records = append(records, rec)
	}

	t := New(records)
	log.Info().Int("records", t.Len()).Floats64("freqs_ghz", t.Keys()).Msg("calibration table loaded")
	return t, nil
}

func parseRow(row []string, idx map[string]int) (Record, error) {
	field := func(col string) (float64, error) {
		i := idx[col]
		if i >= len(row) {
			return 0, fmt.Errorf("missing value for %q", col)
		}
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q for %q: %w", row[i], col, err)
		}
		return v, nil
	}

	var rec Record
	var err error
	if rec.KeyGHz, err = field(colFrequency); err != nil {
		return Record{}, err
	}
	if rec.SourceOffsetDB, err = field(colSourceOffset); err != nil {
		return Record{}, err
	}
	if rec.AnalyzerOffsetDB, err = field(colAnalyzerOffset); err != nil {
		return Record{}, err
	}
	if rec.InputOffsetDB, err = field(colInputOffset); err != nil {
		return Record{}, err
	}
	if rec.OutputOffsetDB, err = field(colOutputOffset); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Lookup resolves a canonical key to its record, or ErrNotFound.
func (t *Table) Lookup(keyGHz float64) (Record, error) {
	rec, ok := t.byKey[roundKey(keyGHz)]
	if !ok {
		return Record{}, fmt.Errorf("%w: %.3f GHz", ErrNotFound, keyGHz)
	}
	return rec, nil
}

// Len returns the number of distinct calibration keys.
func (t *Table) Len() int { return len(t.byKey) }

// Keys returns the calibration keys in load order.
func (t *Table) Keys() []float64 {
	out := make([]float64, len(t.keys))
	copy(out, t.keys)
	return out
}
