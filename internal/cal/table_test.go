package cal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cal.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validTable = `Center Frequency (GHz),VSG Offset (dB),VSA Offset (dB),Input Power Offset (dB),Output Power Offset (dB)
3.500,1.2,-0.5,10.1,20.2
3.501,1.3,-0.6,10.2,20.3
3.502,1.4,-0.7,10.3,20.4
`

func TestLoadAndLookup(t *testing.T) {
	table, err := Load(writeTable(t, validTable))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	rec, err := table.Lookup(3.501)
	require.NoError(t, err)
	assert.Equal(t, 3.501, rec.KeyGHz)
	assert.Equal(t, 1.3, rec.SourceOffsetDB)
	assert.Equal(t, -0.6, rec.AnalyzerOffsetDB)
	assert.Equal(t, 10.2, rec.InputOffsetDB)
	assert.Equal(t, 20.3, rec.OutputOffsetDB)

	_, err = table.Lookup(3.6)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupRoundsKey(t *testing.T) {
	table, err := Load(writeTable(t, validTable))
	require.NoError(t, err)

	// A key off by floating drift still matches exactly after rounding.
	rec, err := table.Lookup(3.5009999999)
	require.NoError(t, err)
	assert.Equal(t, 3.501, rec.KeyGHz)
}

func TestLoadMissingColumn(t *testing.T) {
	content := `Center Frequency (GHz),VSG Offset (dB),VSA Offset (dB),Input Power Offset (dB)
3.500,1.2,-0.5,10.1
`
	_, err := Load(writeTable(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Output Power Offset (dB)")
}

func TestLoadNonNumericFrequency(t *testing.T) {
	content := `Center Frequency (GHz),VSG Offset (dB),VSA Offset (dB),Input Power Offset (dB),Output Power Offset (dB)
oops,1.2,-0.5,10.1,20.2
`
	_, err := Load(writeTable(t, content))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestDuplicateFirstMatchWins(t *testing.T) {
	content := `Center Frequency (GHz),VSG Offset (dB),VSA Offset (dB),Input Power Offset (dB),Output Power Offset (dB)
3.500,1.0,-0.5,10.0,20.0
3.500,9.9,-9.9,99.9,99.9
`
	table, err := Load(writeTable(t, content))
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	rec, err := table.Lookup(3.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.SourceOffsetDB)
}

func TestColumnOrderIndependent(t *testing.T) {
	content := `VSA Offset (dB),Center Frequency (GHz),Output Power Offset (dB),Input Power Offset (dB),VSG Offset (dB)
-0.5,3.500,20.0,10.0,1.0
`
	table, err := Load(writeTable(t, content))
	require.NoError(t, err)

	rec, err := table.Lookup(3.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.SourceOffsetDB)
	assert.Equal(t, -0.5, rec.AnalyzerOffsetDB)
}
