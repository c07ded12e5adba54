package record

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(n int) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = "1.0000000000000000E+00"
	}
	return strings.Join(fields, "  ")
}

func TestFort10Width(t *testing.T) {
	assert.Equal(t, 60, Fort10.Width())
	assert.Equal(t, "turn_max", Fort10.Names()[0])

	f, err := Lookup("fort10")
	require.NoError(t, err)
	assert.Equal(t, Fort10.Width(), f.Width())

	_, err = Lookup("fort11")
	assert.Error(t, err)
}

func TestScannerValidRows(t *testing.T) {
	input := line(60) + "\n" + line(60) + "\n"
	sc := NewScanner(strings.NewReader(input), Fort10, 7, 123.5)

	var rows int
	for sc.Next() {
		rows++
		row := sc.Row()
		require.Len(t, row, 63)
		assert.Equal(t, int64(7), row[0])
		assert.Equal(t, int64(rows), row[1])
		assert.Equal(t, 123.5, row[62])
		assert.True(t, sc.Valid())
		assert.Equal(t, int64(1), row[2])
	}

	require.NoError(t, sc.Err())
	assert.Equal(t, 2, rows)
	assert.False(t, sc.Failed())
	assert.False(t, sc.Next())
}

func TestScannerSentinel(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 100; i++ {
		if i == 50 {
			b.WriteString(line(58))
		} else {
			b.WriteString(line(60))
		}
		b.WriteString("\n")
	}

	sc := NewScanner(strings.NewReader(b.String()), Fort10, 3, 1)

	var rows int
	for sc.Next() {
		rows++
		row := sc.Row()
		require.Len(t, row, 63)
		assert.Equal(t, int64(rows), row[1])

		if rows == 50 {
			assert.False(t, sc.Valid())
			assert.Contains(t, sc.Reason(), "found 58")
			for _, v := range row[2:62] {
				assert.Nil(t, v)
			}
			assert.Equal(t, int64(3), row[0])
			assert.Equal(t, float64(1), row[62])
		} else {
			assert.True(t, sc.Valid())
		}
	}

	require.NoError(t, sc.Err())
	assert.Equal(t, 100, rows)
	assert.True(t, sc.Failed())
	assert.Equal(t, 1, sc.Invalid())
}

func TestScannerTypeMismatch(t *testing.T) {
	fields := strings.Fields(line(60))
	fields[0] = "abc"
	sc := NewScanner(strings.NewReader(strings.Join(fields, " ")), Fort10, 1, 0)

	require.True(t, sc.Next())
	assert.False(t, sc.Valid())
	assert.Nil(t, sc.Row()[2])
	assert.True(t, sc.Failed())
}

func TestScannerIntegerColumn(t *testing.T) {
	for _, tok := range []string{"1.5", "1.0E+30", "-1.0E+30", "9.3E+18", "Inf", "NaN"} {
		fields := strings.Fields(line(60))
		fields[0] = tok
		sc := NewScanner(strings.NewReader(strings.Join(fields, " ")), Fort10, 1, 0)

		require.True(t, sc.Next(), tok)
		assert.False(t, sc.Valid(), tok)
		assert.Contains(t, sc.Reason(), "turn_max", tok)
		assert.Nil(t, sc.Row()[2], tok)
	}

	fields := strings.Fields(line(60))
	fields[0] = "1.0E+06"
	sc := NewScanner(strings.NewReader(strings.Join(fields, " ")), Fort10, 1, 0)
	require.True(t, sc.Next())
	assert.True(t, sc.Valid())
	assert.Equal(t, int64(1000000), sc.Row()[2])
}

func TestParseFileGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for i := 0; i < 99; i++ {
		_, err := zw.Write([]byte(line(60) + "\n"))
		require.NoError(t, err)
	}
	_, err := zw.Write([]byte(line(58) + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "fort.10.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var invalid []int
	res, err := ParseFile(path, Fort10, 9, func(line int, reason string) {
		invalid = append(invalid, line)
	})
	require.NoError(t, err)

	assert.Len(t, res.Rows, 100)
	assert.True(t, res.Failed())
	assert.Equal(t, []int{100}, invalid)
	assert.Equal(t, int64(100), res.Rows[99][1])
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope"), Fort10, 1, nil)
	assert.Error(t, err)
}
