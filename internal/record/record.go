// Package record validates and tokenizes fixed-width scientific
// output. A malformed line never stops the stream: it is replaced by
// a sentinel row and the run is flagged as failed.
package record

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/pkg/codec"
)

const maxLineBytes = 1 << 20

// Scanner yields one row per input line. It is lazy, finite and
// cannot be restarted.
type Scanner struct {
	lines  *bufio.Scanner
	format Format
	taskID int64
	mtime  float64

	line   int
	row    store.Row
	valid  bool
	failed bool
	bad    int
	reason string
	err    error
}

// NewScanner reads lines from r. Every produced row has the shape
// [taskID, row_num, field_1..field_N, mtime].
func NewScanner(r io.Reader, format Format, taskID int64, mtime float64) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &Scanner{
		lines:  lines,
		format: format,
		taskID: taskID,
		mtime:  mtime,
	}
}

// Next advances to the following line.
func (s *Scanner) Next() bool {
	if s.err != nil || !s.lines.Scan() {
		if s.err == nil {
			s.err = s.lines.Err()
		}
		s.row = nil
		return false
	}

	s.line++
	s.row, s.reason = s.parse(s.lines.Text())
	s.valid = s.reason == ""
	if !s.valid {
		s.failed = true
		s.bad++
	}

	return true
}

// Row returns the current row.
func (s *Scanner) Row() store.Row {
	return s.row
}

// Line returns the 1-based number of the current row.
func (s *Scanner) Line() int {
	return s.line
}

// Valid reports whether the current row passed validation.
func (s *Scanner) Valid() bool {
	return s.valid
}

// Reason describes why the current row is a sentinel.
func (s *Scanner) Reason() string {
	return s.reason
}

// Failed reports whether any row so far was a sentinel.
func (s *Scanner) Failed() bool {
	return s.failed
}

// Invalid returns the number of sentinel rows so far.
func (s *Scanner) Invalid() int {
	return s.bad
}

// Err returns the first read error. A read error is a failure of
// the whole artifact, not of a single row.
func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) parse(text string) (store.Row, string) {
	width := s.format.Width()
	row := make(store.Row, width+3)
	row[0] = s.taskID
	row[1] = int64(s.line)
	row[width+2] = s.mtime

	tokens := strings.Fields(text)
	if len(tokens) != width {
		return row, fmt.Sprintf("expected %d fields, found %d", width, len(tokens))
	}

	values := make([]any, width)
	for i, tok := range tokens {
		v, err := convert(tok, s.format.Columns[i].Type)
		if err != nil {
			return row, fmt.Sprintf("field %d (%s): %v", i+1, s.format.Columns[i].Name, err)
		}
		values[i] = v
	}
	copy(row[2:], values)

	return row, ""
}

func convert(tok string, typ store.ColumnType) (any, error) {
	switch typ {
	case store.Integer:
		// integer columns are often printed in exponent notation
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%q is not integral", tok)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("%q is out of range", tok)
		}
		return int64(f), nil
	case store.Real:
		return strconv.ParseFloat(tok, 64)
	default:
		return tok, nil
	}
}

// Result collects every row of a parsed artifact.
type Result struct {
	Rows    []store.Row
	Invalid int
}

// Failed reports whether any row was a sentinel.
func (r *Result) Failed() bool {
	return r.Invalid > 0
}

// ParseFile parses a (possibly gzip compressed) artifact. An error is
// returned only when the file cannot be opened or read at all.
func ParseFile(path string, format Format, taskID int64, onInvalid func(line int, reason string)) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	rc, err := codec.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	mtime := float64(info.ModTime().UnixNano()) / 1e9
	sc := NewScanner(rc, format, taskID, mtime)

	res := &Result{}
	for sc.Next() {
		res.Rows = append(res.Rows, sc.Row())
		if !sc.Valid() && onInvalid != nil {
			onInvalid(sc.Line(), sc.Reason())
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Invalid = sc.Invalid()

	return res, nil
}
