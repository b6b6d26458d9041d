package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoHeader is returned for sources without a header record.
var ErrNoHeader = errors.New("source has no header row")

// MalformedPolicy decides what a pass does with records that fail to parse.
type MalformedPolicy int

const (
	// AbortOnMalformed stops the pass at the first bad record.
	AbortOnMalformed MalformedPolicy = iota
	// SkipMalformed drops bad records and keeps going.
	SkipMalformed
)

func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return AbortOnMalformed, nil
	case "skip":
		return SkipMalformed, nil
	}
	return AbortOnMalformed, fmt.Errorf("invalid malformed-record policy: %s (use abort or skip)", s)
}

func (p MalformedPolicy) String() string {
	if p == SkipMalformed {
		return "skip"
	}
	return "abort"
}

// RecordError marks a record that could not be parsed.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record at line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Options selects how a source is read.
type Options struct {
	// Delimiter separates CSV fields; zero means ','.
	Delimiter rune
	// SheetName or SheetIndex (1-based) select an XLSX worksheet.
	SheetName  string
	SheetIndex int
	Malformed  MalformedPolicy
}

// RecordReader yields one record at a time, header first. Read returns
// io.EOF after the last record. The returned slice may be reused by the
// next call.
type RecordReader interface {
	Read() ([]string, error)
	// Line is the source line (or sheet row) of the last record returned.
	Line() int
	// Offset is the number of source bytes consumed so far.
	Offset() int64
	Close() error
}

// IsSpreadsheet reports whether path is read through the XLSX reader.
func IsSpreadsheet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// OpenRecords opens the source at path, choosing the reader by extension.
func OpenRecords(path string, opt Options) (RecordReader, error) {
	if IsSpreadsheet(path) {
		return openSheet(path, opt.SheetName, opt.SheetIndex)
	}
	return openCSV(path, opt.Delimiter)
}

type csvRecords struct {
	f    *os.File
	cnt  *countingReader
	cr   *csv.Reader
	line int
}

func openCSV(path string, delim rune) (*csvRecords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	cnt := &countingReader{r: f}
	cr := csv.NewReader(newTextReader(cnt))
	if delim != 0 {
		cr.Comma = delim
	}
	cr.ReuseRecord = true
	// zero: every record must match the header width
	cr.FieldsPerRecord = 0
	return &csvRecords{f: f, cnt: cnt, cr: cr}, nil
}

func (c *csvRecords) Read() ([]string, error) {
	rec, err := c.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			c.line = pe.StartLine
			return nil, &RecordError{Line: pe.StartLine, Err: pe.Err}
		}
		return nil, fmt.Errorf("read source: %w", err)
	}
	c.line, _ = c.cr.FieldPos(0)
	return rec, nil
}

func (c *csvRecords) Line() int     { return c.line }
func (c *csvRecords) Offset() int64 { return c.cnt.n }
func (c *csvRecords) Close() error  { return c.f.Close() }

// ReadHeader reads the first record of rr as the header row.
func ReadHeader(rr RecordReader) ([]string, error) {
	h, err := rr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(h) == 0 {
		return nil, ErrNoHeader
	}
	out := make([]string, len(h))
	copy(out, h)
	return out, nil
}

// NextRecord reads the next data record, applying the malformed policy.
// Skipped records are appended to skipped when the policy allows it.
func NextRecord(rr RecordReader, policy MalformedPolicy, skipped *[]*RecordError) ([]string, error) {
	for {
		rec, err := rr.Read()
		if err == nil {
			return rec, nil
		}
		var re *RecordError
		if policy == SkipMalformed && errors.As(err, &re) {
			if skipped != nil {
				*skipped = append(*skipped, re)
			}
			continue
		}
		return nil, err
	}
}
