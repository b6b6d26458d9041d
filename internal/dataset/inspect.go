package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	encodingSniffBytes = 4096
	syntaxSniffLines   = 100
	syntaxSniffBytes   = 256 << 10
)

// Syntax is the detected layout of a source file.
type Syntax string

const (
	SyntaxCSV         Syntax = "CSV"
	SyntaxJSON        Syntax = "JSON"
	SyntaxSpreadsheet Syntax = "XLSX"
	SyntaxUnknown     Syntax = "UNKNOWN"
)

// Info summarises a source file before any column work is done.
type Info struct {
	Path      string     `json:"path"`
	Name      string     `json:"name"`
	Extension string     `json:"extension"`
	SizeBytes int64      `json:"size_bytes"`
	Encoding  string     `json:"encoding"`
	Syntax    Syntax     `json:"syntax"`
	Rows      int        `json:"rows"`
	Skipped   int        `json:"skipped"`
	Headers   []string   `json:"headers"`
	Sample    [][]string `json:"sample"`
}

// SizeKB is the file size in kilobytes.
func (i Info) SizeKB() float64 { return float64(i.SizeBytes) / 1024 }

// Inspect reports file facts, counts data rows in one full pass, and keeps
// the first sampleRows rows.
func Inspect(ctx context.Context, path string, opt Options, sampleRows int) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	info := &Info{
		Path:      path,
		Name:      filepath.Base(path),
		Extension: strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), ".")),
		SizeBytes: st.Size(),
	}
	if IsSpreadsheet(path) {
		info.Encoding = "BINARY"
		info.Syntax = SyntaxSpreadsheet
	} else {
		if info.Encoding, err = sniffEncoding(path); err != nil {
			return nil, err
		}
		if info.Syntax, err = sniffSyntax(path, opt.Delimiter); err != nil {
			return nil, err
		}
		if info.Syntax == SyntaxJSON {
			return info, nil
		}
	}

	rr, err := OpenRecords(path, opt)
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	if info.Headers, err = ReadHeader(rr); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var skipped []*RecordError
	for {
		if info.Rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := NextRecord(rr, opt.Malformed, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(info.Sample) < sampleRows {
			info.Sample = append(info.Sample, append([]string(nil), rec...))
		}
		info.Rows++
	}
	info.Skipped = len(skipped)
	return info, nil
}

// sniffEncoding looks at the first 4 KiB only.
func sniffEncoding(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	buf := make([]byte, encodingSniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read source: %w", err)
	}
	return detectEncoding(buf[:n], n < encodingSniffBytes), nil
}

func detectEncoding(b []byte, complete bool) string {
	if bytes.HasPrefix(b, utf8BOM) {
		return "UTF-8-BOM"
	}
	ascii := true
	for _, c := range b {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return "ASCII"
	}
	if !complete {
		// the window may end inside a multi-byte sequence
		for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
			if utf8.Valid(b) {
				break
			}
			b = b[:len(b)-1]
		}
	}
	if utf8.Valid(b) {
		return "UTF-8"
	}
	return "UNKNOWN"
}

// sniffHead returns up to the first 100 lines of r, never more than
// syntaxSniffBytes.
func sniffHead(r io.Reader) []byte {
	br := bufio.NewReader(io.LimitReader(r, syntaxSniffBytes))
	var head bytes.Buffer
	for i := 0; i < syntaxSniffLines; i++ {
		line, err := br.ReadBytes('\n')
		head.Write(line)
		if err != nil {
			break
		}
	}
	return head.Bytes()
}

// sniffSyntax inspects the head of the file: a valid JSON document is JSON,
// a parseable first record is CSV.
func sniffSyntax(path string, delim rune) (Syntax, error) {
	f, err := os.Open(path)
	if err != nil {
		return SyntaxUnknown, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	text := bytes.TrimPrefix(sniffHead(f), utf8BOM)
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return SyntaxJSON, nil
	}
	cr := csv.NewReader(bytes.NewReader(text))
	if delim != 0 {
		cr.Comma = delim
	}
	if _, err := cr.Read(); err == nil {
		return SyntaxCSV, nil
	}
	return SyntaxUnknown, nil
}
