package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/KaramelBytes/fileflow-cli/internal/profile"
)

// ContextCheckInterval is how many records a pass reads between checks of
// its context.
const ContextCheckInterval = 100

// File is an opened tabular source. Each pass re-reads the file, so a File
// holds no rows, only the headers and cached column profiles.
type File struct {
	path    string
	opt     Options
	headers []string

	mu       sync.Mutex
	profiles []profile.Column
}

// Open reads the header row of the source at path.
func Open(path string, opt Options) (*File, error) {
	rr, err := OpenRecords(path, opt)
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	headers, err := ReadHeader(rr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{path: path, opt: opt, headers: headers}, nil
}

func (f *File) Path() string      { return f.path }
func (f *File) Options() Options  { return f.opt }
func (f *File) Headers() []string { return append([]string(nil), f.headers...) }
func (f *File) ColumnCount() int  { return len(f.headers) }

// Records opens a fresh pass positioned after the header row.
func (f *File) Records() (RecordReader, error) {
	rr, err := OpenRecords(f.path, f.opt)
	if err != nil {
		return nil, err
	}
	if _, err := ReadHeader(rr); err != nil {
		rr.Close()
		return nil, err
	}
	return rr, nil
}

// FullColumn reads every value of one column in a single pass over the
// source. Rows shorter than the column yield "".
func (f *File) FullColumn(ctx context.Context, index int) ([]string, error) {
	if index < 0 || index >= len(f.headers) {
		return nil, fmt.Errorf("column %d out of range (have %d)", index, len(f.headers))
	}
	rr, err := f.Records()
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	var out []string
	for n := 0; ; n++ {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := NextRecord(rr, f.opt.Malformed, nil)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		var v string
		if index < len(rec) {
			v = rec[index]
		}
		out = append(out, v)
	}
}

// Profiles classifies every column, caching the result for later calls.
func (f *File) Profiles(ctx context.Context, workers int) ([]profile.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profiles != nil {
		return append([]profile.Column(nil), f.profiles...), nil
	}
	cols, err := profile.ProfileColumns(ctx, f.headers, f.FullColumn, workers)
	if err != nil {
		return nil, err
	}
	f.profiles = cols
	return append([]profile.Column(nil), cols...), nil
}

// Column profiles a single column, reusing the cache when it is populated.
func (f *File) Column(ctx context.Context, index int) (profile.Column, error) {
	if index < 0 || index >= len(f.headers) {
		return profile.Column{}, fmt.Errorf("column %d out of range (have %d)", index, len(f.headers))
	}
	f.mu.Lock()
	if f.profiles != nil {
		c := f.profiles[index]
		f.mu.Unlock()
		return c, nil
	}
	f.mu.Unlock()
	values, err := f.FullColumn(ctx, index)
	if err != nil {
		return profile.Column{}, err
	}
	class, dt := profile.Classify(values)
	return profile.Column{Index: index, Header: f.headers[index], Classification: class, DataType: dt}, nil
}
