// Package transform streams a tabular source through a per-column rule set,
// either into an output CSV file or into a bounded in-memory preview.
package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/logging"
	"github.com/KaramelBytes/fileflow-cli/internal/rules"
)

const (
	DefaultPreviewRows = 70
	DefaultBatchSize   = 1000

	// ContextCheckInterval is how many source rows pass between checks of
	// the run's context.
	ContextCheckInterval = dataset.ContextCheckInterval
)

// Options tunes one pipeline. Zero values fall back to the defaults.
type Options struct {
	PreviewRows int
	BatchSize   int
	// TempDir holds throwaway preview files; empty means os.TempDir().
	TempDir string
}

// Summary describes a finished run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Headers      []string      `json:"headers"`
	Rows         [][]string    `json:"rows,omitempty"`
	RowsRead     int           `json:"rows_read"`
	RowsWritten  int           `json:"rows_written"`
	RowsFiltered int           `json:"rows_filtered"`
	SkippedLines []int         `json:"skipped_lines,omitempty"`
	Output       string        `json:"output,omitempty"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// Pipeline pairs a source with the rule snapshot taken when it was built.
// Later edits to the Rules table do not affect it.
type Pipeline struct {
	src  *dataset.File
	snap *rules.Snapshot
	opt  Options
}

// New validates that r describes src and snapshots it.
func New(src *dataset.File, r *rules.Rules, opt Options) (*Pipeline, error) {
	if r.Len() != src.ColumnCount() {
		return nil, fmt.Errorf("rules cover %d columns, source has %d", r.Len(), src.ColumnCount())
	}
	if opt.PreviewRows <= 0 {
		opt.PreviewRows = DefaultPreviewRows
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	return &Pipeline{src: src, snap: r.Snapshot(), opt: opt}, nil
}

// Headers returns the output headers.
func (p *Pipeline) Headers() []string { return append([]string(nil), p.snap.Headers...) }

// Export writes every surviving row to dst. Output goes to a uniquely named
// temp file next to dst and is renamed into place once complete; a failed or
// cancelled run leaves dst untouched and removes the temp file.
func (p *Pipeline) Export(ctx context.Context, dst string) (*Summary, error) {
	sum := p.newSummary()
	runLog := logging.WithFields(ctx, "run_id", sum.RunID, "source", p.src.Path(), "output", dst)
	runLog.Info("export started")
	start := time.Now()

	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("create output: %w", err)
	}
	if err := p.writeFile(ctx, f, 0, sum); err != nil {
		_ = os.Remove(tmp)
		runLog.Warn("export aborted", "error", err, "rows_read", sum.RowsRead)
		return nil, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("finalize output: %w", err)
	}
	sum.Output = dst
	sum.Elapsed = time.Since(start)
	p.logSummary(runLog, "export finished", sum)
	return sum, nil
}

// Preview runs the export path into a throwaway file, keeps the rows it
// writes in memory, stops once the preview cap is reached and deletes the
// file.
func (p *Pipeline) Preview(ctx context.Context) (*Summary, error) {
	sum := p.newSummary()
	runLog := logging.WithFields(ctx, "run_id", sum.RunID, "source", p.src.Path())
	start := time.Now()

	dir := p.opt.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.Create(filepath.Join(dir, "fileflow-preview-"+sum.RunID+".csv"))
	if err != nil {
		return nil, fmt.Errorf("create preview: %w", err)
	}
	defer os.Remove(f.Name())

	if err := p.writeFile(ctx, f, p.opt.PreviewRows, sum); err != nil {
		return nil, err
	}
	sum.Elapsed = time.Since(start)
	p.logSummary(runLog, "preview finished", sum)
	return sum, nil
}

func (p *Pipeline) newSummary() *Summary {
	return &Summary{RunID: uuid.NewString(), Headers: p.Headers()}
}

func (p *Pipeline) logSummary(l *slog.Logger, msg string, sum *Summary) {
	l.Info(msg,
		"rows_read", sum.RowsRead,
		"rows_written", sum.RowsWritten,
		"rows_filtered", sum.RowsFiltered,
		"rows_skipped", len(sum.SkippedLines),
		"elapsed_ms", sum.Elapsed.Milliseconds(),
	)
}

func (p *Pipeline) delimiter() rune {
	if d := p.src.Options().Delimiter; d != 0 && !dataset.IsSpreadsheet(p.src.Path()) {
		return d
	}
	return ','
}

// writeFile runs write into f and closes it.
func (p *Pipeline) writeFile(ctx context.Context, f *os.File, limit int, sum *Summary) error {
	if err := p.write(ctx, f, limit, sum); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// write streams the source through the snapshot into w. A positive limit
// stops reading once that many rows have been written and keeps a copy of
// each written row in sum.Rows.
func (p *Pipeline) write(ctx context.Context, w io.Writer, limit int, sum *Summary) error {
	rr, err := p.src.Records()
	if err != nil {
		return err
	}
	defer rr.Close()

	cw := csv.NewWriter(w)
	cw.Comma = p.delimiter()
	if err := writeRecord(cw, w, p.snap.Headers); err != nil {
		return err
	}

	policy := p.src.Options().Malformed
	var skipped []*dataset.RecordError
	defer func() {
		for _, re := range skipped {
			sum.SkippedLines = append(sum.SkippedLines, re.Line)
		}
	}()

	pending := 0
	for {
		if limit > 0 && sum.RowsWritten >= limit {
			break
		}
		if sum.RowsRead%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := dataset.NextRecord(rr, policy, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		sum.RowsRead++
		out, ok := p.snap.Process(rec)
		if !ok {
			sum.RowsFiltered++
			continue
		}
		if err := writeRecord(cw, w, out); err != nil {
			return err
		}
		if limit > 0 {
			sum.Rows = append(sum.Rows, append([]string(nil), out...))
		}
		sum.RowsWritten++
		pending++
		if pending >= p.opt.BatchSize {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			pending = 0
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// writeRecord writes rec through cw. A record holding one empty field would
// come out as a blank line, which CSV readers skip, so it is written as ""
// straight to w instead.
func writeRecord(cw *csv.Writer, w io.Writer, rec []string) error {
	if len(rec) == 1 && rec[0] == "" {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if _, err := io.WriteString(w, "\"\"\n"); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
