package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/rules"
)

func openSource(t *testing.T, body string, opt dataset.Options) *dataset.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	f, err := dataset.Open(path, opt)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	return f
}

func newPipeline(t *testing.T, src *dataset.File, opt Options, assignments ...string) *Pipeline {
	t.Helper()
	r := rules.New(src.Headers())
	if err := r.ApplyAssignments(assignments); err != nil {
		t.Fatalf("ApplyAssignments: %v", err)
	}
	p, err := New(src, r, opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestExportFilterThenRemoval(t *testing.T) {
	src := openSource(t, "n,letter,tag\n1,A,x\n2,,y\n3,C,\n", dataset.Options{})
	p := newPipeline(t, src, Options{}, "letter:ignore-column", "tag:ignore-if-empty")

	dst := filepath.Join(t.TempDir(), "out.csv")
	sum, err := p.Export(context.Background(), dst)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got, want := readFile(t, dst), "n,tag\n1,x\n2,y\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if sum.RowsRead != 3 || sum.RowsWritten != 2 || sum.RowsFiltered != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil || len(entries) != 1 {
		t.Fatalf("temp file left behind: %v (err %v)", entries, err)
	}
	if sum.RunID == "" || sum.Output != dst {
		t.Fatalf("summary metadata = %+v", sum)
	}
}

func TestPreviewCapLeavesNoFile(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "%d,v%d\n", i, i)
	}
	src := openSource(t, b.String(), dataset.Options{})
	tmpDir := t.TempDir()
	p := newPipeline(t, src, Options{PreviewRows: 2, TempDir: tmpDir})

	sum, err := p.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !reflect.DeepEqual(sum.Headers, []string{"id", "value"}) {
		t.Fatalf("headers = %v", sum.Headers)
	}
	want := [][]string{{"1", "v1"}, {"2", "v2"}}
	if !reflect.DeepEqual(sum.Rows, want) {
		t.Fatalf("rows = %v, want %v", sum.Rows, want)
	}
	if sum.RowsRead != 2 {
		t.Fatalf("preview read %d rows, want 2", sum.RowsRead)
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("preview left files behind: %v", entries)
	}
}

func TestPreviewReplaceIf(t *testing.T) {
	src := openSource(t, "name,score\na,N/A\nb,7\n", dataset.Options{})
	p := newPipeline(t, src, Options{TempDir: t.TempDir()}, "score:replace-if=N/A=>0")
	sum, err := p.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := [][]string{{"a", "0"}, {"b", "7"}}
	if !reflect.DeepEqual(sum.Rows, want) {
		t.Fatalf("rows = %v, want %v", sum.Rows, want)
	}
}

func TestExportKeepsQuotedValues(t *testing.T) {
	src := openSource(t, "a,b\n\"x, y\",\"line\nbreak\"\n", dataset.Options{})
	p := newPipeline(t, src, Options{})
	dst := filepath.Join(t.TempDir(), "out.csv")
	if _, err := p.Export(context.Background(), dst); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got, want := readFile(t, dst), "a,b\n\"x, y\",\"line\nbreak\"\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestExportSmallBatches(t *testing.T) {
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	src := openSource(t, b.String(), dataset.Options{})
	p := newPipeline(t, src, Options{BatchSize: 4})
	dst := filepath.Join(t.TempDir(), "out.csv")
	sum, err := p.Export(context.Background(), dst)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.RowsWritten != 25 || strings.Count(readFile(t, dst), "\n") != 26 {
		t.Fatalf("expected 25 rows plus header, summary = %+v", sum)
	}
}

func TestExportCancelledRemovesTemp(t *testing.T) {
	src := openSource(t, "n\n1\n2\n", dataset.Options{})
	p := newPipeline(t, src, Options{})
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Export(ctx, dst); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("cancelled export left files: %v", entries)
	}
}

func TestMalformedRecords(t *testing.T) {
	body := "a,b\n1,2\n3\n4,5\n"

	abort := newPipeline(t, openSource(t, body, dataset.Options{}), Options{})
	_, err := abort.Export(context.Background(), filepath.Join(t.TempDir(), "out.csv"))
	var re *dataset.RecordError
	if !errors.As(err, &re) || re.Line != 3 {
		t.Fatalf("expected record error at line 3, got %v", err)
	}

	skip := newPipeline(t, openSource(t, body, dataset.Options{Malformed: dataset.SkipMalformed}), Options{})
	dst := filepath.Join(t.TempDir(), "out.csv")
	sum, err := skip.Export(context.Background(), dst)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got := readFile(t, dst); got != "a,b\n1,2\n4,5\n" {
		t.Fatalf("output = %q", got)
	}
	if !reflect.DeepEqual(sum.SkippedLines, []int{3}) {
		t.Fatalf("skipped = %v", sum.SkippedLines)
	}
}

func TestSemicolonOutput(t *testing.T) {
	src := openSource(t, "a;b\n1;2\n", dataset.Options{Delimiter: ';'})
	p := newPipeline(t, src, Options{}, "b:replace-with=z")
	dst := filepath.Join(t.TempDir(), "out.csv")
	if _, err := p.Export(context.Background(), dst); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got := readFile(t, dst); got != "a;b\n1;z\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestNewRejectsMismatchedRules(t *testing.T) {
	src := openSource(t, "a,b\n1,2\n", dataset.Options{})
	if _, err := New(src, rules.New([]string{"a"}), Options{}); err == nil {
		t.Fatalf("expected column count error")
	}
}

func TestSingleEmptyFieldRowsSurvive(t *testing.T) {
	src := openSource(t, "a,b\n,1\n2,3\n", dataset.Options{})
	p := newPipeline(t, src, Options{TempDir: t.TempDir()}, "b:ignore-column")

	sum, err := p.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := [][]string{{""}, {"2"}}
	if !reflect.DeepEqual(sum.Rows, want) || sum.RowsWritten != 2 {
		t.Fatalf("preview rows = %q (written %d), want %q", sum.Rows, sum.RowsWritten, want)
	}

	dst := filepath.Join(t.TempDir(), "out.csv")
	if _, err := p.Export(context.Background(), dst); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got, want := readFile(t, dst), "a\n\"\"\n2\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	back, err := dataset.Open(dst, dataset.Options{})
	if err != nil {
		t.Fatalf("reopen export: %v", err)
	}
	col, err := back.FullColumn(context.Background(), 0)
	if err != nil {
		t.Fatalf("FullColumn: %v", err)
	}
	if !reflect.DeepEqual(col, []string{"", "2"}) {
		t.Fatalf("re-read column = %q", col)
	}
}

func TestConcurrentExportsToSameDestination(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 1; i <= 20000; i++ {
		fmt.Fprintf(&b, "%d,v%d\n", i, i)
	}
	body := b.String()
	src := openSource(t, body, dataset.Options{})
	dst := filepath.Join(t.TempDir(), "out.csv")

	pipes := []*Pipeline{
		newPipeline(t, src, Options{BatchSize: 100}),
		newPipeline(t, src, Options{BatchSize: 100}),
	}
	var wg sync.WaitGroup
	errs := make([]error, len(pipes))
	for i, p := range pipes {
		wg.Add(1)
		go func(i int, p *Pipeline) {
			defer wg.Done()
			_, errs[i] = p.Export(context.Background(), dst)
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("export %d: %v", i, err)
		}
	}
	if got := readFile(t, dst); got != body {
		t.Fatalf("output has %d bytes, want %d", len(got), len(body))
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil || len(entries) != 1 {
		t.Fatalf("leftover files: %v (err %v)", entries, err)
	}
}
