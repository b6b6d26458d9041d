package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func readAll(t *testing.T, rr RecordReader) [][]string {
	t.Helper()
	var out [][]string
	for {
		rec, err := rr.Read()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		out = append(out, append([]string(nil), rec...))
	}
}

func TestTextReaderStripsBOMAndSanitizes(t *testing.T) {
	in := "\xEF\xBB\xBFname,city\nbad\xff,Tromsø\n"
	b, err := io.ReadAll(newTextReader(strings.NewReader(in)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := string(b), "name,city\nbad?,Tromsø\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTextReaderSmallReads(t *testing.T) {
	in := strings.Repeat("æøå,", 500)
	r := newTextReader(strings.NewReader(in))
	var sb strings.Builder
	buf := make([]byte, 5)
	for {
		n, err := r.Read(buf)
		sb.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if sb.String() != in {
		t.Fatalf("multi-byte runes split across reads were altered")
	}
}

func TestCSVRecordsAndLines(t *testing.T) {
	path := writeFile(t, "data.csv", "n,letter,tag\n1,A,x\n2,\"multi\nline\",y\n3,C,z\n")
	rr, err := OpenRecords(path, Options{})
	if err != nil {
		t.Fatalf("OpenRecords: %v", err)
	}
	defer rr.Close()
	if h, err := ReadHeader(rr); err != nil || !reflect.DeepEqual(h, []string{"n", "letter", "tag"}) {
		t.Fatalf("header = %v, err = %v", h, err)
	}
	var lines []int
	for {
		_, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		lines = append(lines, rr.Line())
	}
	if !reflect.DeepEqual(lines, []int{2, 3, 5}) {
		t.Fatalf("lines = %v, want [2 3 5]", lines)
	}
	if rr.Offset() == 0 {
		t.Fatalf("offset not tracked")
	}
}

func TestMalformedRecordPolicies(t *testing.T) {
	path := writeFile(t, "bad.csv", "a,b\n1,2\n3\n4,5\n")

	rr, err := OpenRecords(path, Options{})
	if err != nil {
		t.Fatalf("OpenRecords: %v", err)
	}
	defer rr.Close()
	if _, err := ReadHeader(rr); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := NextRecord(rr, AbortOnMalformed, nil); err != nil {
		t.Fatalf("first record: %v", err)
	}
	_, err = NextRecord(rr, AbortOnMalformed, nil)
	var re *RecordError
	if !errors.As(err, &re) || re.Line != 3 || !errors.Is(err, csv.ErrFieldCount) {
		t.Fatalf("expected field count error at line 3, got %v", err)
	}

	f, err := Open(path, Options{Malformed: SkipMalformed})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	col, err := f.FullColumn(context.Background(), 1)
	if err != nil {
		t.Fatalf("FullColumn: %v", err)
	}
	if !reflect.DeepEqual(col, []string{"2", "5"}) {
		t.Fatalf("column = %v, want [2 5]", col)
	}
}

func TestSemicolonDelimiter(t *testing.T) {
	path := writeFile(t, "semi.csv", "a;b\n1;x\n")
	f, err := Open(path, Options{Delimiter: ';'})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := f.Headers(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("headers = %v", got)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open("/definitely/not/here.csv", Options{}); err == nil || !strings.Contains(err.Error(), "open source") {
		t.Fatalf("expected open source error, got %v", err)
	}
	empty := writeFile(t, "empty.csv", "")
	if _, err := Open(empty, Options{}); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestFullColumnAndProfiles(t *testing.T) {
	path := writeFile(t, "data.csv", "n,letter\n1,A\n2,B\n3,\n")
	f, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	col, err := f.FullColumn(context.Background(), 1)
	if err != nil {
		t.Fatalf("FullColumn: %v", err)
	}
	if !reflect.DeepEqual(col, []string{"A", "B", ""}) {
		t.Fatalf("column = %v", col)
	}
	if _, err := f.FullColumn(context.Background(), 5); err == nil {
		t.Fatalf("expected out of range error")
	}

	profiles, err := f.Profiles(context.Background(), 2)
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if profiles[0].Classification.String() != "Quantitative" || profiles[1].Classification.String() != "Qualitative" {
		t.Fatalf("profiles = %+v", profiles)
	}
	c, err := f.Column(context.Background(), 0)
	if err != nil || c.Header != "n" {
		t.Fatalf("Column(0) = %+v, %v", c, err)
	}
}

func TestFullColumnHonoursCancellation(t *testing.T) {
	path := writeFile(t, "data.csv", "n\n1\n2\n")
	f, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FullColumn(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestXLSXSheetSelection(t *testing.T) {
	path := writeXLSXFixture(t)

	byName, err := Open(path, Options{SheetName: "data"})
	if err != nil {
		t.Fatalf("Open by name: %v", err)
	}
	if !reflect.DeepEqual(byName.Headers(), fixtureHeader) {
		t.Fatalf("headers = %v", byName.Headers())
	}
	temps, err := byName.FullColumn(context.Background(), 2)
	if err != nil {
		t.Fatalf("FullColumn: %v", err)
	}
	want := []string{"70", "71", "69", "75", "74", "73", "68", "76", "95", "72"}
	if !reflect.DeepEqual(temps, want) {
		t.Fatalf("temps = %v", temps)
	}

	byIndex, err := Open(path, Options{SheetIndex: 2})
	if err != nil {
		t.Fatalf("Open by index: %v", err)
	}
	rr, err := byIndex.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	defer rr.Close()
	rows := readAll(t, rr)
	if len(rows) != 10 || rows[0][5] != "alpha" || rows[9][6] != "tenth" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	first, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open default sheet: %v", err)
	}
	if !reflect.DeepEqual(first.Headers(), []string{"placeholder"}) {
		t.Fatalf("default sheet headers = %v", first.Headers())
	}

	if _, err := Open(path, Options{SheetName: "Missing"}); !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"styles.xml", "xl/styles.xml"},
	}
	for _, tt := range tests {
		if got := normalizeRelPath(tt.input); got != tt.expected {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestColIndexFromRef(t *testing.T) {
	cases := map[string]int{"A1": 0, "C12": 2, "Z3": 25, "AA10": 26, "ab2": 27, "": -1, "12": -1}
	for ref, want := range cases {
		if got := colIndexFromRef(ref); got != want {
			t.Errorf("colIndexFromRef(%q) = %d, want %d", ref, got, want)
		}
	}
}

func TestInspect(t *testing.T) {
	path := writeFile(t, "people.csv", "\xEF\xBB\xBFname,age\nAda,36\nLinus,54\nGrace,85\n")
	info, err := Inspect(context.Background(), path, Options{}, 2)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Name != "people.csv" || info.Extension != "CSV" {
		t.Fatalf("name/ext = %s/%s", info.Name, info.Extension)
	}
	if info.Encoding != "UTF-8-BOM" || info.Syntax != SyntaxCSV {
		t.Fatalf("encoding/syntax = %s/%s", info.Encoding, info.Syntax)
	}
	if info.Rows != 3 || len(info.Sample) != 2 || info.Sample[1][0] != "Linus" {
		t.Fatalf("rows = %d, sample = %v", info.Rows, info.Sample)
	}
	if !reflect.DeepEqual(info.Headers, []string{"name", "age"}) {
		t.Fatalf("headers = %v", info.Headers)
	}

	jsonPath := writeFile(t, "rows.json", "[\n  {\"a\": 1},\n  {\"a\": 2}\n]\n")
	info, err = Inspect(context.Background(), jsonPath, Options{}, 5)
	if err != nil {
		t.Fatalf("Inspect json: %v", err)
	}
	if info.Syntax != SyntaxJSON || info.Rows != 0 {
		t.Fatalf("json syntax = %s rows = %d", info.Syntax, info.Rows)
	}

	xlsx, err := Inspect(context.Background(), writeXLSXFixture(t), Options{SheetName: "Data"}, 3)
	if err != nil {
		t.Fatalf("Inspect xlsx: %v", err)
	}
	if xlsx.Syntax != SyntaxSpreadsheet || xlsx.Rows != 10 || len(xlsx.Sample) != 3 {
		t.Fatalf("xlsx info = %+v", xlsx)
	}
}

func TestDetectEncoding(t *testing.T) {
	cases := []struct {
		in       string
		complete bool
		want     string
	}{
		{"plain ascii", true, "ASCII"},
		{"smørbrød", true, "UTF-8"},
		{"cut mid rune \xc3", false, "UTF-8"},
		{"latin1 \xe6\xf8", true, "UNKNOWN"},
	}
	for _, c := range cases {
		if got := detectEncoding([]byte(c.in), c.complete); got != c.want {
			t.Errorf("detectEncoding(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestSniffHeadIsBounded(t *testing.T) {
	long := strings.Repeat("a", 4*syntaxSniffBytes)
	if got := len(sniffHead(strings.NewReader(long))); got != syntaxSniffBytes {
		t.Fatalf("sniffHead read %d bytes, want %d", got, syntaxSniffBytes)
	}

	var lines strings.Builder
	for i := 0; i < 2*syntaxSniffLines; i++ {
		lines.WriteString("x,y\n")
	}
	if got := len(sniffHead(strings.NewReader(lines.String()))); got != 4*syntaxSniffLines {
		t.Fatalf("sniffHead read %d bytes, want %d", got, 4*syntaxSniffLines)
	}

	path := writeFile(t, "one-line.csv", long)
	syn, err := sniffSyntax(path, ',')
	if err != nil || syn != SyntaxCSV {
		t.Fatalf("sniffSyntax = %s, %v", syn, err)
	}
}
