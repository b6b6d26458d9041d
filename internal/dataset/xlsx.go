package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// ErrSheetNotFound is returned when the requested worksheet is missing.
var ErrSheetNotFound = errors.New("sheet not found")

type workbookSheet struct {
	Name    string
	SheetID int
	RelID   string
}

// sheetRecords streams rows from one worksheet of an .xlsx archive. Only
// the worksheet XML is decoded incrementally; the workbook, relationships
// and shared strings are small and read up front.
type sheetRecords struct {
	zr     *zip.ReadCloser
	body   io.ReadCloser
	cnt    *countingReader
	dec    *xml.Decoder
	shared []string
	width  int
	row    int
	cur    []string
}

func openSheet(p, sheetName string, sheetIndex int) (*sheetRecords, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := parseWorkbook(readZipEntry(&zr.Reader, "xl/workbook.xml"))
	rels := parseRelationships(readZipEntry(&zr.Reader, "xl/_rels/workbook.xml.rels"))
	target, err := resolveSheet(sheets, rels, sheetName, sheetIndex)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
	}
	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == target {
			entry = f
			break
		}
	}
	if entry == nil {
		zr.Close()
		return nil, fmt.Errorf("%s: %w: missing %s", filepath.Base(p), ErrSheetNotFound, target)
	}
	body, err := entry.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("open worksheet: %w", err)
	}
	cnt := &countingReader{r: body}
	return &sheetRecords{
		zr:     zr,
		body:   body,
		cnt:    cnt,
		dec:    xml.NewDecoder(cnt),
		shared: parseSharedStrings(readZipEntry(&zr.Reader, "xl/sharedStrings.xml")),
	}, nil
}

// resolveSheet picks the worksheet path by name first, then by sheetId,
// then by the conventional sheetN.xml name.
func resolveSheet(sheets []workbookSheet, rels map[string]string, name string, index int) (string, error) {
	if name != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, name) {
				if rel, ok := rels[s.RelID]; ok {
					return normalizeRelPath(rel), nil
				}
			}
		}
		names := make([]string, len(sheets))
		for i, s := range sheets {
			names[i] = s.Name
		}
		return "", fmt.Errorf("%w: %q (available: %s)", ErrSheetNotFound, name, strings.Join(names, ", "))
	}
	if index <= 0 {
		index = 1
	}
	for _, s := range sheets {
		if s.SheetID == index {
			if rel, ok := rels[s.RelID]; ok {
				return normalizeRelPath(rel), nil
			}
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", index), nil
}

func (s *sheetRecords) Read() ([]string, error) {
	for {
		tok, err := s.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &RecordError{Line: s.row + 1, Err: err}
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "row":
				s.cur = s.cur[:0]
			case "c":
				var ref, typ string
				for _, a := range el.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				col := colIndexFromRef(ref)
				if col < 0 {
					col = len(s.cur)
				}
				v, err := s.cellValue(typ)
				if err != nil {
					return nil, &RecordError{Line: s.row + 1, Err: err}
				}
				for len(s.cur) <= col {
					s.cur = append(s.cur, "")
				}
				s.cur[col] = v
			}
		case xml.EndElement:
			if el.Name.Local != "row" {
				continue
			}
			s.row++
			if s.width == 0 {
				s.width = len(s.cur)
			}
			for len(s.cur) < s.width {
				s.cur = append(s.cur, "")
			}
			return s.cur, nil
		}
	}
}

// cellValue consumes tokens up to </c>, returning the <v> or inline <t> text.
func (s *sheetRecords) cellValue(typ string) (string, error) {
	var val strings.Builder
	capture := false
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "v" || el.Name.Local == "t" {
				capture = true
			}
		case xml.CharData:
			if capture {
				val.Write(el)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				if typ == "s" {
					idx := atoiSafe(val.String())
					if idx >= 0 && idx < len(s.shared) {
						return s.shared[idx], nil
					}
					return "", nil
				}
				return val.String(), nil
			}
		}
	}
}

func (s *sheetRecords) Line() int     { return s.row }
func (s *sheetRecords) Offset() int64 { return s.cnt.n }

func (s *sheetRecords) Close() error {
	s.body.Close()
	return s.zr.Close()
}

func readZipEntry(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		return b
	}
	return nil
}

func parseWorkbook(data []byte) []workbookSheet {
	var sheets []workbookSheet
	eachStart(data, "sheet", func(el xml.StartElement) {
		var s workbookSheet
		for _, a := range el.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID = atoiSafe(a.Value)
			case "id":
				s.RelID = a.Value
			}
		}
		sheets = append(sheets, s)
	})
	return sheets
}

// parseRelationships maps relationship ids to their targets.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	eachStart(data, "Relationship", func(el xml.StartElement) {
		var id, target string
		for _, a := range el.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	})
	return out
}

func eachStart(data []byte, local string, fn func(xml.StartElement)) {
	if len(data) == 0 {
		return
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		if el, ok := tok.(xml.StartElement); ok && el.Name.Local == local {
			fn(el)
		}
	}
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inText {
				buf.Write(el)
			}
		}
	}
}

// colIndexFromRef turns a cell reference like "C12" into 2. It returns -1
// when the reference has no column letters.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts a relationship target into a zip entry name.
// Targets may be absolute ("/xl/worksheets/sheet1.xml") or relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
