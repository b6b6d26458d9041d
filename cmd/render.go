package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/utils"
)

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// writeTable renders rows as a Markdown table.
func writeTable(w io.Writer, headers []string, rows [][]string) {
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = safeVal(safeName(h))
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	for i := range cells {
		cells[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	for _, row := range rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = safeVal(row[i])
			}
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
}

func writeInfo(w io.Writer, info *dataset.Info) {
	fmt.Fprintln(w, "[FILE]")
	fmt.Fprintf(w, "File: %s\n", info.Name)
	fmt.Fprintf(w, "Size: %.2f KB\n", info.SizeKB())
	fmt.Fprintf(w, "Extension: %s\n", info.Extension)
	fmt.Fprintf(w, "Encoding: %s\n", info.Encoding)
	fmt.Fprintf(w, "Syntax: %s\n", info.Syntax)
	if info.Syntax == dataset.SyntaxJSON {
		return
	}
	fmt.Fprintf(w, "Rows: %d\n", info.Rows)
	if info.Skipped > 0 {
		fmt.Fprintf(w, "Skipped: %d malformed\n", info.Skipped)
	}
	fmt.Fprintf(w, "Columns: %d\n", len(info.Headers))
	if len(info.Sample) > 0 {
		fmt.Fprintf(w, "\n[SAMPLE] first %d rows\n", len(info.Sample))
		writeTable(w, info.Headers, info.Sample)
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}
