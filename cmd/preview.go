package cmd

import (
	"fmt"

	"github.com/KaramelBytes/fileflow-cli/internal/transform"
	"github.com/spf13/cobra"
)

var (
	prevRules     []string
	prevRulesFile string
	prevRows      int
	prevJSON      bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show the first rows as they would be exported",
	Long: `Show the first rows as they would be exported.

Rules are given as --rule <column>:<rule>[=value] (repeatable) or loaded from
a YAML file with --rules. Available rules: ignore-column, ignore-if-empty,
ignore-if=<text>, trim, replace-if-empty=<value>, replace-with=<value>,
replace-if=<match>=><value>. Prefix a rule with "no-" to switch it off.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(args[0])
		if err != nil {
			return err
		}
		rs, err := loadRules(src, prevRulesFile, prevRules)
		if err != nil {
			return err
		}
		if !rs.Dirty() {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ No rules set; preview shows the source unchanged")
		}
		opt := transformOptions()
		if cmd.Flags().Changed("rows") && prevRows > 0 {
			opt.PreviewRows = prevRows
		}
		p, err := transform.New(src, rs, opt)
		if err != nil {
			return err
		}
		sum, err := p.Preview(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if prevJSON {
			return printJSON(out, sum)
		}
		fmt.Fprintf(out, "[PREVIEW] %d rows (read %d, filtered %d)\n", len(sum.Rows), sum.RowsRead, sum.RowsFiltered)
		writeTable(out, sum.Headers, sum.Rows)
		if n := len(sum.SkippedLines); n > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Skipped %d malformed record(s) at lines %v\n", n, sum.SkippedLines)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringArrayVar(&prevRules, "rule", nil, "rule assignment <column>:<rule>[=value] (repeatable)")
	previewCmd.Flags().StringVar(&prevRulesFile, "rules", "", "YAML rules file (see `fileflow rules init`)")
	previewCmd.Flags().IntVar(&prevRows, "rows", 0, "preview row cap (default from config)")
	previewCmd.Flags().BoolVar(&prevJSON, "json", false, "print JSON instead of a table")
}
