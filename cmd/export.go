package cmd

import (
	"fmt"
	"time"

	"github.com/KaramelBytes/fileflow-cli/internal/transform"
	"github.com/KaramelBytes/fileflow-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	expRules     []string
	expRulesFile string
	expOutput    string
	expBatchSize int
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Apply rules to every row and write a new CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(args[0])
		if err != nil {
			return err
		}
		rs, err := loadRules(src, expRulesFile, expRules)
		if err != nil {
			return err
		}
		opt := transformOptions()
		if cmd.Flags().Changed("batch-size") && expBatchSize > 0 {
			opt.BatchSize = expBatchSize
		}
		p, err := transform.New(src, rs, opt)
		if err != nil {
			return err
		}
		dst := expOutput
		if dst == "" {
			dst = utils.DefaultOutputPath(args[0], "processed")
		}
		sum, err := p.Export(cmd.Context(), dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rows to %s (read %d, filtered %d, %s)\n",
			sum.RowsWritten, sum.Output, sum.RowsRead, sum.RowsFiltered, sum.Elapsed.Round(time.Millisecond))
		if n := len(sum.SkippedLines); n > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Skipped %d malformed record(s) at lines %v\n", n, sum.SkippedLines)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringArrayVar(&expRules, "rule", nil, "rule assignment <column>:<rule>[=value] (repeatable)")
	exportCmd.Flags().StringVar(&expRulesFile, "rules", "", "YAML rules file (see `fileflow rules init`)")
	exportCmd.Flags().StringVarP(&expOutput, "output", "o", "", "output path (default <name>.processed.csv next to the source)")
	exportCmd.Flags().IntVar(&expBatchSize, "batch-size", 0, "rows per write flush (default from config)")
}
