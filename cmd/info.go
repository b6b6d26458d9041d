package cmd

import (
	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/spf13/cobra"
)

var (
	infoSampleRows int
	infoJSON       bool
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show file facts, row count and a sample of rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := sourceOptions()
		if err != nil {
			return err
		}
		n := settings().SampleRows
		if cmd.Flags().Changed("sample-rows") {
			n = infoSampleRows
		}
		info, err := dataset.Inspect(cmd.Context(), args[0], opt, n)
		if err != nil {
			return err
		}
		if infoJSON {
			return printJSON(cmd.OutOrStdout(), info)
		}
		writeInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().IntVar(&infoSampleRows, "sample-rows", 0, "number of sample rows to show (default from config)")
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print JSON instead of text")
}
