package cmd

import (
	"fmt"

	"github.com/KaramelBytes/fileflow-cli/internal/profile"
	"github.com/KaramelBytes/fileflow-cli/internal/stats"
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats <file> [column...]",
	Short: "Profile columns and compute descriptive statistics",
	Long: `Profile columns and compute descriptive statistics.

Columns are addressed by header name or 0-based position; with none given,
every column is reported. Quantitative columns are summarised by value,
all others by value length.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(args[0])
		if err != nil {
			return err
		}
		workers := settings().Workers
		var cols []profile.Column
		if len(args) == 1 {
			if cols, err = src.Profiles(cmd.Context(), workers); err != nil {
				return err
			}
		} else {
			idx, err := columnIndexes(src, args[1:])
			if err != nil {
				return err
			}
			for _, i := range idx {
				c, err := src.Column(cmd.Context(), i)
				if err != nil {
					return err
				}
				cols = append(cols, c)
			}
		}
		results, err := stats.ComputeColumns(cmd.Context(), src, cols, workers)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statsJSON {
			display := make([]stats.Display, len(results))
			for i, r := range results {
				display[i] = r.Display()
			}
			return printJSON(out, display)
		}
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprint(out, r.Text())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON instead of text")
}
