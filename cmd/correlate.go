package cmd

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/fileflow-cli/internal/correlation"
	"github.com/spf13/cobra"
)

var (
	corTies    string
	corMissing string
	corJSON    bool
)

var correlateCmd = &cobra.Command{
	Use:   "correlate <file> <column-x> <column-y>",
	Short: "Pearson, Spearman and covariance between two quantitative columns",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(args[0])
		if err != nil {
			return err
		}
		idx, err := columnIndexes(src, args[1:])
		if err != nil {
			return err
		}
		opt, missing, err := correlationPolicies(corTies, corMissing)
		if err != nil {
			return err
		}
		res, err := correlation.Between(cmd.Context(), src, idx[0], idx[1], missing, opt)
		if errors.Is(err, correlation.ErrNotQuantitative) {
			return fmt.Errorf("%w; check `fileflow stats %s`", err, args[0])
		}
		if err != nil {
			return err
		}
		headers := src.Headers()
		out := cmd.OutOrStdout()
		if corJSON {
			return printJSON(out, struct {
				X string `json:"x"`
				Y string `json:"y"`
				correlation.Result
			}{headers[idx[0]], headers[idx[1]], res})
		}
		fmt.Fprint(out, res.Text(headers[idx[0]], headers[idx[1]]))
		if res.Dropped > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %d row(s) skipped: non-numeric value in one of the columns\n", res.Dropped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	correlateCmd.Flags().StringVar(&corTies, "ties", "", "Spearman tie ranking: average | min (default from config)")
	correlateCmd.Flags().StringVar(&corMissing, "missing", "", "non-numeric cells: skip | zero | error (default from config)")
	correlateCmd.Flags().BoolVar(&corJSON, "json", false, "print JSON instead of text")
}
