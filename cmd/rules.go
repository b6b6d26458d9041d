package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	rulesOutput string
	rulesForce  bool
	rulesSet    []string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage YAML rule files",
}

var rulesInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write a rules template listing every column of a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(args[0])
		if err != nil {
			return err
		}
		rs, err := loadRules(src, "", rulesSet)
		if err != nil {
			return err
		}
		dst := rulesOutput
		if dst == "" {
			base := filepath.Base(args[0])
			dst = filepath.Join(filepath.Dir(args[0]), strings.TrimSuffix(base, filepath.Ext(base))+".rules.yaml")
		}
		if _, err := os.Stat(dst); err == nil && !rulesForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", dst)
		}
		if err := rs.SaveFile(dst, filepath.Base(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote rules for %d columns to %s\n", rs.Len(), dst)
		if !rs.Dirty() {
			fmt.Fprintln(cmd.OutOrStdout(), "  Edit the file, then pass it with --rules to preview or export.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesInitCmd)
	rulesInitCmd.Flags().StringVarP(&rulesOutput, "output", "o", "", "rules file path (default <name>.rules.yaml next to the source)")
	rulesInitCmd.Flags().BoolVar(&rulesForce, "force", false, "overwrite an existing rules file")
	rulesInitCmd.Flags().StringArrayVar(&rulesSet, "rule", nil, "pre-set a rule <column>:<rule>[=value] (repeatable)")
}
