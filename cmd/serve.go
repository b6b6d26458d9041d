package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/KaramelBytes/fileflow-cli/internal/api"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveExportDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve <file>",
	Short: "Serve statistics, correlation, preview and export for a file over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(args[0])
		if err != nil {
			return err
		}
		c := settings()
		corr, missing, err := correlationPolicies("", "")
		if err != nil {
			return err
		}
		addr := c.ServeAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		srv := api.NewServer(src, api.Options{
			Workers:    c.Workers,
			SampleRows: c.SampleRows,
			Ties:       corr.Ties,
			Missing:    missing,
			Transform:  transformOptions(),
			ExportDir:  serveExportDir,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr) }()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving %s on http://%s/api\n", src.Path(), addr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config serve_addr)")
	serveCmd.Flags().StringVar(&serveExportDir, "export-dir", "", "directory for exports (default: the source's directory)")
}
