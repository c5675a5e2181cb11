package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/api"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := currentConfig.Server
		h := api.NewHandler(a.svc, cfg.UploadDir, logger)
		e := api.NewServer(h, cfg.MaxUploadMB, logger)

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", cfg.Addr)
			errCh <- e.Start(cfg.Addr)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			return err
		}
		if err := a.svc.SaveIndex(); err != nil {
			logger.Error("save index snapshot", "err", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	serveCmd.Flags().String("upload-dir", "", "directory for temporary uploads")
	_ = vp.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = vp.BindPFlag("server.upload_dir", serveCmd.Flags().Lookup("upload-dir"))
	rootCmd.AddCommand(serveCmd)
}
