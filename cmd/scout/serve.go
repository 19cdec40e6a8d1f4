package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/premium_scout/internal/api"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recommendations over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx := cmd.Context()
			a := buildApp(ctx, cfg, logger)
			defer func() {
				if err := a.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close cache")
				}
			}()
			srv := api.NewServer(api.Config{
				Port:         cfg.Server.Port,
				DefaultDTE:   cfg.Strategy.DefaultDTE,
				ReadTimeout:  cfg.ReadTimeout(),
				WriteTimeout: cfg.WriteTimeout(),
			}, a.fetcher, a.analyzer, a.metrics, logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutdown signal received, stopping server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
