package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"campuspay/pkg/api"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Examples:
  campuspay serve
  campuspay serve --addr :9090 --config campuspay.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				serverCfg := api.DefaultServerConfig()
				serverCfg.Address = opts.cfg.Server.Address
				if addr != "" {
					serverCfg.Address = addr
				}
				serverCfg.ReadTimeout = opts.cfg.Server.ReadTimeout
				serverCfg.WriteTimeout = opts.cfg.Server.WriteTimeout

				server, err := api.NewServer(api.Deps{
					Directory: a.directory,
					Ledger:    a.ledger,
					Chat:      a.chat,
					Machines:  a.newMachine,
					Bus:       a.bus,
					Memory:    a.memory,
					Registry:  a.registry,
				}, serverCfg)
				if err != nil {
					return err
				}
				if err := server.Start(); err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				<-ctx.Done()

				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Stop(shutdownCtx); err != nil {
					a.logger.Error("server shutdown error", zap.Error(err))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}
