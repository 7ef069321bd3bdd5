package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sosnet/realtime/config"
	"github.com/sosnet/realtime/providers"
	"github.com/spf13/cobra"
)

func newRelayCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadRelay()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			logger := newLogger()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			relay := providers.NewRelay(cfg, logger)
			relay.Start()
			defer relay.Stop()

			return relay.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address (overrides RELAY_ADDR)")
	return cmd
}
