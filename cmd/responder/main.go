// Command responder runs the realtime relay or a terminal chat client for
// the emergency-response platform.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:          "responder",
		Short:        "Realtime messaging for the emergency-response platform",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newRelayCmd())
	root.AddCommand(newLoginCmd())
	root.AddCommand(newChatCmd())
	return root
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
