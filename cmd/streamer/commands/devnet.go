package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/libs/log"
	tmos "github.com/tendermint/streamer/libs/os"
	"github.com/tendermint/streamer/node"
)

// MakeDevnetCommand returns the command that runs a provider and a few
// clients in one process, through a whole channel lifecycle.
func MakeDevnetCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var clients int
	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Run a provider and clients in one process for local testing",
		Long: `devnet starts a provider node and connects clients to it over a loopback
websocket. Every client funds a channel with a fresh key, pays for the
whole content script, then challenges and withdraws what it did not spend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := tmos.TrapSignal(cmd.Context(), logger)
			defer cancel()
			return node.RunDevnet(ctx, conf, logger, clients, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&clients, "clients", 2, "number of clients")
	addProviderFlags(cmd, conf)
	return cmd
}
