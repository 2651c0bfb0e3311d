package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/libs/log"
	tmos "github.com/tendermint/streamer/libs/os"
	"github.com/tendermint/streamer/node"
)

// MakeProviderCommand returns the command that runs a provider node until the
// process is interrupted.
func MakeProviderCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "provider",
		Aliases: []string{"serve"},
		Short:   "Run a provider node streaming content to paying clients",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := tmos.TrapSignal(cmd.Context(), logger)
			defer cancel()

			n, err := node.NewProviderNode(conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create provider node: %w", err)
			}
			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start provider node: %w", err)
			}
			logger.Info("started provider node", "websocket", n.WebsocketURL(), "escrow", n.EscrowURL())

			// the node stops with ctx
			n.Wait()
			return nil
		},
	}
	addProviderFlags(cmd, conf)
	return cmd
}
