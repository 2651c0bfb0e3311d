package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/libs/log"
	tmos "github.com/tendermint/streamer/libs/os"
	"github.com/tendermint/streamer/node"
)

var errDisconnected = errors.New("lost connection to the provider")

// MakeClientCommand returns the command that connects to a provider and pays
// for the content it streams, which is printed as it arrives. Its
// subcommands drive the channel by hand.
func MakeClientCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a provider and pay for its content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := crypto.LoadOrGenKeyFile(conf.KeyFile())
			if err != nil {
				return fmt.Errorf("failed to load channel key: %w", err)
			}

			ctx, cancel := tmos.TrapSignal(cmd.Context(), logger)
			defer cancel()

			n, err := node.NewClientNode(ctx, conf, logger, signer)
			if err != nil {
				return fmt.Errorf("failed to create client node: %w", err)
			}
			out := cmd.OutOrStdout()
			n.Agent().OnContent(func(content string) { fmt.Fprint(out, content) })
			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start client node: %w", err)
			}

			select {
			case <-ctx.Done():
				n.Wait()
				return nil
			case <-n.Disconnected():
				cancel()
				n.Wait()
				return errDisconnected
			}
		},
	}
	addClientFlags(cmd, conf)

	cmd.AddCommand(
		makeChannelCommand(conf, chainview.ActionFund, "Fund the channel with the initial balance"),
		makeChannelCommand(conf, chainview.ActionChallenge, "Start the challenge period of the channel"),
		makeChannelCommand(conf, chainview.ActionWithdraw, "Close the channel once the challenge period is over"),
		makeChannelStatusCommand(conf),
	)
	return cmd
}

// makeChannelCommand returns a subcommand sending one escrow transaction for
// the configured key, when the channel state permits it.
func makeChannelCommand(conf *config.Config, action chainview.Action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action.String(),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			signer, err := crypto.LoadOrGenKeyFile(conf.KeyFile())
			if err != nil {
				return fmt.Errorf("failed to load channel key: %w", err)
			}
			remote := escrow.NewHTTPClient(conf.Client.EscrowURL)

			view, err := readView(ctx, remote, signer.Address())
			if err != nil {
				return err
			}
			if err := view.Require(action); err != nil {
				return err
			}

			acct := remote.Account(signer)
			switch action {
			case chainview.ActionFund:
				params, err := conf.Channel.Params()
				if err != nil {
					return err
				}
				if err := acct.Fund(ctx, params.InitialBalance); err != nil {
					return err
				}
			case chainview.ActionChallenge:
				if err := acct.Challenge(ctx); err != nil {
					return err
				}
			case chainview.ActionWithdraw:
				if err := acct.Withdraw(ctx); err != nil {
					return err
				}
			}

			if view, err = readView(ctx, remote, signer.Address()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), view)
			return nil
		},
	}
	addChannelFlags(cmd, conf)
	cmd.Flags().String("client.escrow_url", conf.Client.EscrowURL, "base URL of the provider's escrow")
	return cmd
}

func makeChannelStatusCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := crypto.LoadKeyFile(conf.KeyFile())
			if err != nil {
				return fmt.Errorf("failed to load channel key: %w", err)
			}
			view, err := readView(cmd.Context(), escrow.NewHTTPClient(conf.Client.EscrowURL), signer.Address())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", signer.Address().Hex(), view)
			return nil
		},
	}
	cmd.Flags().String("client.escrow_url", conf.Client.EscrowURL, "base URL of the provider's escrow")
	return cmd
}

func readView(ctx context.Context, reader escrow.Reader, addr common.Address) (chainview.View, error) {
	facts, err := chainview.ReadFacts(ctx, reader)
	if err != nil {
		return chainview.View{}, err
	}
	return chainview.NewView(facts[addr]), nil
}
