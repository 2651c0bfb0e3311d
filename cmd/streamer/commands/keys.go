package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/crypto"
)

// GenKeyCmd generates a new channel key and prints it to the standard output
// in the key file format.
var GenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a new channel key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := crypto.GenPrivKeySigner()
		if err != nil {
			return err
		}
		bz, err := json.MarshalIndent(crypto.KeyFile{
			Address: signer.Address().Hex(),
			PrivKey: signer.PrivKeyHex(),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bz))
		return nil
	},
}

// MakeShowAddressCommand returns the command that prints the channel address
// of the configured key.
func MakeShowAddressCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show-address",
		Short: "Show the channel address of this node's key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := crypto.LoadKeyFile(conf.KeyFile())
			if err != nil {
				return fmt.Errorf("failed to load channel key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), signer.Address().Hex())
			return nil
		},
	}
}
