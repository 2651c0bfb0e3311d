package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/libs/log"
	tmos "github.com/tendermint/streamer/libs/os"
)

// MakeInitCommand returns the command that writes a config file and a channel
// key into the home directory, keeping the ones already there.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a streamer home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFiles(cmd.OutOrStdout(), conf, logger)
		},
	}
}

func initFiles(out io.Writer, conf *config.Config, logger log.Logger) error {
	configFile := config.ConfigFile(conf.RootDir)
	if tmos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
	} else {
		if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", configFile)
	}

	keyFile := conf.KeyFile()
	if tmos.FileExists(keyFile) {
		logger.Info("Found channel key", "path", keyFile)
	}
	signer, err := crypto.LoadOrGenKeyFile(keyFile)
	if err != nil {
		return err
	}
	logger.Info("Using channel key", "path", keyFile, "address", signer.Address())
	fmt.Fprintln(out, signer.Address().Hex())
	return nil
}
