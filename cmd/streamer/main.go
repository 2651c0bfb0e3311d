package main

import (
	"context"
	"os"

	"github.com/tendermint/streamer/cmd/streamer/commands"
	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/libs/cli"
	"github.com/tendermint/streamer/libs/log"
)

func main() {
	ctx := context.Background()

	conf, err := commands.ParseConfig(config.DefaultConfig())
	if err != nil {
		panic(err)
	}

	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		panic(err)
	}

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitCommand(conf, logger),
		commands.GenKeyCmd,
		commands.MakeShowAddressCommand(conf),
		commands.MakeProviderCommand(conf, logger),
		commands.MakeClientCommand(conf, logger),
		commands.MakeDevnetCommand(conf, logger),
		commands.VersionCmd,
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		os.Exit(2)
	}
}
