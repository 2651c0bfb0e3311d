package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/config"
)

// addChannelFlags exposes the channel terms. Both ends must agree on them.
func addChannelFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("channel.initial_balance", conf.Channel.InitialBalance, "channel deposit, in wei")
	cmd.Flags().String("channel.rate_per_char", conf.Channel.RatePerChar, "price of one character of content, in wei")
}

// addProviderFlags exposes the options of a provider node on the command-line.
func addProviderFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	addChannelFlags(cmd, conf)

	cmd.Flags().String("provider.content_file", conf.Provider.ContentFile, "text file streamed to clients, one line per chunk")
	cmd.Flags().Duration("provider.serve_interval", conf.Provider.ServeInterval, "delay between two chunks sent to a client")
	cmd.Flags().Duration("provider.challenge_period", conf.Provider.ChallengePeriod, "challenge window of the hosted escrow")
	cmd.Flags().Bool("provider.cash_out_on_challenge", conf.Provider.CashOutOnChallenge,
		"redeem the best voucher of a channel as soon as it is challenged")

	cmd.Flags().String("transport.listen_addr", conf.Transport.ListenAddress, "provider listen address. Port required")
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")
}

// addClientFlags exposes the options of a client node on the command-line.
func addClientFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	addChannelFlags(cmd, conf)

	cmd.Flags().Bool("client.auto_pay", conf.Client.AutoPay, "pay for every piece of content as it arrives")
	cmd.Flags().Bool("client.fund_on_start", conf.Client.FundOnStart, "fund the channel on start when it is not open")
	cmd.Flags().String("client.escrow_url", conf.Client.EscrowURL, "base URL of the provider's escrow")

	cmd.Flags().String("transport.remote_addr", conf.Transport.RemoteAddress, "websocket URL of the provider")
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")
}
