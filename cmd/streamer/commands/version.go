package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/streamer/version"
)

var verbose bool

// VersionCmd prints the version of the software.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		if verbose {
			values, _ := json.MarshalIndent(struct {
				Streamer        string `json:"streamer"`
				WireProtocol    uint64 `json:"wire_protocol"`
				VoucherProtocol uint64 `json:"voucher_protocol"`
			}{
				Streamer:        version.Version,
				WireProtocol:    version.WireProtocol.Uint64(),
				VoucherProtocol: version.VoucherProtocol.Uint64(),
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		}
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
}
