package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a hex encoded account address. Channels are identified
// by the client's address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
