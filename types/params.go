package types

import (
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/params"
)

// ChannelParams are the economic constants shared by both ends of a channel.
type ChannelParams struct {
	// InitialBalance is the amount deposited on-chain when the channel is
	// funded, in wei.
	InitialBalance *big.Int
	// RatePerChar is the price of one character of served content, in wei.
	RatePerChar *big.Int
}

// DefaultChannelParams returns a 0.5 ether channel charging 0.01 ether per
// character.
func DefaultChannelParams() ChannelParams {
	return ChannelParams{
		InitialBalance: new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(2)),
		RatePerChar:    new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(100)),
	}
}

// ValidateBasic performs basic validation.
func (p ChannelParams) ValidateBasic() error {
	if p.InitialBalance == nil || p.InitialBalance.Sign() <= 0 {
		return fmt.Errorf("initial balance must be positive")
	}
	if p.InitialBalance.BitLen() > BalanceSize*8 {
		return fmt.Errorf("initial balance does not fit in %d bytes", BalanceSize)
	}
	if p.RatePerChar == nil || p.RatePerChar.Sign() < 0 {
		return fmt.Errorf("rate per char can't be negative")
	}
	return nil
}

// InRange reports whether balance satisfies 0 <= balance <= InitialBalance.
func (p ChannelParams) InRange(balance *big.Int) bool {
	return balance != nil && balance.Sign() >= 0 && balance.Cmp(p.InitialBalance) <= 0
}

// DuePayment is the total owed for totalLen characters of content.
func (p ChannelParams) DuePayment(totalLen int) *big.Int {
	return new(big.Int).Mul(p.RatePerChar, big.NewInt(int64(totalLen)))
}

// RemainingBalance is the balance left after paying for totalLen characters,
// clamped at zero.
func (p ChannelParams) RemainingBalance(totalLen int) *big.Int {
	updated := new(big.Int).Sub(p.InitialBalance, p.DuePayment(totalLen))
	if updated.Sign() < 0 {
		return new(big.Int)
	}
	return updated
}

// Claimable is what the provider can withdraw given the remaining balance of
// its best voucher.
func (p ChannelParams) Claimable(remaining *big.Int) *big.Int {
	if remaining == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(p.InitialBalance, remaining)
}

// ContentLen is the billing length of content: its number of characters.
func ContentLen(content string) int {
	return utf8.RuneCountInString(content)
}
