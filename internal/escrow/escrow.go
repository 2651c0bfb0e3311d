// Package escrow describes the on-chain contract that holds channel deposits,
// as seen by the off-chain protocol. The contract is the only authority on
// channel lifecycle and settlement; this package only reads it and submits
// the handful of transactions each side needs.
package escrow

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/types"
)

var (
	ErrAlreadyFunded   = errors.New("channel already funded")
	ErrNotFunded       = errors.New("channel not funded")
	ErrNotChallenged   = errors.New("channel not challenged")
	ErrChallengeActive = errors.New("challenge period has not elapsed")
	ErrChannelClosed   = errors.New("channel closed")
	ErrNothingToClaim  = errors.New("voucher does not release any funds")
	ErrInvalidAmount   = errors.New("invalid deposit amount")
)

// Channels is the lifecycle of every channel as of one escrow state.
type Channels struct {
	Opened     []common.Address `json:"opened"`
	Challenged []common.Address `json:"challenged"`
	Closed     []common.Address `json:"closed"`
}

// Reader exposes the read-only lifecycle facts of every channel.
type Reader interface {
	// Channels returns the opened, challenged and closed lists in one read.
	Channels(ctx context.Context) (Channels, error)
	// Opened lists every address that ever funded a channel.
	Opened(ctx context.Context) ([]common.Address, error)
	// Challenged lists every address that challenged its channel.
	Challenged(ctx context.Context) ([]common.Address, error)
	// Closed lists every address whose channel was defunded.
	Closed(ctx context.Context) ([]common.Address, error)
	// TimeLeft returns the seconds remaining in the challenge period of addr.
	// It fails with ErrNotChallenged for a channel that is not challenged.
	TimeLeft(ctx context.Context, addr common.Address) (uint64, error)
}

// Account submits the client side transactions, bound to one address.
type Account interface {
	Address() common.Address
	// Fund opens the caller's channel with amount.
	Fund(ctx context.Context, amount *big.Int) error
	// Challenge starts the countdown after which the caller may withdraw.
	Challenge(ctx context.Context) error
	// Withdraw closes the caller's channel and returns what is left of the
	// deposit once the challenge period elapsed.
	Withdraw(ctx context.Context) error
}

// Payee submits the provider side transaction: redeeming a voucher.
type Payee interface {
	// WithdrawEarnings pays out the difference between the channel's current
	// balance and the voucher's remaining balance, and returns that amount.
	WithdrawEarnings(ctx context.Context, client common.Address, v types.Voucher) (*big.Int, error)
}
