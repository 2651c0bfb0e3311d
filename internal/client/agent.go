// Package client is the paying end of a channel. The Agent receives content
// from the provider, works out what it owes for everything received so far
// and signs vouchers for the balance it leaves in the channel.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethparams "github.com/ethereum/go-ethereum/params"

	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/libs/service"
	"github.com/tendermint/streamer/types"
)

// State is the payment mode of the agent, independent of the channel's
// lifecycle.
type State uint8

const (
	// StateIdle is the state before any content arrived.
	StateIdle State = iota
	StateAutoPayOn
	StateAutoPayOff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAutoPayOn:
		return "auto-pay on"
	case StateAutoPayOff:
		return "auto-pay off"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Agent is the client payment agent. Since received content only grows, the
// balances it signs never increase.
type Agent struct {
	service.BaseService
	logger log.Logger

	params    types.ChannelParams
	signer    crypto.Signer
	transport transport.Transport
	account   escrow.Account
	chain     *chainview.Poller
	metrics   *Metrics

	// serializes signing and sending so vouchers leave in the order their
	// balances were computed
	payMtx sync.Mutex

	mtx         sync.Mutex
	received    string
	receivedLen int
	gotContent  bool
	autoPay     bool
	last        *types.Voucher
	onContent   func(content string)
}

// NewAgent returns an agent paying from signer's channel.
func NewAgent(
	logger log.Logger,
	params types.ChannelParams,
	signer crypto.Signer,
	t transport.Transport,
	account escrow.Account,
	chain *chainview.Poller,
	autoPay bool,
	metrics *Metrics,
) *Agent {
	a := &Agent{
		logger:    logger,
		params:    params,
		signer:    signer,
		transport: t,
		account:   account,
		chain:     chain,
		metrics:   metrics,
		autoPay:   autoPay,
	}
	a.BaseService = *service.NewBaseService(logger, "PaymentAgent", a)
	return a
}

// OnStart implements service.Service. The agent listens on its own channel
// address until the service stops.
func (a *Agent) OnStart(ctx context.Context) error {
	_, err := a.transport.Subscribe(ctx, a.signer.Address(), a.receiveContent)
	return err
}

// OnStop implements service.Service.
func (a *Agent) OnStop() {}

func (a *Agent) receiveContent(ctx context.Context, msg []byte) {
	m, err := types.DecodeMessage(msg)
	if err != nil {
		a.logger.Debug("ignoring malformed frame", "err", err)
		return
	}
	if m.IsVoucher() {
		a.logger.Info("received unexpected channel data", "data", string(msg))
		return
	}

	n := types.ContentLen(m.Content)
	a.mtx.Lock()
	a.received += m.Content
	a.receivedLen += n
	a.gotContent = true
	autoPay := a.autoPay
	onContent := a.onContent
	a.mtx.Unlock()

	a.metrics.ReceivedChars.Add(float64(n))
	if onContent != nil {
		onContent(m.Content)
	}
	if !autoPay {
		return
	}
	if _, err := a.Pay(ctx); err != nil {
		a.logger.Error("failed to pay for content", "err", err)
	}
}

// OnContent registers fn to be called with every piece of content received,
// in order, before it is paid for.
func (a *Agent) OnContent(fn func(content string)) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.onContent = fn
}

// SignVoucher signs balance. A declined or failed signature yields
// types.ErrSigning and nothing is sent.
func (a *Agent) SignVoucher(balance *big.Int) (types.Voucher, error) {
	v, err := crypto.SignVoucher(a.signer, balance)
	if err != nil {
		a.metrics.SigningFailures.Add(1)
		return types.Voucher{}, err
	}
	return v, nil
}

// Pay signs and sends a voucher covering all content received so far.
func (a *Agent) Pay(ctx context.Context) (types.Voucher, error) {
	a.payMtx.Lock()
	defer a.payMtx.Unlock()

	balance := a.params.RemainingBalance(a.ReceivedLen())
	v, err := a.SignVoucher(balance)
	if err != nil {
		return types.Voucher{}, err
	}

	bz, err := json.Marshal(types.NewVoucherMessage(v))
	if err != nil {
		return types.Voucher{}, err
	}
	if err := a.transport.Send(ctx, a.signer.Address(), bz); err != nil {
		return types.Voucher{}, fmt.Errorf("sending voucher: %w", err)
	}

	a.mtx.Lock()
	a.last = &v
	a.mtx.Unlock()

	a.metrics.VouchersSent.Add(1)
	a.metrics.RemainingBalance.Set(weiToEther(balance))
	a.logger.Debug("sent voucher", "balance", balance)
	return v, nil
}

// SetAutoPay switches auto-pay. Turning it on pays for the content received
// so far, so the provider catches up on vouchers it may have missed.
func (a *Agent) SetAutoPay(ctx context.Context, on bool) error {
	a.mtx.Lock()
	prev := a.autoPay
	a.autoPay = on
	a.mtx.Unlock()

	if on && !prev {
		_, err := a.Pay(ctx)
		return err
	}
	return nil
}

// State returns the payment mode.
func (a *Agent) State() State {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	switch {
	case !a.gotContent:
		return StateIdle
	case a.autoPay:
		return StateAutoPayOn
	default:
		return StateAutoPayOff
	}
}

// AutoPay reports whether auto-pay is on.
func (a *Agent) AutoPay() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.autoPay
}

// Received returns all content received so far.
func (a *Agent) Received() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.received
}

// ReceivedLen returns the number of characters received so far.
func (a *Agent) ReceivedLen() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.receivedLen
}

// LastVoucher returns the last voucher sent.
func (a *Agent) LastVoucher() (types.Voucher, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.last == nil {
		return types.Voucher{}, false
	}
	return *a.last, true
}

// Address returns the channel address.
func (a *Agent) Address() common.Address { return a.signer.Address() }

// View returns the latest lifecycle view of the agent's channel.
func (a *Agent) View() chainview.View { return a.chain.View(a.signer.Address()) }

// Fund opens the channel with the configured deposit.
func (a *Agent) Fund(ctx context.Context) error {
	if err := a.View().Require(chainview.ActionFund); err != nil {
		return err
	}
	if err := a.account.Fund(ctx, a.params.InitialBalance); err != nil {
		return fmt.Errorf("funding channel: %w", err)
	}
	a.logger.Info("funded channel", "amount", a.params.InitialBalance)
	return a.chain.Refresh(ctx)
}

// Challenge starts the on-chain countdown that lets the client reclaim what
// it did not pay. Auto-pay is switched off first.
func (a *Agent) Challenge(ctx context.Context) error {
	if err := a.View().Require(chainview.ActionChallenge); err != nil {
		return err
	}
	if err := a.SetAutoPay(ctx, false); err != nil {
		return err
	}
	if err := a.account.Challenge(ctx); err != nil {
		return fmt.Errorf("challenging channel: %w", err)
	}
	a.logger.Info("challenged channel")
	return a.chain.Refresh(ctx)
}

// Withdraw closes the channel once the challenge period is over.
func (a *Agent) Withdraw(ctx context.Context) error {
	if err := a.View().Require(chainview.ActionWithdraw); err != nil {
		return err
	}
	if err := a.account.Withdraw(ctx); err != nil {
		return fmt.Errorf("withdrawing channel: %w", err)
	}
	a.logger.Info("closed channel and withdrew funds")
	return a.chain.Refresh(ctx)
}

func weiToEther(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(ethparams.Ether)).Float64()
	return f
}
