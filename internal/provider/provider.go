package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/internal/ledger"
	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/libs/service"
	"github.com/tendermint/streamer/types"
)

// ChannelStatus is the operator's view of one channel.
type ChannelStatus struct {
	ledger.Entry
	View      chainview.View
	Claimable *big.Int
	// Urgent is set for challenged channels: their vouchers must be cashed
	// out before the challenge period ends.
	Urgent bool
}

// Provider listens on every active channel, feeds incoming vouchers to the
// ledger and serves content through the gate.
type Provider struct {
	service.BaseService
	logger log.Logger

	ledger    *ledger.Ledger
	gate      *Gate
	transport transport.Transport
	chain     *chainview.Poller
	payee     escrow.Payee
	metrics   *Metrics

	mtx  sync.Mutex
	ctx  context.Context
	subs map[common.Address]*transport.Subscription
}

// NewProvider wires a provider. It registers itself with chain, so chain must
// not be started yet.
func NewProvider(
	logger log.Logger,
	l *ledger.Ledger,
	t transport.Transport,
	chain *chainview.Poller,
	payee escrow.Payee,
	metrics *Metrics,
) *Provider {
	p := &Provider{
		logger:    logger,
		ledger:    l,
		gate:      NewGate(logger, l, t, metrics),
		transport: t,
		chain:     chain,
		payee:     payee,
		metrics:   metrics,
		subs:      make(map[common.Address]*transport.Subscription),
	}
	p.BaseService = *service.NewBaseService(logger, "Provider", p)
	chain.OnChange(p.onChannelChange)
	return p
}

// OnStart implements service.Service. It subscribes to the channels the
// chain view already knows about; later ones are picked up as they open.
func (p *Provider) OnStart(ctx context.Context) error {
	p.mtx.Lock()
	p.ctx = ctx
	p.mtx.Unlock()

	for addr, v := range p.chain.Views() {
		if v.Active() {
			if err := p.subscribe(addr); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnStop implements service.Service. Subscriptions end with the service
// context.
func (p *Provider) OnStop() {}

func (p *Provider) onChannelChange(_ context.Context, addr common.Address, _, next chainview.View) {
	if !next.Active() {
		return
	}
	if err := p.subscribe(addr); err != nil {
		p.logger.Error("failed to subscribe to channel", "client", addr, "err", err)
	}
}

func (p *Provider) subscribe(addr common.Address) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.ctx == nil {
		// not started; OnStart catches up
		return nil
	}
	if _, ok := p.subs[addr]; ok {
		return nil
	}

	sub, err := p.transport.Subscribe(p.ctx, addr, p.receiveVoucher(addr))
	if err != nil {
		return err
	}
	p.subs[addr] = sub
	p.metrics.Subscriptions.Set(float64(len(p.subs)))
	p.logger.Info("listening on channel", "client", addr)
	return nil
}

// receiveVoucher handles the frames of one channel. Every failure stays
// contained to the frame that caused it.
func (p *Provider) receiveVoucher(client common.Address) transport.Handler {
	return func(_ context.Context, msg []byte) {
		m, err := types.DecodeMessage(msg)
		if err != nil {
			p.metrics.MalformedMessages.Add(1)
			p.logger.Debug("ignoring malformed frame", "client", client, "err", err)
			return
		}
		if !m.IsVoucher() {
			p.logger.Debug("ignoring content frame on provider side", "client", client)
			return
		}

		v, err := m.Voucher.Voucher()
		switch {
		case errors.Is(err, types.ErrNoVoucher):
			return
		case err != nil:
			p.metrics.MalformedMessages.Add(1)
			p.logger.Debug("ignoring malformed voucher", "client", client, "err", err)
			return
		}

		if err := p.chain.View(client).Require(chainview.ActionAcceptVoucher); err != nil {
			p.logger.Info("ignoring voucher", "client", client, "err", err)
			return
		}

		// rejections are logged by the ledger
		_, _ = p.ledger.Offer(client, v)
	}
}

// Serve sends content to client if its channel is active and the gate lets
// it through.
func (p *Provider) Serve(ctx context.Context, client common.Address, content string) (bool, error) {
	if err := p.chain.View(client).Require(chainview.ActionServe); err != nil {
		return false, err
	}
	return p.gate.Serve(ctx, client, content)
}

// MayServe reports whether client would currently be served.
func (p *Provider) MayServe(client common.Address) bool {
	return p.chain.View(client).Allows(chainview.ActionServe) && p.gate.MayServe(client)
}

// ActiveChannels returns the clients whose channels currently carry service,
// ordered by address.
func (p *Provider) ActiveChannels() []common.Address {
	var addrs []common.Address
	for addr, v := range p.chain.Views() {
		if v.Active() {
			addrs = append(addrs, addr)
		}
	}
	sortAddresses(addrs)
	return addrs
}

// CashOut redeems client's best voucher with the escrow and returns the
// amount paid out.
func (p *Provider) CashOut(ctx context.Context, client common.Address) (*big.Int, error) {
	v, ok := p.ledger.Voucher(client)
	if !ok {
		return nil, fmt.Errorf("cashing out %s: %w", client, types.ErrNoVoucher)
	}
	paid, err := p.payee.WithdrawEarnings(ctx, client, v)
	if err != nil {
		return nil, fmt.Errorf("cashing out %s: %w", client, err)
	}
	f, _ := new(big.Float).SetInt(paid).Float64()
	p.metrics.Earnings.Add(f)
	p.logger.Info("cashed out voucher", "client", client, "amount", paid)
	return paid, nil
}

// Channels returns the status of every channel the provider knows about,
// from the chain or from the ledger, ordered by client address.
func (p *Provider) Channels() []ChannelStatus {
	views := p.chain.Views()
	seen := make(map[common.Address]bool, len(views))

	var out []ChannelStatus
	for _, e := range p.ledger.Entries() {
		seen[e.Client] = true
		out = append(out, p.status(e, views[e.Client]))
	}
	for addr, v := range views {
		if !seen[addr] {
			out = append(out, p.status(ledger.Entry{Client: addr}, v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Client[:], out[j].Client[:]) < 0
	})
	return out
}

func (p *Provider) status(e ledger.Entry, v chainview.View) ChannelStatus {
	claimable := new(big.Int)
	if e.Voucher != nil {
		claimable = p.ledger.Params().Claimable(e.Voucher.RemainingBalance())
	}
	return ChannelStatus{
		Entry:     e,
		View:      v,
		Claimable: claimable,
		Urgent:    v.State() == chainview.StateChallenged,
	}
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
