package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/internal/ledger"
	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/types"
)

// Gate decides whether a client may receive more content. A client whose best
// voucher already releases the whole deposit has nothing left to pay with.
type Gate struct {
	logger    log.Logger
	ledger    *ledger.Ledger
	transport transport.Transport
	metrics   *Metrics
}

// NewGate returns a gate over l sending content through t.
func NewGate(logger log.Logger, l *ledger.Ledger, t transport.Transport, metrics *Metrics) *Gate {
	return &Gate{
		logger:    logger,
		ledger:    l,
		transport: t,
		metrics:   metrics,
	}
}

// MayServe returns false iff client's best voucher has a zero remaining
// balance. A refusal flags the client as unpaid.
func (g *Gate) MayServe(client common.Address) bool {
	v, ok := g.ledger.Voucher(client)
	if !ok || !v.IsZero() {
		return true
	}
	if g.ledger.MarkUnpaid(client) {
		g.logger.Info("client has not paid for previous service; refusing to provide new service", "client", client)
	}
	return false
}

// Serve sends content to client if MayServe allows it. A refused request is
// dropped, not queued: the caller has to offer it again once the client paid.
// Only content the transport accepted counts as served.
func (g *Gate) Serve(ctx context.Context, client common.Address, content string) (bool, error) {
	if !g.MayServe(client) {
		g.metrics.ServiceRefused.Add(1)
		return false, nil
	}

	bz, err := json.Marshal(types.NewContentMessage(content))
	if err != nil {
		return false, err
	}
	if err := g.transport.Send(ctx, client, bz); err != nil {
		return false, fmt.Errorf("sending content to %s: %w", client, err)
	}
	g.ledger.RecordService(client, content)
	g.metrics.ContentSent.Add(1)
	return true, nil
}
