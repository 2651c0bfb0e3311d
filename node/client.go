package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/internal/client"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/internal/transport/ws"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/libs/service"
)

// ClientNode is the paying end of the protocol: a payment agent connected to
// a provider's hub and escrow.
type ClientNode struct {
	service.BaseService
	logger log.Logger

	config *config.Config
	signer crypto.Signer

	conn  *ws.Client
	chain *chainview.Poller
	agent *client.Agent

	wg sync.WaitGroup
}

// NewClientNode dials the provider's hub at cfg.Transport.RemoteAddress and
// wires a payment agent signing with signer.
func NewClientNode(ctx context.Context, cfg *config.Config, logger log.Logger, signer crypto.Signer) (*ClientNode, error) {
	params, err := cfg.Channel.Params()
	if err != nil {
		return nil, err
	}

	metrics := client.NopMetrics()
	if cfg.Instrumentation.Prometheus {
		metrics = client.PrometheusMetrics(cfg.Instrumentation.Namespace, "moniker", cfg.Moniker)
	}

	conn, err := ws.Dial(ctx, cfg.Transport.RemoteAddress, logger.With("module", "transport"),
		ws.PingPeriod(cfg.Transport.PingPeriod),
		ws.BufferSize(cfg.Transport.BufferSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to provider: %w", err)
	}

	remote := escrow.NewHTTPClient(cfg.Client.EscrowURL)
	n := &ClientNode{
		logger: logger,
		config: cfg,
		signer: signer,
		conn:   conn,
		chain:  chainview.NewPoller(logger.With("module", "chainview"), remote, cfg.Client.PollInterval),
	}
	n.agent = client.NewAgent(
		logger.With("module", "agent"),
		params,
		signer,
		conn,
		remote.Account(signer),
		n.chain,
		cfg.Client.AutoPay,
		metrics,
	)
	n.BaseService = *service.NewBaseService(logger, "ClientNode", n)
	return n, nil
}

// OnStart implements service.Service. It funds the channel first when
// configured to and the channel was never opened.
func (n *ClientNode) OnStart(ctx context.Context) error {
	if err := n.start(ctx); err != nil {
		_ = n.conn.Close()
		return err
	}
	return nil
}

func (n *ClientNode) start(ctx context.Context) error {
	if err := n.chain.Start(ctx); err != nil {
		return err
	}
	if err := n.agent.Start(ctx); err != nil {
		return err
	}
	if n.config.Client.FundOnStart && n.agent.View().Allows(chainview.ActionFund) {
		if err := n.agent.Fund(ctx); err != nil {
			return err
		}
	}
	n.logger.Info("client ready", "address", n.signer.Address(), "channel", n.agent.View().String())

	if n.config.Instrumentation.Prometheus {
		listener, err := Listen(n.config.Instrumentation.PrometheusListenAddr, 0)
		if err != nil {
			return err
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := ServePrometheus(ctx, listener, n.logger); err != nil {
				n.logger.Error("prometheus server stopped with error", "err", err)
			}
		}()
	}
	return nil
}

// OnStop implements service.Service.
func (n *ClientNode) OnStop() {
	stopService(n.logger, n.agent)
	stopService(n.logger, n.chain)
	if err := n.conn.Close(); err != nil {
		n.logger.Debug("closing connection", "err", err)
	}
	n.wg.Wait()
}

// Agent returns the payment agent.
func (n *ClientNode) Agent() *client.Agent { return n.agent }

// Disconnected is closed when the connection to the provider is lost.
func (n *ClientNode) Disconnected() <-chan struct{} { return n.conn.Done() }
