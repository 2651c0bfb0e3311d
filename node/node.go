package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/cors"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/internal/ledger"
	"github.com/tendermint/streamer/internal/provider"
	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/internal/transport/ws"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/libs/service"
	"github.com/tendermint/streamer/types"
)

// ProviderNode is the serving end of the protocol. It hosts the websocket hub
// both ends talk through, the simulated escrow, and the operator endpoints.
type ProviderNode struct {
	service.BaseService
	logger log.Logger

	// config
	config *config.Config
	params types.ChannelParams

	// services
	escrow   *escrow.Simulated
	store    *ledger.Store
	ledger   *ledger.Ledger
	bus      *transport.Bus
	hub      *ws.Hub
	chain    *chainview.Poller
	provider *provider.Provider
	feed     *provider.Feed // nil without a content file

	handler  http.Handler
	listener net.Listener
	wg       sync.WaitGroup
}

// ProviderOption sets an optional parameter on the provider node.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	content []string
}

// ProviderContent feeds chunks to clients instead of the configured content
// file.
func ProviderContent(chunks []string) ProviderOption {
	return func(o *providerOptions) { o.content = chunks }
}

// NewProviderNode wires every provider service from cfg. Nothing listens
// until the node is started.
func NewProviderNode(cfg *config.Config, logger log.Logger, options ...ProviderOption) (*ProviderNode, error) {
	var opts providerOptions
	for _, option := range options {
		option(&opts)
	}

	params, err := cfg.Channel.Params()
	if err != nil {
		return nil, err
	}

	ledgerMetrics, providerMetrics := ledger.NopMetrics(), provider.NopMetrics()
	if cfg.Instrumentation.Prometheus {
		ledgerMetrics = ledger.PrometheusMetrics(cfg.Instrumentation.Namespace, "moniker", cfg.Moniker)
		providerMetrics = provider.PrometheusMetrics(cfg.Instrumentation.Namespace, "moniker", cfg.Moniker)
	}

	n := &ProviderNode{
		logger: logger,
		config: cfg,
		params: params,
		escrow: escrow.NewSimulated(escrow.WithChallengePeriod(cfg.Provider.ChallengePeriod)),
		store:  ledger.NewStore(dbm.NewMemDB()),
		bus: transport.NewBus(logger.With("module", "transport"),
			transport.BufferCapacity(cfg.Transport.BufferSize)),
	}
	n.ledger = ledger.NewLedger(logger.With("module", "ledger"), params, n.store, ledgerMetrics)
	n.hub = ws.NewHub(logger.With("module", "hub"), n.bus,
		ws.PingPeriod(cfg.Transport.PingPeriod),
		ws.BufferSize(cfg.Transport.BufferSize),
	)
	n.chain = chainview.NewPoller(logger.With("module", "chainview"), n.escrow, cfg.Provider.ChallengePollInterval)
	n.provider = provider.NewProvider(
		logger.With("module", "provider"),
		n.ledger,
		n.bus.Endpoint("provider"),
		n.chain,
		n.escrow,
		providerMetrics,
	)
	if cfg.Provider.CashOutOnChallenge {
		n.chain.OnChange(n.cashOutOnChallenge)
	}

	chunks := opts.content
	if path := cfg.Provider.ContentPath(); len(chunks) == 0 && path != "" {
		if chunks, err = LoadContent(path); err != nil {
			return nil, err
		}
	}
	if len(chunks) > 0 {
		n.feed = provider.NewFeed(logger.With("module", "feed"), n.provider, chunks, cfg.Provider.ServeInterval)
	}

	n.handler = n.makeHandler()
	n.BaseService = *service.NewBaseService(logger, "ProviderNode", n)
	return n, nil
}

func (n *ProviderNode) makeHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/websocket", n.hub)
	mux.Handle("/escrow/", escrow.NewHTTPHandler(n.logger.With("module", "escrow"), n.escrow))
	mux.HandleFunc("/status", n.statusHandler)
	mux.HandleFunc("/cash_out", n.cashOutHandler)

	var rootHandler http.Handler = mux
	if n.config.Transport.IsCorsEnabled() {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: n.config.Transport.CORSAllowedOrigins,
			AllowedMethods: n.config.Transport.CORSAllowedMethods,
			AllowedHeaders: n.config.Transport.CORSAllowedHeaders,
		})
		rootHandler = corsMiddleware.Handler(mux)
	}
	return rootHandler
}

// OnStart implements service.Service.
func (n *ProviderNode) OnStart(ctx context.Context) error {
	listener, err := Listen(n.config.Transport.ListenAddress, n.config.Transport.MaxOpenConnections)
	if err != nil {
		return err
	}
	n.listener = listener

	// the provider must be running before the poller reports channels to it
	if err := n.provider.Start(ctx); err != nil {
		listener.Close()
		return err
	}
	if err := n.chain.Start(ctx); err != nil {
		listener.Close()
		return err
	}
	if n.feed != nil {
		if err := n.feed.Start(ctx); err != nil {
			listener.Close()
			return err
		}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := Serve(ctx, listener, n.handler, n.logger); err != nil {
			n.logger.Error("provider server stopped with error", "err", err)
		}
	}()

	if n.config.Instrumentation.Prometheus {
		if err := n.startPrometheusServer(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *ProviderNode) startPrometheusServer(ctx context.Context) error {
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
	return nil
}

// OnStop implements service.Service.
func (n *ProviderNode) OnStop() {
	if n.feed != nil {
		stopService(n.logger, n.feed)
	}
	stopService(n.logger, n.chain)
	stopService(n.logger, n.provider)
	n.hub.Close()
	n.wg.Wait()
	n.bus.Close()
	if err := n.store.Close(); err != nil {
		n.logger.Error("closing voucher store", "err", err)
	}
}

// cashOutOnChallenge redeems the best voucher of a channel that was just
// challenged, before its client can withdraw the whole deposit.
func (n *ProviderNode) cashOutOnChallenge(ctx context.Context, addr common.Address, prev, next chainview.View) {
	if next.State() != chainview.StateChallenged || prev.State() == chainview.StateChallenged {
		return
	}
	_, err := n.provider.CashOut(ctx, addr)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNoVoucher), errors.Is(err, escrow.ErrNothingToClaim):
		n.logger.Debug("nothing to cash out on challenge", "client", addr)
	default:
		n.logger.Error("failed to cash out challenged channel", "client", addr, "err", err)
	}
}

// ListenAddr returns the address the node serves on, once started.
func (n *ProviderNode) ListenAddr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// WebsocketURL returns the URL clients dial, once started.
func (n *ProviderNode) WebsocketURL() string {
	return fmt.Sprintf("ws://%s/websocket", n.ListenAddr())
}

// EscrowURL returns the base URL of the hosted escrow, once started.
func (n *ProviderNode) EscrowURL() string {
	return fmt.Sprintf("http://%s", n.ListenAddr())
}

// Provider returns the provider service.
func (n *ProviderNode) Provider() *provider.Provider { return n.provider }

// Ledger returns the channel ledger.
func (n *ProviderNode) Ledger() *ledger.Ledger { return n.ledger }

// Escrow returns the hosted escrow.
func (n *ProviderNode) Escrow() *escrow.Simulated { return n.escrow }

// Chain returns the channel state poller.
func (n *ProviderNode) Chain() *chainview.Poller { return n.chain }

// Feed returns the content feed, or nil when none is configured.
func (n *ProviderNode) Feed() *provider.Feed { return n.feed }

// stopService stops s and waits for it, whether it was stopped here or by the
// cancellation of its context.
func stopService(logger log.Logger, s service.Service) {
	switch err := s.Stop(); {
	case errors.Is(err, service.ErrNotStarted):
		return
	case err != nil && !errors.Is(err, service.ErrAlreadyStopped):
		logger.Error("failed to stop service", "service", s.String(), "err", err)
	}
	s.Wait()
}
