package node

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/types"
)

// DevnetScript is streamed by a devnet provider without a content file.
var DevnetScript = []string{
	"Once upon a time, ",
	"a client paid ",
	"for every word.\n",
}

// RunDevnet runs a provider and clients in one process, connected over a
// loopback websocket. Every client funds its channel with a fresh key, pays
// for the script until it ends or the deposit runs out, then challenges and
// withdraws what it did not spend. Received content is written to out.
// RunDevnet returns once every client has settled, or with ctx's error when
// ctx ends first.
func RunDevnet(ctx context.Context, cfg *config.Config, logger log.Logger, clients int, out io.Writer) error {
	if clients < 1 {
		return fmt.Errorf("devnet needs at least one client, got %d", clients)
	}

	chunks := DevnetScript
	if path := cfg.Provider.ContentPath(); path != "" {
		var err error
		if chunks, err = LoadContent(path); err != nil {
			return err
		}
	}
	total := 0
	for _, chunk := range chunks {
		total += types.ContentLen(chunk)
	}

	pn, err := NewProviderNode(cfg, logger.With("node", "provider"), ProviderContent(chunks))
	if err != nil {
		return err
	}
	if err := pn.Start(ctx); err != nil {
		return fmt.Errorf("failed to start provider: %w", err)
	}
	defer stopService(logger, pn)

	w := &syncWriter{w: out}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < clients; i++ {
		ccfg := devnetClientConfig(cfg, pn, i)
		g.Go(func() error {
			return runDevnetClient(gctx, ccfg, logger.With("node", ccfg.Moniker), total, w)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("devnet finished", "clients", clients, "earnings", pn.Escrow().Earnings())
	return nil
}

func runDevnetClient(ctx context.Context, cfg *config.Config, logger log.Logger, total int, out io.Writer) error {
	params, err := cfg.Channel.Params()
	if err != nil {
		return err
	}
	signer, err := crypto.GenPrivKeySigner()
	if err != nil {
		return err
	}
	cn, err := NewClientNode(ctx, cfg, logger, signer)
	if err != nil {
		return err
	}

	agent := cn.Agent()
	done := make(chan struct{})
	var once sync.Once
	agent.OnContent(func(content string) {
		fmt.Fprintf(out, "%s: %q\n", cfg.Moniker, content)
		// the provider refuses service once the deposit is spent
		n := agent.ReceivedLen()
		if n >= total || params.RemainingBalance(n).Sign() == 0 {
			once.Do(func() { close(done) })
		}
	})

	if err := cn.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", cfg.Moniker, err)
	}
	defer stopService(logger, cn)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cn.Disconnected():
		return fmt.Errorf("%s lost its connection to the provider", cfg.Moniker)
	case <-done:
	}

	if err := agent.Challenge(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.Client.PollInterval)
	defer ticker.Stop()
	for !agent.View().Allows(chainview.ActionWithdraw) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := agent.Withdraw(ctx); err != nil {
		return err
	}
	v, _ := agent.LastVoucher()
	logger.Info("client settled", "address", agent.Address(), "paid_until", v.RemainingBalance())
	return nil
}

// devnetClientConfig returns the config of the i-th devnet client: cfg
// pointed at pn, without its own metrics server.
func devnetClientConfig(cfg *config.Config, pn *ProviderNode, i int) *config.Config {
	c := *cfg
	client, transport, instrumentation := *cfg.Client, *cfg.Transport, *cfg.Instrumentation
	c.Moniker = fmt.Sprintf("client%d", i)
	client.AutoPay = true
	client.FundOnStart = true
	client.EscrowURL = pn.EscrowURL()
	transport.RemoteAddress = pn.WebsocketURL()
	instrumentation.Prometheus = false
	c.Client, c.Transport, c.Instrumentation = &client, &transport, &instrumentation
	return &c
}

type syncWriter struct {
	mtx sync.Mutex
	w   io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.w.Write(p)
}
