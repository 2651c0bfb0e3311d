package provider

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/libs/service"
)

// Feed streams a fixed script of content to every active channel, one chunk
// per client on each tick. A chunk the gate refuses is offered again on the
// next tick.
type Feed struct {
	service.BaseService
	logger log.Logger

	provider *Provider
	chunks   []string
	interval time.Duration

	mtx     sync.Mutex
	cursors map[common.Address]int
}

// NewFeed returns a feed serving chunks through p every interval.
func NewFeed(logger log.Logger, p *Provider, chunks []string, interval time.Duration) *Feed {
	f := &Feed{
		logger:   logger,
		provider: p,
		chunks:   chunks,
		interval: interval,
		cursors:  make(map[common.Address]int),
	}
	f.BaseService = *service.NewBaseService(logger, "Feed", f)
	return f
}

// OnStart implements service.Service.
func (f *Feed) OnStart(ctx context.Context) error {
	go f.feedRoutine(ctx)
	return nil
}

// OnStop implements service.Service.
func (f *Feed) OnStop() {}

func (f *Feed) feedRoutine(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Tick(ctx)
		}
	}
}

// Tick offers the next chunk to every active channel.
func (f *Feed) Tick(ctx context.Context) {
	for _, client := range f.provider.ActiveChannels() {
		f.mtx.Lock()
		i := f.cursors[client]
		f.mtx.Unlock()
		if i >= len(f.chunks) {
			continue
		}

		ok, err := f.provider.Serve(ctx, client, f.chunks[i])
		if err != nil {
			f.logger.Error("failed to serve content", "client", client, "err", err)
			continue
		}
		if ok {
			f.mtx.Lock()
			f.cursors[client] = i + 1
			f.mtx.Unlock()
		}
	}
}

// Position returns how many chunks client has been served.
func (f *Feed) Position(client common.Address) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.cursors[client]
}
