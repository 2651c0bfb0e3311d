package chainview

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/libs/service"
)

// ChangeFunc is called by the poller, from its own goroutine, whenever the
// view of a channel changes. prev is the zero View for a channel seen for the
// first time.
type ChangeFunc func(ctx context.Context, addr common.Address, prev, next View)

// Poller periodically reads channel facts from the escrow and keeps the
// latest View of every known channel. The challenge countdown is observed
// this way rather than awaited.
type Poller struct {
	service.BaseService
	logger log.Logger

	reader   escrow.Reader
	interval time.Duration

	mtx       sync.RWMutex
	views     map[common.Address]View
	observers []ChangeFunc

	// serializes refreshes
	refreshMtx sync.Mutex
}

// NewPoller returns a poller reading from reader every interval.
func NewPoller(logger log.Logger, reader escrow.Reader, interval time.Duration) *Poller {
	p := &Poller{
		logger:   logger,
		reader:   reader,
		interval: interval,
		views:    make(map[common.Address]View),
	}
	p.BaseService = *service.NewBaseService(logger, "ChainViewPoller", p)
	return p
}

// OnChange registers fn. It must be called before the poller is started.
func (p *Poller) OnChange(fn ChangeFunc) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.observers = append(p.observers, fn)
}

// OnStart implements service.Service. The first refresh happens
// synchronously so a started poller always has a view.
func (p *Poller) OnStart(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		return err
	}
	go p.pollRoutine(ctx)
	return nil
}

// OnStop implements service.Service.
func (p *Poller) OnStop() {}

func (p *Poller) pollRoutine(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to refresh channel facts", "err", err)
			}
		}
	}
}

// Refresh reads the escrow once and notifies observers of every changed view.
func (p *Poller) Refresh(ctx context.Context) error {
	p.refreshMtx.Lock()
	defer p.refreshMtx.Unlock()

	facts, err := ReadFacts(ctx, p.reader)
	if err != nil {
		return err
	}

	type change struct {
		addr       common.Address
		prev, next View
	}
	var changes []change

	p.mtx.Lock()
	for addr, f := range facts {
		next := NewView(f)
		prev, ok := p.views[addr]
		if ok && prev == next {
			continue
		}
		p.views[addr] = next
		changes = append(changes, change{addr: addr, prev: prev, next: next})
	}
	observers := p.observers
	p.mtx.Unlock()

	sort.Slice(changes, func(i, j int) bool {
		return bytes.Compare(changes[i].addr[:], changes[j].addr[:]) < 0
	})
	for _, c := range changes {
		if c.prev.state != c.next.state {
			p.logger.Info("channel state changed", "addr", c.addr, "from", c.prev, "to", c.next)
		}
		for _, fn := range observers {
			fn(ctx, c.addr, c.prev, c.next)
		}
	}
	return nil
}

// View returns the latest view of addr. Unknown channels are unopened.
func (p *Poller) View(addr common.Address) View {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.views[addr]
}

// Views returns a copy of every known view.
func (p *Poller) Views() map[common.Address]View {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	views := make(map[common.Address]View, len(p.views))
	for addr, v := range p.views {
		views[addr] = v
	}
	return views
}

// ReadFacts collects the facts of every channel the escrow knows about.
func ReadFacts(ctx context.Context, reader escrow.Reader) (map[common.Address]Facts, error) {
	chs, err := reader.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading channels: %w", err)
	}

	facts := make(map[common.Address]Facts, len(chs.Opened))
	for _, addr := range chs.Opened {
		f := facts[addr]
		f.Opened = true
		facts[addr] = f
	}
	for _, addr := range chs.Closed {
		f := facts[addr]
		f.Closed = true
		facts[addr] = f
	}
	for _, addr := range chs.Challenged {
		f := facts[addr]
		f.Challenged = true
		if !f.Closed {
			left, err := reader.TimeLeft(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("reading time left for %s: %w", addr, err)
			}
			f.TimeLeft = left
		}
		facts[addr] = f
	}
	return facts, nil
}
