package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tendermint/streamer/libs/log"
)

var (
	// ErrUnsubscribed is returned by Err when a client unsubscribes.
	ErrUnsubscribed = errors.New("client unsubscribed")

	// ErrClosed is returned when publishing on a closed dispatcher.
	ErrClosed = errors.New("transport closed")
)

// A Subscription delivers the frames of one address to one handler.
type Subscription struct {
	id    string
	addr  common.Address
	owner string

	queue  chan []byte
	cancel context.CancelFunc
	done   chan struct{}

	mtx sync.RWMutex
	err error
}

// ID returns the unique identifier of the subscription.
func (s *Subscription) ID() string { return s.id }

// Address returns the subscribed address.
func (s *Subscription) Address() common.Address { return s.addr }

// Done returns a channel that is closed once the handler loop exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe stops delivery. Frames still queued are dropped.
func (s *Subscription) Unsubscribe() {
	s.setErr(ErrUnsubscribed)
	s.cancel()
}

// Err returns nil while the subscription is active, and the reason it ended
// afterwards.
func (s *Subscription) Err() error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Dispatcher is the local registry of subscriptions shared by the in-memory
// bus and the websocket transports.
type Dispatcher struct {
	logger     log.Logger
	bufferSize int

	mtx    sync.RWMutex
	closed bool
	subs   map[common.Address]map[string]*Subscription
}

// NewDispatcher returns an empty dispatcher whose subscriptions queue up to
// bufferSize frames before publishers block.
func NewDispatcher(logger log.Logger, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Dispatcher{
		logger:     logger,
		bufferSize: bufferSize,
		subs:       make(map[common.Address]map[string]*Subscription),
	}
}

// Subscribe registers h for addr on behalf of owner. Frames published by the
// same owner are not delivered to it.
func (d *Dispatcher) Subscribe(ctx context.Context, owner string, addr common.Address, h Handler) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     uuid.NewString(),
		addr:   addr,
		owner:  owner,
		queue:  make(chan []byte, d.bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mtx.Lock()
	if d.closed {
		d.mtx.Unlock()
		cancel()
		return nil, ErrClosed
	}
	if d.subs[addr] == nil {
		d.subs[addr] = make(map[string]*Subscription)
	}
	d.subs[addr][sub.id] = sub
	d.mtx.Unlock()

	go d.loop(ctx, sub, h)
	return sub, nil
}

func (d *Dispatcher) loop(ctx context.Context, sub *Subscription, h Handler) {
	defer func() {
		d.remove(sub)
		sub.setErr(ctx.Err())
		close(sub.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.queue:
			d.handle(ctx, sub, h, msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, sub *Subscription, h Handler, msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("frame handler panicked", "addr", sub.addr, "sub", sub.id, "err", fmt.Sprint(r))
		}
	}()
	h(ctx, msg)
}

func (d *Dispatcher) remove(sub *Subscription) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	subs := d.subs[sub.addr]
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(d.subs, sub.addr)
	}
}

// Publish queues msg for every subscriber of addr not owned by from and
// returns how many subscribers received it.
func (d *Dispatcher) Publish(ctx context.Context, from string, addr common.Address, msg []byte) (int, error) {
	d.mtx.RLock()
	if d.closed {
		d.mtx.RUnlock()
		return 0, ErrClosed
	}
	targets := make([]*Subscription, 0, len(d.subs[addr]))
	for _, sub := range d.subs[addr] {
		if sub.owner != from {
			targets = append(targets, sub)
		}
	}
	d.mtx.RUnlock()

	delivered := 0
	for _, sub := range targets {
		frame := common.CopyBytes(msg)
		select {
		case sub.queue <- frame:
			delivered++
		case <-sub.done:
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	return delivered, nil
}

// NumSubscribers returns the number of active subscriptions on addr.
func (d *Dispatcher) NumSubscribers(addr common.Address) int {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return len(d.subs[addr])
}

// Close cancels every subscription and rejects further use.
func (d *Dispatcher) Close() {
	d.mtx.Lock()
	d.closed = true
	var all []*Subscription
	for _, subs := range d.subs {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	d.mtx.Unlock()

	for _, sub := range all {
		sub.setErr(ErrClosed)
		sub.cancel()
		<-sub.done
	}
}
