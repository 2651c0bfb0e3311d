package transport

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tendermint/streamer/libs/log"
)

const defaultBufferSize = 64

// Bus is an in-process transport. Every participant obtains its own Endpoint;
// like a browser BroadcastChannel, an endpoint does not hear itself.
type Bus struct {
	logger log.Logger
	disp   *Dispatcher
}

// BusOption sets a parameter for the bus.
type BusOption func(*busConfig)

type busConfig struct {
	bufferSize int
}

// BufferCapacity sets how many frames each subscription queues before
// publishers block.
func BufferCapacity(n int) BusOption {
	return func(c *busConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// NewBus returns a new in-memory bus.
func NewBus(logger log.Logger, options ...BusOption) *Bus {
	cfg := busConfig{bufferSize: defaultBufferSize}
	for _, option := range options {
		option(&cfg)
	}
	return &Bus{
		logger: logger,
		disp:   NewDispatcher(logger, cfg.bufferSize),
	}
}

// Endpoint returns a new participant on the bus. name only shows up in logs.
func (b *Bus) Endpoint(name string) *Endpoint {
	return &Endpoint{
		id:     uuid.NewString(),
		bus:    b,
		logger: b.logger.With("endpoint", name),
	}
}

// NumSubscribers returns the number of subscriptions on addr.
func (b *Bus) NumSubscribers(addr common.Address) int {
	return b.disp.NumSubscribers(addr)
}

// Close stops every subscription.
func (b *Bus) Close() { b.disp.Close() }

// Endpoint is one participant's handle on a Bus.
type Endpoint struct {
	id     string
	bus    *Bus
	logger log.Logger
}

var _ Transport = (*Endpoint)(nil)

// Send implements Transport.
func (e *Endpoint) Send(ctx context.Context, addr common.Address, msg []byte) error {
	n, err := e.bus.disp.Publish(ctx, e.id, addr, msg)
	if err != nil {
		return err
	}
	if n == 0 {
		e.logger.Debug("no listener for frame", "addr", addr)
	}
	return nil
}

// Subscribe implements Transport.
func (e *Endpoint) Subscribe(ctx context.Context, addr common.Address, h Handler) (*Subscription, error) {
	return e.bus.disp.Subscribe(ctx, e.id, addr, h)
}
