// Package transport carries frames between the two ends of a payment
// channel. Frames are published on the channel's address (the client's
// address) and delivered to every other subscriber of that address, never back
// to the sender. Delivery is at-least-once and only ordered per sender
// connection, so the protocol on top must tolerate duplicates and reordering.
//
// Each subscription owns a single goroutine that invokes its Handler one frame
// at a time, which gives every channel a single active reader.
package transport

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Handler processes one frame delivered on an address.
type Handler func(ctx context.Context, msg []byte)

// Transport is per-address publish/subscribe.
type Transport interface {
	// Send publishes msg on addr. It blocks until every current subscriber
	// has queued the frame or ctx is done.
	Send(ctx context.Context, addr common.Address, msg []byte) error

	// Subscribe starts delivering frames published on addr to h until ctx is
	// done or the subscription is canceled.
	Subscribe(ctx context.Context, addr common.Address, h Handler) (*Subscription, error)
}
