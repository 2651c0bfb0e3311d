package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/libs/log"
)

const hubOwner = "hub"

// Client is a transport.Transport connected to a remote Hub.
type Client struct {
	logger log.Logger
	conn   *websocket.Conn
	cfg    connConfig
	disp   *transport.Dispatcher

	writeMtx sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// Dial connects to the hub at url (ws://host:port/path).
func Dial(ctx context.Context, url string, logger log.Logger, options ...Option) (*Client, error) {
	cfg := defaultConnConfig()
	for _, option := range options {
		option(&cfg)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		logger: logger,
		conn:   conn,
		cfg:    cfg,
		disp:   transport.NewDispatcher(logger, cfg.bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readRoutine(ctx)
	if cfg.pingPeriod > 0 {
		go c.pingRoutine(ctx)
	}
	return c, nil
}

// Send implements transport.Transport.
func (c *Client) Send(ctx context.Context, addr common.Address, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(frame{Type: framePublish, Address: addr, Data: msg})
}

// Subscribe implements transport.Transport. Canceling the subscription tells
// the hub to stop forwarding once no local subscriber is left for addr.
func (c *Client) Subscribe(ctx context.Context, addr common.Address, h transport.Handler) (*transport.Subscription, error) {
	sub, err := c.disp.Subscribe(ctx, "", addr, h)
	if err != nil {
		return nil, err
	}
	if err := c.write(frame{Type: frameSubscribe, Address: addr}); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	go func() {
		select {
		case <-sub.Done():
		case <-c.done:
			return
		}
		if c.disp.NumSubscribers(addr) == 0 {
			_ = c.write(frame{Type: frameUnsubscribe, Address: addr})
		}
	}()
	return sub, nil
}

// Done is closed once the connection to the hub is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close disconnects from the hub and stops every subscription.
func (c *Client) Close() error {
	c.writeMtx.Lock()
	err := writeClose(c.conn, c.cfg.writeWait)
	c.writeMtx.Unlock()

	c.cancel()
	c.conn.Close()
	<-c.done
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

func (c *Client) write(f frame) error {
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	return writeFrame(c.conn, c.cfg.writeWait, f)
}

func (c *Client) readRoutine(ctx context.Context) {
	defer func() {
		c.disp.Close()
		close(c.done)
	}()

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil {
				c.logger.Error("lost connection to hub", "err", err)
			}
			return
		}
		if f.Type != framePublish {
			c.logger.Debug("ignoring unknown frame", "type", f.Type)
			continue
		}
		if _, err := c.disp.Publish(ctx, hubOwner, f.Address, f.Data); err != nil {
			return
		}
	}
}

func (c *Client) pingRoutine(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMtx.Lock()
			err := writePing(c.conn, c.cfg.writeWait)
			c.writeMtx.Unlock()
			if err != nil {
				c.logger.Error("failed to write ping", "err", err)
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}
