package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/libs/log"
)

// Hub accepts websocket peers and joins each of them to a bus as its own
// endpoint, so remote and in-process participants see the same traffic.
type Hub struct {
	websocket.Upgrader

	logger log.Logger
	bus    *transport.Bus
	cfg    connConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub returns a hub publishing onto bus.
func NewHub(logger log.Logger, bus *transport.Bus, options ...Option) *Hub {
	cfg := defaultConnConfig()
	for _, option := range options {
		option(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		ctx:    ctx,
		cancel: cancel,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
		bus:    bus,
		cfg:    cfg,
	}
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}
	wsConn, err := h.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "err", err)
		return
	}

	remote := wsConn.RemoteAddr().String()
	c := &hubConn{
		logger: h.logger.With("remote", remote),
		conn:   wsConn,
		ep:     h.bus.Endpoint("ws:" + remote),
		cfg:    h.cfg,
		out:    make(chan frame, h.cfg.bufferSize),
		subs:   make(map[common.Address]*transport.Subscription),
	}

	h.wg.Add(1)
	defer h.wg.Done()
	c.logger.Info("websocket peer connected")
	c.run(h.ctx)
	c.logger.Info("websocket peer disconnected")
}

// Close disconnects every peer and waits for their connections to wind down.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

type hubConn struct {
	logger log.Logger
	conn   *websocket.Conn
	ep     *transport.Endpoint
	cfg    connConfig
	out    chan frame

	subs map[common.Address]*transport.Subscription
}

func (c *hubConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writeRoutine(ctx)
		// unblock the reader if the writer failed first
		c.conn.Close()
	}()

	c.readRoutine(ctx)
	cancel()
	<-writeDone
	for _, sub := range c.subs {
		<-sub.Done()
	}
}

func (c *hubConn) readRoutine(ctx context.Context) {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed", "err", err)
			}
			return
		}

		switch f.Type {
		case frameSubscribe:
			if _, ok := c.subs[f.Address]; ok {
				continue
			}
			addr := f.Address
			sub, err := c.ep.Subscribe(ctx, addr, func(ctx context.Context, msg []byte) {
				select {
				case c.out <- frame{Type: framePublish, Address: addr, Data: msg}:
				case <-ctx.Done():
				}
			})
			if err != nil {
				c.logger.Error("failed to subscribe", "addr", addr, "err", err)
				return
			}
			c.subs[addr] = sub

		case frameUnsubscribe:
			if sub, ok := c.subs[f.Address]; ok {
				sub.Unsubscribe()
				delete(c.subs, f.Address)
			}

		case framePublish:
			if err := c.ep.Send(ctx, f.Address, f.Data); err != nil {
				c.logger.Error("failed to publish frame", "addr", f.Address, "err", err)
				return
			}

		default:
			c.logger.Debug("ignoring unknown frame", "type", f.Type)
		}
	}
}

func (c *hubConn) writeRoutine(ctx context.Context) {
	var pingCh <-chan time.Time
	if c.cfg.pingPeriod > 0 {
		ticker := time.NewTicker(c.cfg.pingPeriod)
		defer ticker.Stop()
		pingCh = ticker.C
	}

	for {
		select {
		case f := <-c.out:
			if err := writeFrame(c.conn, c.cfg.writeWait, f); err != nil {
				c.logger.Error("failed to write frame", "err", err)
				return
			}
		case <-pingCh:
			if err := writePing(c.conn, c.cfg.writeWait); err != nil {
				c.logger.Error("failed to write ping", "err", err)
				return
			}
		case <-ctx.Done():
			_ = writeClose(c.conn, c.cfg.writeWait)
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, writeWait time.Duration, f frame) error {
	if writeWait > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
	}
	return conn.WriteJSON(f)
}

func writePing(conn *websocket.Conn, writeWait time.Duration) error {
	var deadline time.Time
	if writeWait > 0 {
		deadline = time.Now().Add(writeWait)
	}
	return conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func writeClose(conn *websocket.Conn, writeWait time.Duration) error {
	var deadline time.Time
	if writeWait > 0 {
		deadline = time.Now().Add(writeWait)
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
