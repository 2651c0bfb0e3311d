// Package ws carries transport frames over websockets. A Hub bridges remote
// websocket peers onto a local transport.Bus, and Client is the remote
// peer's transport.Transport.
package ws

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePublish     = "publish"

	defaultWriteWait  = 10 * time.Second
	defaultPingPeriod = 30 * time.Second
	defaultBufferSize = 64
)

// frame is the unit exchanged over the socket. Data must be valid JSON, which
// protocol messages always are.
type frame struct {
	Type    string          `json:"type"`
	Address common.Address  `json:"address"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type connConfig struct {
	writeWait  time.Duration
	pingPeriod time.Duration
	bufferSize int
}

func defaultConnConfig() connConfig {
	return connConfig{
		writeWait:  defaultWriteWait,
		pingPeriod: defaultPingPeriod,
		bufferSize: defaultBufferSize,
	}
}

// Option sets a parameter for a Hub or Client.
type Option func(*connConfig)

// WriteWait sets the amount of time to wait before a websocket write times out.
func WriteWait(d time.Duration) Option {
	return func(c *connConfig) { c.writeWait = d }
}

// PingPeriod sets the duration between websocket pings. If 0, no pings are
// sent.
func PingPeriod(d time.Duration) Option {
	return func(c *connConfig) { c.pingPeriod = d }
}

// BufferSize sets how many outgoing frames may be queued per connection.
func BufferSize(n int) Option {
	return func(c *connConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}
