package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/tendermint/streamer/libs/log"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Listen starts a TCP listener on addr, limited to maxOpenConnections
// simultaneous connections. 0 means unlimited.
func Listen(addr string, maxOpenConnections int) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %w", addr, err)
	}
	if maxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, maxOpenConnections)
	}
	return listener, nil
}

// Serve serves handler on listener until ctx ends, then shuts the server
// down gracefully. Hijacked connections are not waited for.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger log.Logger) error {
	s := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			logger.Error("HTTP server shutdown", "err", err)
		}
	}()

	logger.Info("serving HTTP", "listen address", listener.Addr().String())
	err := s.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("HTTP server stopped", "listen address", listener.Addr().String())
		return nil
	}
	return err
}

// ServePrometheus serves the default Prometheus registry under /metrics.
func ServePrometheus(ctx context.Context, listener net.Listener, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return Serve(ctx, listener, mux, logger.With("server", "prometheus"))
}
