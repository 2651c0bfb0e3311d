package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tendermint/streamer/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Stop terminates the service before its context is canceled.
	Stop() error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service's context is canceled.
	OnStop()
}

// BaseService carries the start/stop bookkeeping shared by every long-lived
// component. Embedders implement OnStart and OnStop; both are called at most
// once. If OnStart returns an error the service is not marked as started and
// Start may be called again.
//
// Typical usage:
//
//	type Agent struct {
//		service.BaseService
//		// private fields
//	}
//
//	func NewAgent(logger log.Logger) *Agent {
//		a := &Agent{}
//		a.BaseService = *service.NewBaseService(logger, "Agent", a)
//		return a
//	}
type BaseService struct {
	logger log.Logger
	name   string

	mtx     sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	cancel  context.CancelFunc

	// The "subclass" of BaseService
	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. The context passed
// to OnStart is canceled when the service stops, either because the parent
// context ended or because Stop was called.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	if bs.stopped {
		bs.mtx.Unlock()
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}
	if bs.started {
		bs.mtx.Unlock()
		return ErrAlreadyStarted
	}
	bs.started = true
	bs.mtx.Unlock()

	bs.logger.Info("starting service", "service", bs.name)

	ctx, cancel := context.WithCancel(ctx)
	if err := bs.impl.OnStart(ctx); err != nil {
		cancel()
		// revert flag
		bs.mtx.Lock()
		bs.started = false
		bs.mtx.Unlock()
		return err
	}

	bs.mtx.Lock()
	bs.cancel = cancel
	bs.mtx.Unlock()

	go func() {
		select {
		case <-bs.quit:
			// someone else explicitly called stop
			// and then we shouldn't.
			return
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopped service", "err", err, "service", bs.name)
			}
		}
	}()

	return nil
}

// Stop implements Service by calling OnStop and closing the quit channel. An
// error is returned if the service is already stopped or was never started.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	if bs.stopped {
		bs.mtx.Unlock()
		return ErrAlreadyStopped
	}
	if !bs.started {
		bs.mtx.Unlock()
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	}
	bs.stopped = true
	cancel := bs.cancel
	bs.mtx.Unlock()

	bs.logger.Info("stopping service", "service", bs.name)
	if cancel != nil {
		cancel()
	}
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Quit returns a channel that is closed once the service stops.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
