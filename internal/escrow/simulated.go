package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/types"
)

// DefaultChallengePeriod is how long a challenged channel stays redeemable
// by the provider.
const DefaultChallengePeriod = 30 * time.Second

// Simulated is an in-memory escrow with the bookkeeping of the Streamer
// contract. It backs the devnet and tests.
type Simulated struct {
	mtx sync.Mutex

	now             func() time.Time
	challengePeriod time.Duration

	channels map[common.Address]*simChannel
	// funding order, so listings are stable
	order    []common.Address
	earnings *big.Int
}

type simChannel struct {
	balance    *big.Int
	challenged bool
	closed     bool
	canCloseAt time.Time
}

var (
	_ Reader = (*Simulated)(nil)
	_ Payee  = (*Simulated)(nil)
)

// SimulatedOption sets a parameter for the simulated escrow.
type SimulatedOption func(*Simulated)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SimulatedOption {
	return func(s *Simulated) { s.now = now }
}

// WithChallengePeriod overrides DefaultChallengePeriod.
func WithChallengePeriod(d time.Duration) SimulatedOption {
	return func(s *Simulated) { s.challengePeriod = d }
}

// NewSimulated returns an empty escrow.
func NewSimulated(options ...SimulatedOption) *Simulated {
	s := &Simulated{
		now:             time.Now,
		challengePeriod: DefaultChallengePeriod,
		channels:        make(map[common.Address]*simChannel),
		earnings:        new(big.Int),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Account returns the client handle of addr.
func (s *Simulated) Account(addr common.Address) Account {
	return &simAccount{escrow: s, addr: addr}
}

// Balance returns the deposit still held for addr.
func (s *Simulated) Balance(addr common.Address) *big.Int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ch, ok := s.channels[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(ch.balance)
}

// Earnings returns the total paid out to the provider so far.
func (s *Simulated) Earnings() *big.Int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return new(big.Int).Set(s.earnings)
}

func (s *Simulated) fund(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.channels[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyFunded, addr)
	}
	s.channels[addr] = &simChannel{balance: new(big.Int).Set(amount)}
	s.order = append(s.order, addr)
	return nil
}

func (s *Simulated) challenge(addr common.Address) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ch, err := s.openChannel(addr)
	if err != nil {
		return err
	}
	ch.challenged = true
	ch.canCloseAt = s.now().Add(s.challengePeriod)
	return nil
}

func (s *Simulated) withdraw(addr common.Address) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ch, err := s.openChannel(addr)
	if err != nil {
		return err
	}
	if !ch.challenged {
		return fmt.Errorf("%w: %s", ErrNotChallenged, addr)
	}
	if s.now().Before(ch.canCloseAt) {
		return fmt.Errorf("%w: %s", ErrChallengeActive, addr)
	}
	ch.balance = new(big.Int)
	ch.closed = true
	return nil
}

// openChannel must be called with the lock held.
func (s *Simulated) openChannel(addr common.Address) (*simChannel, error) {
	ch, ok := s.channels[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFunded, addr)
	}
	if ch.closed {
		return nil, fmt.Errorf("%w: %s", ErrChannelClosed, addr)
	}
	return ch, nil
}

// WithdrawEarnings implements Payee. The channel stays open.
func (s *Simulated) WithdrawEarnings(_ context.Context, client common.Address, v types.Voucher) (*big.Int, error) {
	balance := v.RemainingBalance()
	if balance == nil || !crypto.VerifyVoucher(client, balance, v.Signature()) {
		return nil, types.ErrInvalidSignature
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	ch, err := s.openChannel(client)
	if err != nil {
		return nil, err
	}
	if ch.balance.Cmp(balance) <= 0 {
		return nil, ErrNothingToClaim
	}
	payment := new(big.Int).Sub(ch.balance, balance)
	ch.balance = balance
	s.earnings.Add(s.earnings, payment)
	return payment, nil
}

// Channels implements Reader.
func (s *Simulated) Channels(context.Context) (Channels, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var chs Channels
	for _, addr := range s.order {
		ch := s.channels[addr]
		chs.Opened = append(chs.Opened, addr)
		if ch.challenged {
			chs.Challenged = append(chs.Challenged, addr)
		}
		if ch.closed {
			chs.Closed = append(chs.Closed, addr)
		}
	}
	return chs, nil
}

// Opened implements Reader.
func (s *Simulated) Opened(context.Context) ([]common.Address, error) {
	return s.list(func(*simChannel) bool { return true }), nil
}

// Challenged implements Reader.
func (s *Simulated) Challenged(context.Context) ([]common.Address, error) {
	return s.list(func(ch *simChannel) bool { return ch.challenged }), nil
}

// Closed implements Reader.
func (s *Simulated) Closed(context.Context) ([]common.Address, error) {
	return s.list(func(ch *simChannel) bool { return ch.closed }), nil
}

func (s *Simulated) list(match func(*simChannel) bool) []common.Address {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	addrs := make([]common.Address, 0, len(s.order))
	for _, addr := range s.order {
		if match(s.channels[addr]) {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// TimeLeft implements Reader. Partial seconds round up, so zero means the
// channel can be withdrawn.
func (s *Simulated) TimeLeft(_ context.Context, addr common.Address) (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ch, ok := s.channels[addr]
	if !ok || !ch.challenged {
		return 0, fmt.Errorf("%w: %s", ErrNotChallenged, addr)
	}
	left := ch.canCloseAt.Sub(s.now())
	if left <= 0 {
		return 0, nil
	}
	return uint64((left + time.Second - 1) / time.Second), nil
}

type simAccount struct {
	escrow *Simulated
	addr   common.Address
}

func (a *simAccount) Address() common.Address { return a.addr }

func (a *simAccount) Fund(_ context.Context, amount *big.Int) error {
	return a.escrow.fund(a.addr, amount)
}

func (a *simAccount) Challenge(context.Context) error {
	return a.escrow.challenge(a.addr)
}

func (a *simAccount) Withdraw(context.Context) error {
	return a.escrow.withdraw(a.addr)
}
