// Package ledger is the provider's record of what every client has paid: the
// best voucher seen on each channel, whether the client is being refused
// service for lack of payment, and how much content it was served.
//
// A voucher is adopted only if its signature recovers to the channel's client
// address and it lowers the remaining balance already held. Re-delivering an
// old or duplicate voucher is therefore a no-op, which makes OfferVoucher
// safe under the at-least-once, unordered delivery of the transport.
package ledger

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/types"
)

// Entry is a snapshot of one channel's ledger entry.
type Entry struct {
	Client common.Address
	// Voucher is nil until a first valid voucher is accepted.
	Voucher     *types.Voucher
	Unpaid      bool
	ServedChars int
}

// entry is the mutable ledger state of one channel. Entries are created on
// first interaction and never removed.
type entry struct {
	mtx sync.Mutex

	best        *types.Voucher
	accepted    int64
	unpaid      bool
	servedChars int
}

func (e *entry) snapshot(client common.Address) Entry {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	out := Entry{
		Client:      client,
		Unpaid:      e.unpaid,
		ServedChars: e.servedChars,
	}
	if e.best != nil {
		v := *e.best
		out.Voucher = &v
	}
	return out
}

// Ledger holds one entry per client address. Entries are independent: each
// has its own lock, so work on one channel never waits on another.
type Ledger struct {
	logger  log.Logger
	params  types.ChannelParams
	store   *Store
	metrics *Metrics

	mtx     sync.RWMutex
	entries map[common.Address]*entry
}

// NewLedger returns an empty ledger for channels opened with params.
func NewLedger(logger log.Logger, params types.ChannelParams, store *Store, metrics *Metrics) *Ledger {
	return &Ledger{
		logger:  logger,
		params:  params,
		store:   store,
		metrics: metrics,
		entries: make(map[common.Address]*entry),
	}
}

// Params returns the channel parameters the ledger enforces.
func (l *Ledger) Params() types.ChannelParams { return l.params }

func (l *Ledger) getEntry(client common.Address) (*entry, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	e, ok := l.entries[client]
	return e, ok
}

func (l *Ledger) getOrCreateEntry(client common.Address) *entry {
	if e, ok := l.getEntry(client); ok {
		return e
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if e, ok := l.entries[client]; ok {
		return e
	}
	e := &entry{}
	l.entries[client] = e
	l.metrics.Channels.Set(float64(len(l.entries)))
	return e
}

// RecordService adds the length of content to what client has been served
// and returns content unchanged. It does not look at vouchers.
func (l *Ledger) RecordService(client common.Address, content string) string {
	n := types.ContentLen(content)
	e := l.getOrCreateEntry(client)

	e.mtx.Lock()
	e.servedChars += n
	e.mtx.Unlock()

	l.metrics.ServedChars.Add(float64(n))
	return content
}

// OfferVoucher considers a voucher claimed to be signed by client. It returns
// true if the voucher became the channel's best voucher. A voucher that is
// not adopted leaves the entry untouched and yields one of
// types.ErrBalanceOutOfRange, types.ErrInvalidSignature or
// types.ErrStaleVoucher.
func (l *Ledger) OfferVoucher(client common.Address, balance *big.Int, signature []byte) (bool, error) {
	if !l.params.InRange(balance) {
		l.logger.Error("rejecting voucher outside channel range", "client", client, "balance", balance)
		l.metrics.VouchersRejected.With("reason", "out_of_range").Add(1)
		return false, fmt.Errorf("%w: %v", types.ErrBalanceOutOfRange, balance)
	}

	if !crypto.VerifyVoucher(client, balance, signature) {
		l.logger.Error("voucher signature verification failed", "client", client, "balance", balance)
		l.metrics.VouchersRejected.With("reason", "invalid_signature").Add(1)
		return false, types.ErrInvalidSignature
	}

	e := l.getOrCreateEntry(client)
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.best != nil && balance.Cmp(e.best.RemainingBalance()) >= 0 {
		l.logger.Debug("ignoring stale voucher", "client", client, "balance", balance, "best", e.best.RemainingBalance())
		l.metrics.VouchersRejected.With("reason", "stale").Add(1)
		return false, types.ErrStaleVoucher
	}

	v := types.NewVoucher(balance, signature)
	if err := l.store.SaveVoucher(client, e.accepted, v); err != nil {
		// the audit trail is best effort; the voucher is still adopted
		l.logger.Error("failed to record accepted voucher", "client", client, "err", err)
	}
	e.best = &v
	e.accepted++
	if balance.Sign() > 0 && e.unpaid {
		e.unpaid = false
		l.metrics.UnpaidClients.Add(-1)
	}

	l.metrics.VouchersAccepted.Add(1)
	l.logger.Info("accepted voucher", "client", client, "balance", balance)
	return true, nil
}

// Offer is OfferVoucher for a decoded voucher.
func (l *Ledger) Offer(client common.Address, v types.Voucher) (bool, error) {
	return l.OfferVoucher(client, v.RemainingBalance(), v.Signature())
}

// MarkUnpaid flags client as refused for lack of payment and reports whether
// the flag was newly set.
func (l *Ledger) MarkUnpaid(client common.Address) bool {
	e := l.getOrCreateEntry(client)
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.unpaid {
		return false
	}
	e.unpaid = true
	l.metrics.UnpaidClients.Add(1)
	return true
}

// IsUnpaid reports whether client is flagged as unpaid.
func (l *Ledger) IsUnpaid(client common.Address) bool {
	e, ok := l.getEntry(client)
	if !ok {
		return false
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.unpaid
}

// Voucher returns the best voucher of client, if any.
func (l *Ledger) Voucher(client common.Address) (types.Voucher, bool) {
	e, ok := l.getEntry(client)
	if !ok {
		return types.Voucher{}, false
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.best == nil {
		return types.Voucher{}, false
	}
	return *e.best, true
}

// Claimable is how much of client's deposit the best voucher releases to the
// provider.
func (l *Ledger) Claimable(client common.Address) *big.Int {
	v, ok := l.Voucher(client)
	if !ok {
		return new(big.Int)
	}
	return l.params.Claimable(v.RemainingBalance())
}

// Entry returns a snapshot of client's entry.
func (l *Ledger) Entry(client common.Address) (Entry, bool) {
	e, ok := l.getEntry(client)
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(client), true
}

// Entries returns a snapshot of every entry, ordered by client address.
func (l *Ledger) Entries() []Entry {
	l.mtx.RLock()
	clients := make([]common.Address, 0, len(l.entries))
	entries := make([]*entry, 0, len(l.entries))
	for client, e := range l.entries {
		clients = append(clients, client)
		entries = append(entries, e)
	}
	l.mtx.RUnlock()

	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot(clients[i])
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Client[:], out[j].Client[:]) < 0
	})
	return out
}

// History returns every voucher accepted for client, oldest first.
func (l *Ledger) History(client common.Address) ([]types.Voucher, error) {
	return l.store.History(client)
}
