package ledger_test

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tendermint/streamer/internal/ledger"
	"github.com/tendermint/streamer/types"
)

const (
	maxChars = 60
	// characters the default deposit pays for
	depositChars = 50
)

var (
	fixturesOnce sync.Once
	// signed by the client, indexed by characters paid for
	validVouchers [maxChars + 1]types.Voucher
	// same balances, signed by another key
	forgedVouchers [maxChars + 1]types.Voucher
	clientAddr     common.Address
)

func loadFixtures(t *testing.T) {
	fixturesOnce.Do(func() {
		params := types.DefaultChannelParams()
		client := mustSigner(t, clientKey)
		other := mustSigner(t, otherKey)
		clientAddr = client.Address()
		for i := 0; i <= maxChars; i++ {
			validVouchers[i] = sign(t, client, params.RemainingBalance(i))
			forgedVouchers[i] = sign(t, other, params.RemainingBalance(i))
		}
	})
}

func TestLedgerProperties(t *testing.T) {
	loadFixtures(t)
	rapid.Check(t, rapid.Run(&ledgerModel{}))
}

// ledgerModel drives a single channel with arbitrary, duplicated and
// reordered vouchers and checks the best voucher only ever moves down.
type ledgerModel struct {
	ledger *ledger.Ledger

	best        *big.Int
	unpaid      bool
	servedChars int
	history     []*big.Int
}

func (m *ledgerModel) Init(t *rapid.T) {
	m.ledger = newLedger()
	m.best = nil
	m.unpaid = false
	m.servedChars = 0
	m.history = nil
}

func (m *ledgerModel) OfferValid(t *rapid.T) {
	i := rapid.IntRange(0, maxChars).Draw(t, "chars").(int)
	v := validVouchers[i]
	balance := v.RemainingBalance()

	accepted, err := m.ledger.Offer(clientAddr, v)
	if m.best == nil || balance.Cmp(m.best) < 0 {
		require.NoError(t, err)
		require.True(t, accepted)
		m.best = balance
		m.history = append(m.history, balance)
		if balance.Sign() > 0 {
			m.unpaid = false
		}
		return
	}
	require.ErrorIs(t, err, types.ErrStaleVoucher)
	require.False(t, accepted)
}

func (m *ledgerModel) OfferForged(t *rapid.T) {
	i := rapid.IntRange(0, maxChars).Draw(t, "chars").(int)
	accepted, err := m.ledger.Offer(clientAddr, forgedVouchers[i])
	require.ErrorIs(t, err, types.ErrInvalidSignature)
	require.False(t, accepted)
}

func (m *ledgerModel) OfferMismatched(t *rapid.T) {
	// counts past the deposit all sign a zero balance, so stay within it
	i := rapid.IntRange(0, depositChars).Draw(t, "signed").(int)
	j := rapid.IntRange(0, depositChars-1).Draw(t, "claimed").(int)
	if j >= i {
		j++
	}

	accepted, err := m.ledger.OfferVoucher(clientAddr, validVouchers[j].RemainingBalance(), validVouchers[i].Signature())
	require.ErrorIs(t, err, types.ErrInvalidSignature)
	require.False(t, accepted)
}

func (m *ledgerModel) Refuse(t *rapid.T) {
	m.ledger.MarkUnpaid(clientAddr)
	m.unpaid = true
}

func (m *ledgerModel) Serve(t *rapid.T) {
	content := rapid.StringN(0, 8, -1).Draw(t, "content").(string)
	require.Equal(t, content, m.ledger.RecordService(clientAddr, content))
	m.servedChars += types.ContentLen(content)
}

func (m *ledgerModel) Check(t *rapid.T) {
	addr := clientAddr
	e, ok := m.ledger.Entry(addr)
	if !ok {
		require.Nil(t, m.best)
		return
	}

	if m.best == nil {
		require.Nil(t, e.Voucher)
	} else {
		require.NotNil(t, e.Voucher)
		require.Zero(t, m.best.Cmp(e.Voucher.RemainingBalance()))
	}
	require.Equal(t, m.unpaid, e.Unpaid)
	require.Equal(t, m.servedChars, e.ServedChars)

	history, err := m.ledger.History(addr)
	require.NoError(t, err)
	require.Len(t, history, len(m.history))
	for i := range history {
		require.Zero(t, m.history[i].Cmp(history[i].RemainingBalance()))
		if i > 0 {
			require.Equal(t, -1, history[i].Cmp(history[i-1]))
		}
	}
}
