package provider_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/internal/ledger"
	"github.com/tendermint/streamer/internal/provider"
	"github.com/tendermint/streamer/internal/transport"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/types"
)

const clientKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type frame struct {
	addr common.Address
	msg  string
}

type recordingTransport struct {
	mtx  sync.Mutex
	sent []frame
	err  error
}

func (r *recordingTransport) Send(_ context.Context, addr common.Address, msg []byte) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, frame{addr: addr, msg: string(msg)})
	return nil
}

func (r *recordingTransport) Subscribe(context.Context, common.Address, transport.Handler) (*transport.Subscription, error) {
	return nil, errors.New("not supported")
}

func (r *recordingTransport) frames() []frame {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]frame(nil), r.sent...)
}

func newLedger() *ledger.Ledger {
	return ledger.NewLedger(log.NewNopLogger(), types.DefaultChannelParams(), ledger.NewStore(dbm.NewMemDB()), ledger.NopMetrics())
}

func mustSigner(t *testing.T) *crypto.PrivKeySigner {
	t.Helper()
	s, err := crypto.PrivKeySignerFromHex(clientKey)
	require.NoError(t, err)
	return s
}

func pay(t *testing.T, l *ledger.Ledger, s crypto.Signer, chars int) {
	t.Helper()
	v, err := crypto.SignVoucher(s, l.Params().RemainingBalance(chars))
	require.NoError(t, err)
	accepted, err := l.Offer(s.Address(), v)
	require.NoError(t, err)
	require.True(t, accepted)
}

func TestGateServesClientsWithoutVoucher(t *testing.T) {
	l := newLedger()
	tr := &recordingTransport{}
	gate := provider.NewGate(log.NewNopLogger(), l, tr, provider.NopMetrics())
	client := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	assert.True(t, gate.MayServe(client))
	ok, err := gate.Serve(context.Background(), client, "hello")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []frame{{addr: client, msg: `"hello"`}}, tr.frames())
	e, _ := l.Entry(client)
	assert.Equal(t, 5, e.ServedChars)
}

func TestGateServesPartiallyPaidClient(t *testing.T) {
	l := newLedger()
	gate := provider.NewGate(log.NewNopLogger(), l, &recordingTransport{}, provider.NopMetrics())
	s := mustSigner(t)

	pay(t, l, s, 10)
	assert.True(t, gate.MayServe(s.Address()))
	assert.False(t, l.IsUnpaid(s.Address()))
}

func TestGateZeroBalanceRefusesService(t *testing.T) {
	l := newLedger()
	tr := &recordingTransport{}
	gate := provider.NewGate(log.NewNopLogger(), l, tr, provider.NopMetrics())
	s := mustSigner(t)
	ctx := context.Background()

	content := strings.Repeat("x", 60)
	ok, err := gate.Serve(ctx, s.Address(), content)
	require.NoError(t, err)
	require.True(t, ok)

	// 60 chars at 0.01 ether exceed the 0.5 ether deposit
	due := l.Params().DuePayment(types.ContentLen(content))
	require.Equal(t, 1, due.Cmp(l.Params().InitialBalance))
	pay(t, l, s, 60)

	assert.False(t, gate.MayServe(s.Address()))
	assert.True(t, l.IsUnpaid(s.Address()))

	for i := 0; i < 3; i++ {
		ok, err = gate.Serve(ctx, s.Address(), "more")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// only the first content went out, and refusals are not counted as served
	assert.Len(t, tr.frames(), 1)
	e, _ := l.Entry(s.Address())
	assert.Equal(t, 60, e.ServedChars)
	assert.True(t, e.Unpaid)
	assert.Equal(t, big.NewInt(5e17), l.Claimable(s.Address()))
}

func TestGateTransportFailure(t *testing.T) {
	l := newLedger()
	tr := &recordingTransport{err: errors.New("connection reset")}
	gate := provider.NewGate(log.NewNopLogger(), l, tr, provider.NopMetrics())

	client := common.Address{1}
	for i := 0; i < 2; i++ {
		ok, err := gate.Serve(context.Background(), client, "hello")
		assert.False(t, ok)
		assert.Error(t, err)
	}
	e, _ := l.Entry(client)
	assert.Zero(t, e.ServedChars)

	tr.err = nil
	ok, err := gate.Serve(context.Background(), client, "hello")
	require.NoError(t, err)
	assert.True(t, ok)
	e, _ = l.Entry(client)
	assert.Equal(t, 5, e.ServedChars)
}
