package chainview_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/streamer/internal/chainview"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/libs/log"
	"github.com/tendermint/streamer/types"
)

var (
	alice = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bob   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type clock struct {
	mtx sync.Mutex
	t   time.Time
}

func (c *clock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mtx     sync.Mutex
	changes []string
}

func (r *recorder) onChange(_ context.Context, addr common.Address, prev, next chainview.View) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.changes = append(r.changes, addr.Hex()[:6]+" "+prev.State().String()+"->"+next.String())
}

func (r *recorder) take() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := r.changes
	r.changes = nil
	return out
}

func TestPollerRefresh(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Unix(1700000000, 0)}
	sim := escrow.NewSimulated(escrow.WithClock(c.Now))
	deposit := types.DefaultChannelParams().InitialBalance

	p := chainview.NewPoller(log.NewNopLogger(), sim, time.Hour)
	rec := &recorder{}
	p.OnChange(rec.onChange)

	require.NoError(t, p.Refresh(ctx))
	assert.Empty(t, rec.take())
	assert.Equal(t, chainview.StateUnopened, p.View(alice).State())

	require.NoError(t, sim.Account(alice).Fund(ctx, deposit))
	require.NoError(t, sim.Account(bob).Fund(ctx, deposit))
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, []string{"0x7099 unopened->opened", "0xf39F unopened->opened"}, rec.take())

	// nothing changed
	require.NoError(t, p.Refresh(ctx))
	assert.Empty(t, rec.take())

	require.NoError(t, sim.Account(alice).Challenge(ctx))
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, []string{"0xf39F opened->challenged (30s left)"}, rec.take())
	assert.True(t, p.View(alice).Allows(chainview.ActionServe))

	c.Advance(10 * time.Second)
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, []string{"0xf39F challenged->challenged (20s left)"}, rec.take())

	c.Advance(20 * time.Second)
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, []string{"0xf39F challenged->challenged (0s left)"}, rec.take())
	assert.True(t, p.View(alice).Allows(chainview.ActionWithdraw))
	assert.False(t, p.View(alice).Allows(chainview.ActionServe))

	require.NoError(t, sim.Account(alice).Withdraw(ctx))
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, []string{"0xf39F challenged->closed"}, rec.take())

	views := p.Views()
	assert.Len(t, views, 2)
	assert.Equal(t, chainview.StateClosed, views[alice].State())
	assert.Equal(t, chainview.StateOpened, views[bob].State())
}

type failingReader struct{ escrow.Reader }

func (failingReader) Channels(context.Context) (escrow.Channels, error) {
	return escrow.Channels{}, errors.New("rpc unavailable")
}

func TestPollerStartFailsOnUnreadableEscrow(t *testing.T) {
	p := chainview.NewPoller(log.NewNopLogger(), failingReader{}, time.Hour)
	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
	assert.False(t, p.IsRunning())
}

func TestPollerPollsUntilStopped(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := escrow.NewSimulated()
	p := chainview.NewPoller(log.NewNopLogger(), sim, 10*time.Millisecond)
	opened := make(chan common.Address, 1)
	p.OnChange(func(_ context.Context, addr common.Address, prev, next chainview.View) {
		if next.State() == chainview.StateOpened {
			opened <- addr
		}
	})
	require.NoError(t, p.Start(ctx))

	require.NoError(t, sim.Account(alice).Fund(ctx, types.DefaultChannelParams().InitialBalance))
	select {
	case addr := <-opened:
		assert.Equal(t, alice, addr)
	case <-time.After(2 * time.Second):
		t.Fatal("poller never saw the funded channel")
	}

	require.NoError(t, p.Stop())
	p.Wait()
}

func TestReadFactsOverHTTPReadsChannelsOnce(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulated()
	deposit := types.DefaultChannelParams().InitialBalance
	require.NoError(t, sim.Account(alice).Fund(ctx, deposit))
	require.NoError(t, sim.Account(bob).Fund(ctx, deposit))
	require.NoError(t, sim.Account(alice).Challenge(ctx))

	var reads int32
	handler := escrow.NewHTTPHandler(log.NewNopLogger(), sim)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/escrow/channels" {
			atomic.AddInt32(&reads, 1)
		}
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	facts, err := chainview.ReadFacts(ctx, escrow.NewHTTPClient(srv.URL))
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&reads))

	assert.Equal(t, chainview.StateChallenged, chainview.NewView(facts[alice]).State())
	assert.Positive(t, facts[alice].TimeLeft)
	assert.Equal(t, chainview.StateOpened, chainview.NewView(facts[bob]).State())
}
