package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/libs/log"
)

// MaxClockSkew bounds how far a signed request timestamp may drift from the
// escrow host clock.
const MaxClockSkew = 60 * time.Second

var (
	ErrBadRequest   = errors.New("bad escrow request")
	ErrUnauthorized = errors.New("request signature rejected")
)

// error codes carried over the wire, so a remote caller can still match the
// sentinels with errors.Is
var errorCodes = map[string]error{
	"already_funded":   ErrAlreadyFunded,
	"not_funded":       ErrNotFunded,
	"not_challenged":   ErrNotChallenged,
	"challenge_active": ErrChallengeActive,
	"channel_closed":   ErrChannelClosed,
	"nothing_to_claim": ErrNothingToClaim,
	"invalid_amount":   ErrInvalidAmount,
	"bad_request":      ErrBadRequest,
	"unauthorized":     ErrUnauthorized,
}

func errorCode(err error) string {
	for code, target := range errorCodes {
		if errors.Is(err, target) {
			return code
		}
	}
	return "internal"
}

type timeLeftResponse struct {
	Address  common.Address `json:"address"`
	TimeLeft uint64         `json:"time_left"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// txRequest is a client transaction. Timestamp is in unix milliseconds and
// the signature covers txMessage.
type txRequest struct {
	Address   common.Address `json:"address"`
	Amount    string         `json:"amount,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Signature hexutil.Bytes  `json:"signature"`
}

func txMessage(action string, addr common.Address, amount string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("streamer:%s:%s:%s:%d", action, addr.Hex(), amount, timestamp))
}

//-----------------------------------------------------------------------------
// server

// HTTPHandler exposes a Simulated escrow to remote clients. Reads are public;
// transactions must be signed by the channel's address.
type HTTPHandler struct {
	logger log.Logger
	sim    *Simulated
	mux    *http.ServeMux

	mtx sync.Mutex
	// last accepted timestamp per address and action, to reject replays
	seen map[string]int64
}

// NewHTTPHandler returns the handler serving sim under /escrow/.
func NewHTTPHandler(logger log.Logger, sim *Simulated) *HTTPHandler {
	h := &HTTPHandler{
		logger: logger,
		sim:    sim,
		mux:    http.NewServeMux(),
		seen:   make(map[string]int64),
	}
	h.mux.HandleFunc("/escrow/channels", h.channels)
	h.mux.HandleFunc("/escrow/time_left", h.timeLeft)
	h.mux.HandleFunc("/escrow/fund", h.tx("fund"))
	h.mux.HandleFunc("/escrow/challenge", h.tx("challenge"))
	h.mux.HandleFunc("/escrow/withdraw", h.tx("withdraw"))
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPHandler) channels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, ErrBadRequest)
		return
	}
	ctx := r.Context()
	resp, err := h.sim.Channels(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) timeLeft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, ErrBadRequest)
		return
	}
	s := r.URL.Query().Get("address")
	if !common.IsHexAddress(s) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: address %q", ErrBadRequest, s))
		return
	}
	addr := common.HexToAddress(s)
	left, err := h.sim.TimeLeft(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, timeLeftResponse{Address: addr, TimeLeft: left})
}

func (h *HTTPHandler) tx(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, ErrBadRequest)
			return
		}
		var req txRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1e4)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		if err := h.authorize(action, req); err != nil {
			h.logger.Info("rejected escrow transaction", "action", action, "address", req.Address, "err", err)
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		account := h.sim.Account(req.Address)
		var err error
		switch action {
		case "fund":
			amount, ok := new(big.Int).SetString(req.Amount, 10)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Errorf("%w: amount %q", ErrInvalidAmount, req.Amount))
				return
			}
			err = account.Fund(r.Context(), amount)
		case "challenge":
			err = account.Challenge(r.Context())
		case "withdraw":
			err = account.Withdraw(r.Context())
		}
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		h.logger.Info("escrow transaction", "action", action, "address", req.Address)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *HTTPHandler) authorize(action string, req txRequest) error {
	ts := time.UnixMilli(req.Timestamp)
	if skew := h.sim.now().Sub(ts); skew > MaxClockSkew || skew < -MaxClockSkew {
		return fmt.Errorf("%w: timestamp %d outside the allowed window", ErrUnauthorized, req.Timestamp)
	}
	if !crypto.VerifyMessage(req.Address, txMessage(action, req.Address, req.Amount, req.Timestamp), req.Signature) {
		return fmt.Errorf("%w: signer is not %s", ErrUnauthorized, req.Address)
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()
	key := action + ":" + req.Address.Hex()
	if last, ok := h.seen[key]; ok && req.Timestamp <= last {
		return fmt.Errorf("%w: replayed request", ErrUnauthorized)
	}
	h.seen[key] = req.Timestamp
	return nil
}

func writeJSON(w http.ResponseWriter, code int, content interface{}) {
	b, err := json.Marshal(content)
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"code":"internal","error":"cannot serialize response"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Code: errorCode(err), Error: err.Error()})
}

//-----------------------------------------------------------------------------
// client

// HTTPClient reads a remote escrow served by HTTPHandler.
type HTTPClient struct {
	baseURL string
	cli     *http.Client
	now     func() time.Time
}

var _ Reader = (*HTTPClient)(nil)

// HTTPClientOption sets a parameter for the HTTP client.
type HTTPClientOption func(*HTTPClient)

// HTTPClientClock replaces time.Now when stamping transactions.
func HTTPClientClock(now func() time.Time) HTTPClientOption {
	return func(c *HTTPClient) { c.now = now }
}

// NewHTTPClient returns a client of the escrow served at baseURL.
func NewHTTPClient(baseURL string, options ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cli:     &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Account returns the transaction handle of signer's channel.
func (c *HTTPClient) Account(signer crypto.Signer) Account {
	return &httpAccount{client: c, signer: signer}
}

// Channels implements Reader with a single request.
func (c *HTTPClient) Channels(ctx context.Context) (Channels, error) {
	var resp Channels
	err := c.do(ctx, http.MethodGet, "/escrow/channels", nil, &resp)
	return resp, err
}

// Opened implements Reader.
func (c *HTTPClient) Opened(ctx context.Context) ([]common.Address, error) {
	resp, err := c.Channels(ctx)
	return resp.Opened, err
}

// Challenged implements Reader.
func (c *HTTPClient) Challenged(ctx context.Context) ([]common.Address, error) {
	resp, err := c.Channels(ctx)
	return resp.Challenged, err
}

// Closed implements Reader.
func (c *HTTPClient) Closed(ctx context.Context) ([]common.Address, error) {
	resp, err := c.Channels(ctx)
	return resp.Closed, err
}

// TimeLeft implements Reader.
func (c *HTTPClient) TimeLeft(ctx context.Context, addr common.Address) (uint64, error) {
	var resp timeLeftResponse
	if err := c.do(ctx, http.MethodGet, "/escrow/time_left?address="+addr.Hex(), nil, &resp); err != nil {
		return 0, err
	}
	return resp.TimeLeft, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1e5))
		var e errorResponse
		if json.Unmarshal(b, &e) == nil {
			if target, ok := errorCodes[e.Code]; ok {
				return remoteError{target: target, msg: e.Error}
			}
		}
		return fmt.Errorf("bad response: %d %s", resp.StatusCode, string(b))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1e6)).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// remoteError keeps the server's message and matches the sentinel it was
// built from.
type remoteError struct {
	target error
	msg    string
}

func (e remoteError) Error() string { return e.msg }
func (e remoteError) Unwrap() error { return e.target }

type httpAccount struct {
	client *HTTPClient
	signer crypto.Signer
}

func (a *httpAccount) Address() common.Address { return a.signer.Address() }

func (a *httpAccount) Fund(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return a.submit(ctx, "fund", amount.String())
}

func (a *httpAccount) Challenge(ctx context.Context) error {
	return a.submit(ctx, "challenge", "")
}

func (a *httpAccount) Withdraw(ctx context.Context) error {
	return a.submit(ctx, "withdraw", "")
}

func (a *httpAccount) submit(ctx context.Context, action, amount string) error {
	req := txRequest{
		Address:   a.signer.Address(),
		Amount:    amount,
		Timestamp: a.client.now().UnixMilli(),
	}
	sig, err := a.signer.SignMessage(txMessage(action, req.Address, amount, req.Timestamp))
	if err != nil {
		return fmt.Errorf("sign %s: %w", action, err)
	}
	req.Signature = sig
	return a.client.do(ctx, http.MethodPost, "/escrow/"+action, req, nil)
}
