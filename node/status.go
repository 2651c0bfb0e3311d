package node

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/internal/provider"
	"github.com/tendermint/streamer/types"
)

// ChannelInfo is the JSON form of a provider.ChannelStatus. Amounts are
// decimal strings in wei.
type ChannelInfo struct {
	Client           common.Address `json:"client"`
	State            string         `json:"state"`
	TimeLeft         uint64         `json:"time_left"`
	RemainingBalance string         `json:"remaining_balance,omitempty"`
	Claimable        string         `json:"claimable"`
	Unpaid           bool           `json:"unpaid"`
	ServedChars      int            `json:"served_chars"`
	Urgent           bool           `json:"urgent"`
}

// ResultStatus is returned by the /status endpoint.
type ResultStatus struct {
	Moniker        string        `json:"moniker"`
	InitialBalance string        `json:"initial_balance"`
	RatePerChar    string        `json:"rate_per_char"`
	Earnings       string        `json:"earnings"`
	Channels       []ChannelInfo `json:"channels"`
}

// ResultCashOut is returned by the /cash_out endpoint.
type ResultCashOut struct {
	Client common.Address `json:"client"`
	Amount string         `json:"amount"`
}

func newChannelInfo(s provider.ChannelStatus) ChannelInfo {
	info := ChannelInfo{
		Client:      s.Client,
		State:       s.View.State().String(),
		TimeLeft:    s.View.TimeLeft(),
		Claimable:   s.Claimable.String(),
		Unpaid:      s.Unpaid,
		ServedChars: s.ServedChars,
		Urgent:      s.Urgent,
	}
	if s.Voucher != nil {
		info.RemainingBalance = s.Voucher.RemainingBalance().String()
	}
	return info
}

// Status returns the operator's view of the node.
func (n *ProviderNode) Status() ResultStatus {
	channels := n.provider.Channels()
	infos := make([]ChannelInfo, 0, len(channels))
	for _, s := range channels {
		infos = append(infos, newChannelInfo(s))
	}
	return ResultStatus{
		Moniker:        n.config.Moniker,
		InitialBalance: n.params.InitialBalance.String(),
		RatePerChar:    n.params.RatePerChar.String(),
		Earnings:       n.escrow.Earnings().String(),
		Channels:       infos,
	}
}

func (n *ProviderNode) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, n.Status())
}

func (n *ProviderNode) cashOutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s := r.URL.Query().Get("address")
	if !common.IsHexAddress(s) {
		writeJSONError(w, http.StatusBadRequest, "address must be a hex encoded account address")
		return
	}
	client := common.HexToAddress(s)
	paid, err := n.provider.CashOut(r.Context(), client)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ResultCashOut{Client: client, Amount: paid.String()})
	case errors.Is(err, types.ErrNoVoucher):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escrow.ErrNothingToClaim), errors.Is(err, escrow.ErrNotFunded),
		errors.Is(err, escrow.ErrChannelClosed):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		n.logger.Error("cash out failed", "client", client, "err", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, content interface{}) {
	b, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"error":"Internal Server Error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func writeJSONError(w http.ResponseWriter, code int, errText string) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: errText})
}
