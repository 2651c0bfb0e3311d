package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// VoucherMessage is the wire form of a voucher.
type VoucherMessage struct {
	// RemainingBalance is lowercase hex without sign or 0x prefix.
	RemainingBalance string `json:"remainingBalance"`
	Signature        string `json:"signature"`
}

// ToMessage converts v to its wire form.
func (v Voucher) ToMessage() VoucherMessage {
	return VoucherMessage{
		RemainingBalance: v.remainingBalance.Text(16),
		Signature:        hexutil.Encode(v.signature),
	}
}

// Voucher decodes the wire form. An empty balance field yields ErrNoVoucher.
func (m VoucherMessage) Voucher() (Voucher, error) {
	balance, err := decodeHexBalance(m.RemainingBalance)
	if err != nil {
		return Voucher{}, err
	}
	sig, err := decodeHexSignature(m.Signature)
	if err != nil {
		return Voucher{}, err
	}
	return Voucher{remainingBalance: balance, signature: sig}, nil
}

func decodeHexBalance(s string) (*big.Int, error) {
	if s == "" {
		return nil, ErrNoVoucher
	}
	for _, c := range s {
		if !isHexDigit(c) {
			return nil, fmt.Errorf("%w: invalid balance %q", ErrDecoding, s)
		}
	}
	balance, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: invalid balance %q", ErrDecoding, s)
	}
	if balance.BitLen() > BalanceSize*8 {
		return nil, fmt.Errorf("%w: balance %q overflows uint256", ErrDecoding, s)
	}
	return balance, nil
}

func decodeHexSignature(s string) ([]byte, error) {
	var (
		sig []byte
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		sig, err = hexutil.Decode(s)
	} else {
		sig, err = hex.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature: %v", ErrDecoding, err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrDecoding)
	}
	return sig, nil
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// Message is one frame on a channel: either service content (provider to
// client) or a voucher (client to provider). The two kinds are told apart by
// the shape of the JSON payload.
type Message struct {
	Content string
	Voucher *VoucherMessage
}

// NewContentMessage wraps service content.
func NewContentMessage(content string) Message {
	return Message{Content: content}
}

// NewVoucherMessage wraps a signed voucher.
func NewVoucherMessage(v Voucher) Message {
	vm := v.ToMessage()
	return Message{Voucher: &vm}
}

// IsVoucher reports whether m carries a voucher.
func (m Message) IsVoucher() bool { return m.Voucher != nil }

// MarshalJSON encodes content as a JSON string and vouchers as objects.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Voucher != nil {
		return json.Marshal(m.Voucher)
	}
	return json.Marshal(m.Content)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(bz []byte) error {
	bz = bytes.TrimSpace(bz)
	if len(bz) == 0 {
		return fmt.Errorf("%w: empty message", ErrDecoding)
	}
	switch bz[0] {
	case '"':
		var content string
		if err := json.Unmarshal(bz, &content); err != nil {
			return fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		*m = Message{Content: content}
	case '{':
		var vm VoucherMessage
		if err := json.Unmarshal(bz, &vm); err != nil {
			return fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		*m = Message{Voucher: &vm}
	default:
		return fmt.Errorf("%w: unexpected payload %q", ErrDecoding, bz[0])
	}
	return nil
}

// DecodeMessage parses a raw frame received from the transport.
func DecodeMessage(bz []byte) (Message, error) {
	var m Message
	err := m.UnmarshalJSON(bz)
	return m, err
}
