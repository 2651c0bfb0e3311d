package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// BalanceSize is the width of a packed balance: one uint256 word.
const BalanceSize = 32

// Voucher is a signed attestation of the balance a client leaves in its
// channel. A lower remaining balance means more has been paid. Vouchers are
// immutable; accessors hand out copies.
type Voucher struct {
	remainingBalance *big.Int
	signature        []byte
}

// NewVoucher copies balance and signature into a new Voucher.
func NewVoucher(balance *big.Int, signature []byte) Voucher {
	return Voucher{
		remainingBalance: new(big.Int).Set(balance),
		signature:        common.CopyBytes(signature),
	}
}

// RemainingBalance returns a copy of the attested balance.
func (v Voucher) RemainingBalance() *big.Int {
	if v.remainingBalance == nil {
		return nil
	}
	return new(big.Int).Set(v.remainingBalance)
}

// Signature returns a copy of the raw signature bytes.
func (v Voucher) Signature() []byte { return common.CopyBytes(v.signature) }

// IsZero reports whether the voucher releases the whole deposit.
func (v Voucher) IsZero() bool {
	return v.remainingBalance != nil && v.remainingBalance.Sign() == 0
}

// Cmp compares the remaining balances of v and o.
func (v Voucher) Cmp(o Voucher) int {
	return v.remainingBalance.Cmp(o.remainingBalance)
}

func (v Voucher) String() string {
	return fmt.Sprintf("Voucher{%s %X}", v.remainingBalance, v.signature)
}

// EncodeBalance packs balance as a big-endian uint256. The result is what
// gets hashed and signed.
func EncodeBalance(balance *big.Int) ([]byte, error) {
	switch {
	case balance == nil:
		return nil, fmt.Errorf("%w: nil balance", ErrEncoding)
	case balance.Sign() < 0:
		return nil, fmt.Errorf("%w: negative balance %s", ErrEncoding, balance)
	case balance.BitLen() > BalanceSize*8:
		return nil, fmt.Errorf("%w: balance %s overflows uint256", ErrEncoding, balance)
	}
	return math.PaddedBigBytes(balance, BalanceSize), nil
}

// DecodeBalance is the inverse of EncodeBalance.
func DecodeBalance(packed []byte) (*big.Int, error) {
	if len(packed) != BalanceSize {
		return nil, fmt.Errorf("%w: packed balance must be %d bytes, got %d", ErrDecoding, BalanceSize, len(packed))
	}
	return new(big.Int).SetBytes(packed), nil
}

// VoucherHash is keccak256 over the packed balance.
func VoucherHash(balance *big.Int) (common.Hash, error) {
	packed, err := EncodeBalance(balance)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(packed), nil
}
