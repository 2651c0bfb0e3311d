package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/tendermint/streamer/types"
)

// VerifyMessage reports whether sig is a personal-message signature of raw
// by addr. It never fails: malformed input and recovery errors return false.
func VerifyMessage(addr common.Address, raw, sig []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if len(sig) != SignatureLength {
		return false
	}
	rsv := common.CopyBytes(sig)
	if rsv[recoveryIDOffset] >= legacyVOffset {
		rsv[recoveryIDOffset] -= legacyVOffset
	}
	if rsv[recoveryIDOffset] > 1 {
		return false
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(raw), rsv)
	if err != nil || pub == nil {
		return false
	}
	return ethcrypto.PubkeyToAddress(*pub) == addr
}

// VerifyVoucher reports whether sig was produced by signer over the encoded
// balance.
func VerifyVoucher(signer common.Address, balance *big.Int, sig []byte) bool {
	hash, err := types.VoucherHash(balance)
	if err != nil {
		return false
	}
	return VerifyMessage(signer, hash.Bytes(), sig)
}
