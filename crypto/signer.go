package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/tendermint/streamer/types"
)

const (
	// SignatureLength is the size of an R || S || V signature.
	SignatureLength = 65

	recoveryIDOffset = 64
	legacyVOffset    = 27
)

// Signer is the signing capability bound to one address. SignMessage signs
// raw bytes as an Ethereum personal message.
type Signer interface {
	Address() common.Address
	SignMessage(raw []byte) ([]byte, error)
}

// PrivKeySigner signs with an in-process secp256k1 key.
type PrivKeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*PrivKeySigner)(nil)

// NewPrivKeySigner wraps key.
func NewPrivKeySigner(key *ecdsa.PrivateKey) *PrivKeySigner {
	return &PrivKeySigner{
		key:  key,
		addr: ethcrypto.PubkeyToAddress(key.PublicKey),
	}
}

// GenPrivKeySigner generates a fresh key.
func GenPrivKeySigner() (*PrivKeySigner, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewPrivKeySigner(key), nil
}

// PrivKeySignerFromHex parses a hex encoded private key, with or without 0x.
func PrivKeySignerFromHex(s string) (*PrivKeySigner, error) {
	if has0xPrefix(s) {
		s = s[2:]
	}
	key, err := ethcrypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPrivKeySigner(key), nil
}

// Address returns the address derived from the signer's public key.
func (s *PrivKeySigner) Address() common.Address { return s.addr }

// PrivKeyHex returns the 0x-prefixed private key.
func (s *PrivKeySigner) PrivKeyHex() string {
	return hexutil.Encode(ethcrypto.FromECDSA(s.key))
}

// SignMessage implements Signer.
func (s *PrivKeySigner) SignMessage(raw []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(raw), s.key)
	if err != nil {
		return nil, err
	}
	sig[recoveryIDOffset] += legacyVOffset
	return sig, nil
}

// SignVoucher signs balance with signer. Any failure of the capability,
// including a user declining, is reported as types.ErrSigning.
func SignVoucher(signer Signer, balance *big.Int) (types.Voucher, error) {
	hash, err := types.VoucherHash(balance)
	if err != nil {
		return types.Voucher{}, err
	}
	sig, err := signer.SignMessage(hash.Bytes())
	if err != nil {
		return types.Voucher{}, fmt.Errorf("%w: %v", types.ErrSigning, err)
	}
	if len(sig) != SignatureLength {
		return types.Voucher{}, fmt.Errorf("%w: signature has %d bytes", types.ErrSigning, len(sig))
	}
	return types.NewVoucher(balance, sig), nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
