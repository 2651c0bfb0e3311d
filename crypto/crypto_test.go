package crypto_test

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/types"
)

// first two accounts of the default hardhat mnemonic
const (
	privKey0 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	addr0    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	privKey1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	addr1    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func mustSigner(t *testing.T, hex string) *crypto.PrivKeySigner {
	t.Helper()
	s, err := crypto.PrivKeySignerFromHex(hex)
	require.NoError(t, err)
	return s
}

func TestPrivKeySignerAddress(t *testing.T) {
	assert.Equal(t, common.HexToAddress(addr0), mustSigner(t, privKey0).Address())
	assert.Equal(t, common.HexToAddress(addr1), mustSigner(t, privKey1).Address())

	_, err := crypto.PrivKeySignerFromHex("0x1234")
	require.Error(t, err)
}

func TestSignAndVerifyVoucher(t *testing.T) {
	signer := mustSigner(t, privKey0)
	balance := big.NewInt(4e17)

	v, err := crypto.SignVoucher(signer, balance)
	require.NoError(t, err)
	sig := v.Signature()
	require.Len(t, sig, crypto.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	assert.True(t, crypto.VerifyVoucher(signer.Address(), balance, sig))

	// wrong signer
	assert.False(t, crypto.VerifyVoucher(common.HexToAddress(addr1), balance, sig))
	// wrong balance
	assert.False(t, crypto.VerifyVoucher(signer.Address(), big.NewInt(3e17), sig))
	// unencodable balance
	assert.False(t, crypto.VerifyVoucher(signer.Address(), big.NewInt(-1), sig))
}

func TestVerifyAcceptsRawRecoveryID(t *testing.T) {
	signer := mustSigner(t, privKey1)
	v, err := crypto.SignVoucher(signer, big.NewInt(0))
	require.NoError(t, err)

	sig := v.Signature()
	sig[64] -= 27
	assert.True(t, crypto.VerifyVoucher(signer.Address(), big.NewInt(0), sig))

	sig[64] = 5
	assert.False(t, crypto.VerifyVoucher(signer.Address(), big.NewInt(0), sig))
}

func TestTamperedPayloadFailsVerification(t *testing.T) {
	signer := mustSigner(t, privKey0)
	balance := big.NewInt(123456789)

	hash, err := types.VoucherHash(balance)
	require.NoError(t, err)
	sig, err := signer.SignMessage(hash.Bytes())
	require.NoError(t, err)
	require.True(t, crypto.VerifyMessage(signer.Address(), hash.Bytes(), sig))

	for bit := 0; bit < len(hash)*8; bit += 37 {
		tampered := common.CopyBytes(hash.Bytes())
		tampered[bit/8] ^= 1 << (bit % 8)
		assert.False(t, crypto.VerifyMessage(signer.Address(), tampered, sig), "bit %d", bit)
	}

	badSig := common.CopyBytes(sig)
	badSig[10] ^= 0x01
	assert.False(t, crypto.VerifyMessage(signer.Address(), hash.Bytes(), badSig))
}

func TestVerifyNeverFails(t *testing.T) {
	addr := common.HexToAddress(addr0)
	garbage := [][]byte{
		nil,
		{},
		make([]byte, 64),
		make([]byte, 65),
		make([]byte, 66),
		append(make([]byte, 64), 0xff),
		func() []byte {
			b := make([]byte, 65)
			for i := range b {
				b[i] = 0xff
			}
			b[64] = 27
			return b
		}(),
	}
	for _, sig := range garbage {
		assert.NotPanics(t, func() {
			assert.False(t, crypto.VerifyMessage(addr, []byte("payload"), sig))
		})
	}
}

type failingSigner struct{ addr common.Address }

func (f failingSigner) Address() common.Address { return f.addr }

func (failingSigner) SignMessage([]byte) ([]byte, error) {
	return nil, errors.New("user rejected the request")
}

type shortSigner struct{ failingSigner }

func (shortSigner) SignMessage([]byte) ([]byte, error) { return []byte{1, 2, 3}, nil }

func TestSignVoucherErrors(t *testing.T) {
	_, err := crypto.SignVoucher(failingSigner{}, big.NewInt(1))
	require.ErrorIs(t, err, types.ErrSigning)

	_, err = crypto.SignVoucher(shortSigner{}, big.NewInt(1))
	require.ErrorIs(t, err, types.ErrSigning)

	_, err = crypto.SignVoucher(mustSigner(t, privKey0), big.NewInt(-1))
	require.ErrorIs(t, err, types.ErrEncoding)
}

func TestKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_key.json")

	generated, err := crypto.LoadOrGenKeyFile(path)
	require.NoError(t, err)

	loaded, err := crypto.LoadOrGenKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, generated.Address(), loaded.Address())
	assert.Equal(t, generated.PrivKeyHex(), loaded.PrivKeyHex())

	require.NoError(t, crypto.SaveKeyFile(path, mustSigner(t, privKey1)))
	loaded, err = crypto.LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr1), loaded.Address())

	_, err = crypto.LoadKeyFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
