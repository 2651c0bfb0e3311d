package ledger

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/streamer/types"
)

const (
	// prefixes are unique within the ledger db
	prefixVoucher = int64(0)
)

// Store keeps the audit trail of every voucher the ledger accepted, in
// acceptance order. It is written but never read back on startup: ledger
// state does not survive a restart.
type Store struct {
	db dbm.DB
}

// NewStore returns a store over db.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

func voucherKey(client common.Address, seq int64) []byte {
	key, err := orderedcode.Append(nil, prefixVoucher, string(client.Bytes()), seq)
	if err != nil {
		panic(err)
	}
	return key
}

func decodeVoucherKey(key []byte) (client common.Address, seq int64, err error) {
	var (
		prefix int64
		addr   string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &addr, &seq)
	if err != nil {
		return
	}
	if len(remaining) != 0 {
		return client, -1, fmt.Errorf("expected complete key but got remainder: %s", remaining)
	}
	if prefix != prefixVoucher {
		return client, -1, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixVoucher, prefix)
	}
	return common.BytesToAddress([]byte(addr)), seq, nil
}

// SaveVoucher appends v as the seq-th accepted voucher of client.
func (s *Store) SaveVoucher(client common.Address, seq int64, v types.Voucher) error {
	bz, err := json.Marshal(v.ToMessage())
	if err != nil {
		return err
	}
	return s.db.SetSync(voucherKey(client, seq), bz)
}

// History returns the accepted vouchers of client, oldest first.
func (s *Store) History(client common.Address) ([]types.Voucher, error) {
	iter, err := s.db.Iterator(voucherKey(client, 0), voucherKey(client, math.MaxInt64))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var vouchers []types.Voucher
	for ; iter.Valid(); iter.Next() {
		if _, _, err := decodeVoucherKey(iter.Key()); err != nil {
			return nil, err
		}
		var msg types.VoucherMessage
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, fmt.Errorf("corrupted voucher record: %w", err)
		}
		v, err := msg.Voucher()
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, iter.Error()
}

// Close closes the underlying db.
func (s *Store) Close() error {
	return s.db.Close()
}
