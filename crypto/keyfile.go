package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/creachadair/atomicfile"
)

// KeyFile is the on-disk form of a channel key.
type KeyFile struct {
	Address string `json:"address"`
	PrivKey string `json:"priv_key"`
}

// SaveKeyFile persists the signer's key to path, replacing any existing file
// atomically.
func SaveKeyFile(path string, s *PrivKeySigner) error {
	bz, err := json.MarshalIndent(KeyFile{
		Address: s.Address().Hex(),
		PrivKey: s.PrivKeyHex(),
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(path, bytes.NewReader(bz), 0600)
	return err
}

// LoadKeyFile reads a key written by SaveKeyFile.
func LoadKeyFile(path string) (*PrivKeySigner, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf KeyFile
	if err := json.Unmarshal(bz, &kf); err != nil {
		return nil, fmt.Errorf("error reading key from %v: %w", path, err)
	}
	s, err := PrivKeySignerFromHex(kf.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("error reading key from %v: %w", path, err)
	}
	if kf.Address != "" && kf.Address != s.Address().Hex() {
		return nil, fmt.Errorf("key file %v: address %s does not match key", path, kf.Address)
	}
	return s, nil
}

// LoadOrGenKeyFile loads the key at path, generating and saving a new one if
// the file does not exist.
func LoadOrGenKeyFile(path string) (*PrivKeySigner, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadKeyFile(path)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	s, err := GenPrivKeySigner()
	if err != nil {
		return nil, err
	}
	if err := SaveKeyFile(path, s); err != nil {
		return nil, err
	}
	return s, nil
}
