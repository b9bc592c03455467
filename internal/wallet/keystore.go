package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

const keystoreVersion = 1

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version           int        `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	EncryptedSeed     []byte     `json:"encrypted_seed"`
	Account           uint32     `json:"account"`
	Keys              []KeyEntry `json:"keys"`
	NextExternalIndex uint32     `json:"next_external_index"`
	NextChangeIndex   uint32     `json:"next_change_index"`
}

// KeyEntry records a derived funding key.
type KeyEntry struct {
	Change     uint32     `json:"change"` // 0=external (funding), 1=internal (change)
	Index      uint32     `json:"index"`
	Name       string     `json:"name,omitempty"`
	PuzzleHash types.Hash `json:"puzzle_hash"`
}

// Keystore manages encrypted wallet files on disk.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create writes a new encrypted wallet holding seed. Funding keys are
// derived under account.
func (ks *Keystore) Create(name string, seed, password []byte, account uint32, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	return ks.writeFile(path, &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Account:       account,
		Keys:          []KeyEntry{},
	})
}

// Load decrypts a wallet and returns the seed bytes and account.
func (ks *Keystore) Load(name string, password []byte) ([]byte, uint32, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, 0, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, 0, fmt.Errorf("decrypt wallet: %w", err)
	}
	return seed, kf.Account, nil
}

// AddKey records a derived key and advances the next index of its chain
// past it. Re-adding the same key is a no-op.
func (ks *Keystore) AddKey(name string, key KeyEntry) error {
	path := ks.walletPath(name)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	for _, existing := range kf.Keys {
		if existing.Change == key.Change && existing.Index == key.Index {
			if existing.PuzzleHash == key.PuzzleHash {
				return nil
			}
			return fmt.Errorf("key path change=%d index=%d already exists", key.Change, key.Index)
		}
	}
	kf.Keys = append(kf.Keys, key)

	next := &kf.NextExternalIndex
	if key.Change == ChangeInternal {
		next = &kf.NextChangeIndex
	}
	if key.Index >= *next {
		*next = key.Index + 1
	}
	return ks.writeFile(path, kf)
}

// Keys returns the recorded keys of a wallet.
func (ks *Keystore) Keys(name string) ([]KeyEntry, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	return kf.Keys, nil
}

// NextIndex returns the next unused index on the given chain.
func (ks *Keystore) NextIndex(name string, change uint32) (uint32, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return 0, err
	}
	if change == ChangeInternal {
		return kf.NextChangeIndex, nil
	}
	return kf.NextExternalIndex, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
