package wallet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Funding keys live at m/44'/8888'/account'/change/index, the same tree
// Klingnet wallets use, so one mnemonic can back both.
const (
	PurposeBIP44     = bip32.FirstHardenedChild + 44
	CoinTypeKlingnet = bip32.FirstHardenedChild + 8888

	// ChangeExternal keys receive funding from payers.
	ChangeExternal = 0
	// ChangeInternal keys receive change left by fee spends.
	ChangeInternal = 1
)

var errPublicOnly = errors.New("key has no private part")

// HDKey is a BIP-32 extended key.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates the master key for a 64-byte BIP-39 seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// fundingPath is the child index sequence below the master key.
func fundingPath(account, change, index uint32) []uint32 {
	return []uint32{PurposeBIP44, CoinTypeKlingnet, bip32.FirstHardenedChild + account, change, index}
}

// DerivePath walks indices from k. Hardened indices include
// bip32.FirstHardenedChild.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	key := k.key
	for depth, idx := range indices {
		child, err := key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive index %d at step %d: %w", idx, depth, err)
		}
		key = child
	}
	return &HDKey{key: key}, nil
}

// DeriveFunding derives the funding key for (account, change, index).
func (k *HDKey) DeriveFunding(account, change, index uint32) (*HDKey, error) {
	return k.DerivePath(fundingPath(account, change, index)...)
}

// PrivateKeyBytes returns the 32-byte private scalar, or nil for a
// public-only key. bip32 stores private keys with a leading zero byte.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	if raw := k.key.Key; len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return k.key.Key
}

// PublicKeyBytes returns the compressed public key.
func (k *HDKey) PublicKeyBytes() []byte { return k.key.PublicKey().Key }

func (k *HDKey) IsPrivate() bool { return k.key.IsPrivate }

func (k *HDKey) Depth() uint8 { return k.key.Depth }

// Signer returns the key as a signer for fee spends.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, errPublicOnly
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// Predicate is the pay-to-pubkey rule that locks coins to this key, and
// PuzzleHash its hash.
func (k *HDKey) Predicate() predicate.Predicate {
	return predicate.PayToPubKey(k.PublicKeyBytes())
}

func (k *HDKey) PuzzleHash() types.Hash { return k.Predicate().Hash() }
