package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// NetworkGenesis returns the default genesis reference of a network: the
// parent ID every bag root coin on that network is minted under.
func NetworkGenesis(network NetworkType) types.Hash {
	return crypto.Hash([]byte("klingbag/genesis/" + string(network)))
}

// Genesis returns the configured genesis reference, falling back to the
// network default.
func (c *Config) Genesis() (types.Hash, error) {
	if c.Unwind.Genesis == "" {
		return NetworkGenesis(c.Network), nil
	}
	h, err := types.HexToHash(c.Unwind.Genesis)
	if err != nil {
		return types.Hash{}, fmt.Errorf("unwind.genesis: %w", err)
	}
	return h, nil
}
