package node

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/Klingon-tech/klingnet-bag/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ledgerPath returns where the configured backend keeps its data. Bolt
// stores a single file; the other backends take a directory.
func ledgerPath(cfg *config.Config) string {
	dir := expandHome(cfg.LedgerDir())
	if cfg.Ledger.Backend == storage.BackendBolt {
		return filepath.Join(dir, "ledger.db")
	}
	return dir
}
