package wallet

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(t.TempDir())
	require.NoError(t, err)
	return ks
}

func testSeedBytes(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(vector12, "")
	require.NoError(t, err)
	return seed
}

func TestKeystore_CreateAndLoad(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("test-password")

	require.NoError(t, ks.Create("mywallet", seed, password, 3, fastParams()))

	loaded, account, err := ks.Load("mywallet", password)
	require.NoError(t, err)
	assert.Equal(t, seed, loaded)
	assert.Equal(t, uint32(3), account)

	err = ks.Create("mywallet", seed, password, 0, fastParams())
	assert.ErrorIs(t, err, ErrWalletExists)

	_, _, err = ks.Load("mywallet", []byte("wrong"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, _, err = ks.Load("missing", password)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestKeystore_ListAndDelete(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	names, err := ks.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, ks.Create(name, seed, []byte("p"), 0, fastParams()))
	}
	// Non-wallet files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(ks.path, "notes.txt"), []byte("x"), 0600))

	names, err = ks.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)

	require.NoError(t, ks.Delete("alpha"))
	names, err = ks.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, names)

	assert.ErrorIs(t, ks.Delete("alpha"), ErrWalletNotFound)
}

func TestKeystore_AddKey(t *testing.T) {
	ks := testKeystore(t)
	require.NoError(t, ks.Create("w", testSeedBytes(t), []byte("p"), 0, fastParams()))

	ext := KeyEntry{Change: ChangeExternal, Index: 0, PuzzleHash: types.Hash{1}}
	require.NoError(t, ks.AddKey("w", ext))
	require.NoError(t, ks.AddKey("w", ext), "idempotent")

	clash := ext
	clash.PuzzleHash = types.Hash{2}
	assert.Error(t, ks.AddKey("w", clash))

	require.NoError(t, ks.AddKey("w", KeyEntry{Change: ChangeInternal, Index: 4, PuzzleHash: types.Hash{3}}))

	keys, err := ks.Keys("w")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	next, err := ks.NextIndex("w", ChangeExternal)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), next)
	next, err = ks.NextIndex("w", ChangeInternal)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), next)

	_, err = ks.NextIndex("missing", ChangeExternal)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestKeystore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	ks := testKeystore(t)
	require.NoError(t, ks.Create("secure", testSeedBytes(t), []byte("p"), 0, fastParams()))

	info, err := os.Stat(ks.walletPath("secure"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestKeystore_UnsupportedVersion(t *testing.T) {
	ks := testKeystore(t)
	require.NoError(t, os.WriteFile(ks.walletPath("old"), []byte(`{"version":7}`), 0600))
	_, _, err := ks.Load("old", []byte("p"))
	assert.ErrorContains(t, err, "unsupported wallet version")
}
