package wallet

import (
	"testing"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip32"
)

// testSeed returns the BIP-39 seed for "abandon" x11 + "about" with
// passphrase "TREZOR".
func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(vector12, "TREZOR")
	require.NoError(t, err)
	return seed
}

func testMaster(t *testing.T) *HDKey {
	t.Helper()
	master, err := NewMasterKey(testSeed(t))
	require.NoError(t, err)
	return master
}

func TestNewMasterKey(t *testing.T) {
	master := testMaster(t)
	assert.True(t, master.IsPrivate())
	assert.Zero(t, master.Depth())
	assert.Len(t, master.PrivateKeyBytes(), 32)
	assert.Len(t, master.PublicKeyBytes(), crypto.PublicKeySize)

	again := testMaster(t)
	assert.Equal(t, master.PrivateKeyBytes(), again.PrivateKeyBytes())

	for _, size := range []int{0, 32, 128} {
		_, err := NewMasterKey(make([]byte, size))
		assert.Error(t, err, "seed of %d bytes", size)
	}
}

func TestDeriveFunding(t *testing.T) {
	master := testMaster(t)

	key, err := master.DeriveFunding(0, ChangeExternal, 0)
	require.NoError(t, err)
	// m / purpose' / coin' / account' / change / index
	assert.Equal(t, uint8(5), key.Depth())
	assert.True(t, key.IsPrivate())

	stepwise, err := master.DerivePath(PurposeBIP44, CoinTypeKlingnet)
	require.NoError(t, err)
	stepwise, err = stepwise.DerivePath(bip32.FirstHardenedChild+0, ChangeExternal, 0)
	require.NoError(t, err)
	assert.Equal(t, key.PrivateKeyBytes(), stepwise.PrivateKeyBytes(), "path derivation composes")

	otherAccount, err := master.DeriveFunding(1, ChangeExternal, 0)
	require.NoError(t, err)
	assert.NotEqual(t, key.PrivateKeyBytes(), otherAccount.PrivateKeyBytes())

	change, err := master.DeriveFunding(0, ChangeInternal, 0)
	require.NoError(t, err)
	assert.NotEqual(t, key.PuzzleHash(), change.PuzzleHash())
}

func TestHDKey_PuzzleHashAndSigner(t *testing.T) {
	key, err := testMaster(t).DeriveFunding(0, ChangeExternal, 3)
	require.NoError(t, err)

	assert.Equal(t, predicate.PayToPubKey(key.PublicKeyBytes()).Hash(), key.PuzzleHash())
	assert.False(t, key.PuzzleHash().IsZero())

	signer, err := key.Signer()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKeyBytes(), signer.PublicKey())

	digest := crypto.Hash([]byte("fee spend"))
	sig, err := signer.Sign(digest)
	require.NoError(t, err)
	assert.True(t, crypto.VerifySignature(digest, sig, key.PublicKeyBytes()))
}
