package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key.PublicKey(), PublicKeySize)
	assert.Len(t, key.Serialize(), 32)
	require.NoError(t, ValidatePublicKey(key.PublicKey()))

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key.Serialize(), other.Serialize())
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original, err := GenerateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(original.Serialize())
	require.NoError(t, err)
	assert.Equal(t, original.PublicKey(), restored.PublicKey())

	for _, n := range []int{0, 31, 33, 64} {
		_, err := PrivateKeyFromBytes(make([]byte, n))
		assert.Error(t, err, "length %d", n)
	}
}

func TestSign_Verify(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	digest := Hash([]byte("fee spend conditions"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)
	require.Len(t, sig, SignatureSize)

	assert.True(t, VerifySignature(digest, sig, key.PublicKey()))
}

func TestVerify_Failures(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	digest := Hash([]byte("message"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)

	corrupted := append([]byte{}, sig...)
	corrupted[10] ^= 0xff

	tests := []struct {
		name   string
		digest [32]byte
		sig    []byte
		pub    []byte
	}{
		{"wrong digest", Hash([]byte("other")), sig, key.PublicKey()},
		{"wrong key", digest, sig, other.PublicKey()},
		{"corrupted signature", digest, corrupted, key.PublicKey()},
		{"empty signature", digest, nil, key.PublicKey()},
		{"bad public key", digest, sig, []byte{0x02, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifySignature(tt.digest, tt.sig, tt.pub))
		})
	}
}

func TestValidatePublicKey(t *testing.T) {
	require.Error(t, ValidatePublicKey(make([]byte, 32)))
	require.Error(t, ValidatePublicKey(make([]byte, PublicKeySize)))
}
