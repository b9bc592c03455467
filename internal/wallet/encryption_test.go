package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64, // 64 KiB (minimal)
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("secret wallet data")},
		{"empty", []byte{}},
		{"large", func() []byte {
			b := make([]byte, 10000)
			for i := range b {
				b[i] = byte(i % 256)
			}
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			password := []byte("strong-password-123")
			encrypted, err := Encrypt(tt.data, password, fastParams())
			require.NoError(t, err)

			decrypted, err := Decrypt(encrypted, password)
			require.NoError(t, err)
			assert.Len(t, decrypted, len(tt.data))
			if len(tt.data) > 0 {
				assert.Equal(t, tt.data, decrypted)
			}
		})
	}
}

func TestDecrypt_Failures(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret data"), []byte("correct"), fastParams())
	require.NoError(t, err)

	_, err = Decrypt(encrypted, []byte("wrong"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	corrupted := append([]byte{}, encrypted...)
	corrupted[len(corrupted)-1] ^= 0xFF
	_, err = Decrypt(corrupted, []byte("correct"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	// The header is authenticated along with the ciphertext.
	header := append([]byte{}, encrypted...)
	header[SaltSize+8] = 2
	_, err = Decrypt(header, []byte("correct"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = Decrypt([]byte("too short"), []byte("correct"))
	assert.Error(t, err)
}

func TestEncrypt_DifferentEachTime(t *testing.T) {
	plaintext := []byte("same data")
	password := []byte("same pass")

	enc1, err := Encrypt(plaintext, password, fastParams())
	require.NoError(t, err)
	enc2, err := Encrypt(plaintext, password, fastParams())
	require.NoError(t, err)
	assert.NotEqual(t, enc1, enc2, "random salt and nonce")

	d1, err := Decrypt(enc1, password)
	require.NoError(t, err)
	d2, err := Decrypt(enc2, password)
	require.NoError(t, err)
	assert.Equal(t, plaintext, d1)
	assert.Equal(t, plaintext, d2)
}

func TestEncrypt_OutputFormat(t *testing.T) {
	plaintext := []byte("test")
	encrypted, err := Encrypt(plaintext, []byte("pass"), fastParams())
	require.NoError(t, err)
	// header(41) + nonce(24) + plaintext + tag(16)
	assert.Len(t, encrypted, headerSize+24+len(plaintext)+16)
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, uint32(64*1024), p.Memory)
	assert.Equal(t, uint32(3), p.Iterations)
	assert.Equal(t, uint8(4), p.Parallelism)
}
