package crypto

import (
	"testing"

	"github.com/Klingon-tech/klingnet-bag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "ea8f163db38682925e4491c5e58d4bb3506ef8c14eb78a86e908c5624a67200f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := types.HexToHash(tt.want)
			require.NoError(t, err)
			assert.Equal(t, want, Hash(tt.input))
		})
	}
}

func TestHash_DifferentInputs(t *testing.T) {
	assert.NotEqual(t, Hash([]byte("input A")), Hash([]byte("input B")))
}

func TestHashParts_EqualsConcatenation(t *testing.T) {
	a := []byte("parent")
	b := []byte("puzzle")
	c := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	joined := append(append(append([]byte{}, a...), b...), c...)
	assert.Equal(t, Hash(joined), HashParts(a, b, c))
	assert.Equal(t, Hash(nil), HashParts())
}

func TestHashConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))

	result := HashConcat(a, b)
	assert.False(t, result.IsZero())
	assert.NotEqual(t, result, HashConcat(b, a), "order matters")
	assert.Equal(t, HashParts(a[:], b[:]), result)
}
