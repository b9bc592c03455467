package predicate

import (
	"encoding/json"
	"testing"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHash(t *testing.T, s string) types.Hash {
	t.Helper()
	h, err := types.HexToHash(s)
	require.NoError(t, err)
	return h
}

func TestConditions_EncodeDecode(t *testing.T) {
	ph := crypto.Hash([]byte("target"))
	conds := []Condition{
		CreateAnnouncement(BatchAnnouncement),
		CreateCoin(ph, 10_000_000_000_000_000, ph.Bytes()),
		ReserveFee(500_000),
		AssertAnnouncement(AnnouncementID(ph, []byte("$"))),
	}

	got, err := DecodeConditions(EncodeConditions(conds))
	require.NoError(t, err)
	assert.Equal(t, conds, got)

	empty, err := DecodeConditions(EncodeConditions(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDecodeConditions_Malformed(t *testing.T) {
	valid := EncodeConditions([]Condition{CreateCoin(types.Hash{1}, 5, []byte("memo"))})

	badOp := append([]byte{}, valid...)
	badOp[4] = 0x7f

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"count without body", []byte{1, 0, 0, 0}},
		{"truncated memo", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00)},
		{"unknown opcode", badOp},
		{"huge count", []byte{0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConditions(tt.data)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestBatch_RunYieldsAnnounceAndCreates(t *testing.T) {
	outputs := []Output{
		{PuzzleHash: mustHash(t, "4bc6435b409bcbabe53870dae0f03755f6aabb4594c5915ec983acf12a5d1fba"), Amount: 10_000_000_000_000_000},
		{PuzzleHash: mustHash(t, "f3d5162330c4d6c8b9a0aba5eed999178dd2bf466a7a0289739acc8209122e2c"), Amount: 32_100_000_000},
	}
	p := Batch(outputs)
	require.NoError(t, p.Validate())

	conds, err := p.Run(types.Hash{}, nil)
	require.NoError(t, err)
	require.Len(t, conds, 3)

	assert.Equal(t, OpCreateAnnouncement, conds[0].Op)
	assert.Equal(t, BatchAnnouncement, conds[0].Memo)
	for i, o := range outputs {
		c := conds[i+1]
		assert.Equal(t, OpCreateCoin, c.Op)
		assert.Equal(t, o.PuzzleHash, c.PuzzleHash)
		assert.Equal(t, o.Amount, c.Amount)
		assert.Equal(t, o.PuzzleHash.Bytes(), c.Memo)
	}

	_, err = p.Run(types.Hash{}, []byte{0x01})
	assert.ErrorIs(t, err, ErrUnexpectedInput)
}

func TestBatch_HashIsContentAddressed(t *testing.T) {
	a := Output{PuzzleHash: types.Hash{0xaa}, Amount: 1}
	b := Output{PuzzleHash: types.Hash{0xbb}, Amount: 2}

	assert.Equal(t, Batch([]Output{a, b}).Hash(), Batch([]Output{a, b}).Hash())
	assert.NotEqual(t, Batch([]Output{a, b}).Hash(), Batch([]Output{b, a}).Hash(), "order is committed")

	changed := b
	changed.Amount = 3
	assert.NotEqual(t, Batch([]Output{a, b}).Hash(), Batch([]Output{a, changed}).Hash())
}

func TestPayToPubKey_SignAndRun(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p := PayToPubKey(key.PublicKey())
	require.NoError(t, p.Validate())

	coinID := crypto.Hash([]byte("funding coin"))
	conds := []Condition{
		CreateCoin(p.Hash(), 900, nil),
		ReserveFee(100),
		AssertAnnouncement(AnnouncementID(types.Hash{7}, BatchAnnouncement)),
	}
	solution, err := Sign(key, coinID, conds)
	require.NoError(t, err)

	got, err := p.Run(coinID, solution)
	require.NoError(t, err)
	assert.Equal(t, conds, got)

	t.Run("replayed on another coin", func(t *testing.T) {
		_, err := p.Run(crypto.Hash([]byte("other coin")), solution)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("tampered conditions", func(t *testing.T) {
		tampered := append([]byte{}, solution...)
		tampered[4+1+types.HashSize] ^= 0x01 // first condition amount
		_, err := p.Run(coinID, tampered)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := p.Run(coinID, EncodeConditions(conds))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestPredicate_Validate(t *testing.T) {
	assert.ErrorIs(t, Predicate{Kind: 0x09}.Validate(), ErrUnknownKind)
	assert.ErrorIs(t, PayToPubKey([]byte{0x02}).Validate(), ErrMalformed)
	assert.ErrorIs(t, Predicate{Kind: KindQuote, Data: []byte{1}}.Validate(), ErrMalformed)
}

func TestPredicate_JSON(t *testing.T) {
	p := Batch([]Output{{PuzzleHash: types.Hash{1}, Amount: 9}})
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got Predicate
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p.Hash(), got.Hash())
}
