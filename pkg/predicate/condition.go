package predicate

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Opcode identifies what a condition asks the ledger to do.
type Opcode uint8

const (
	OpCreateCoin         Opcode = 0x01 // Create a coin (PuzzleHash, Amount, Memo)
	OpReserveFee         Opcode = 0x02 // Require at least Amount of implicit fee in the bundle
	OpCreateAnnouncement Opcode = 0x03 // Announce Memo from the spending coin
	OpAssertAnnouncement Opcode = 0x04 // Require announcement PuzzleHash (an announcement ID) in the bundle
)

// String returns a human-readable name for the opcode.
func (op Opcode) String() string {
	switch op {
	case OpCreateCoin:
		return "CREATE_COIN"
	case OpReserveFee:
		return "RESERVE_FEE"
	case OpCreateAnnouncement:
		return "CREATE_COIN_ANNOUNCEMENT"
	case OpAssertAnnouncement:
		return "ASSERT_COIN_ANNOUNCEMENT"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op >= OpCreateCoin && op <= OpAssertAnnouncement
}

// Condition is one output of running a predicate.
//
// Field use by opcode:
//
//	CREATE_COIN               PuzzleHash, Amount, Memo
//	RESERVE_FEE               Amount
//	CREATE_COIN_ANNOUNCEMENT  Memo (message)
//	ASSERT_COIN_ANNOUNCEMENT  PuzzleHash (announcement ID)
type Condition struct {
	Op         Opcode
	PuzzleHash types.Hash
	Amount     uint64
	Memo       []byte
}

// conditionSize is the fixed part of an encoded condition:
// op(1) | hash(32) | amount(8) | memo_len(4).
const conditionSize = 1 + types.HashSize + 8 + 4

// MaxMemoSize bounds memo and announcement message length.
const MaxMemoSize = 1024

// CreateCoin returns a CREATE_COIN condition.
func CreateCoin(puzzleHash types.Hash, amount uint64, memo []byte) Condition {
	return Condition{Op: OpCreateCoin, PuzzleHash: puzzleHash, Amount: amount, Memo: memo}
}

// ReserveFee returns a RESERVE_FEE condition.
func ReserveFee(amount uint64) Condition {
	return Condition{Op: OpReserveFee, Amount: amount}
}

// CreateAnnouncement returns a CREATE_COIN_ANNOUNCEMENT condition.
func CreateAnnouncement(message []byte) Condition {
	return Condition{Op: OpCreateAnnouncement, Memo: message}
}

// AssertAnnouncement returns an ASSERT_COIN_ANNOUNCEMENT condition for an
// announcement ID computed with AnnouncementID.
func AssertAnnouncement(id types.Hash) Condition {
	return Condition{Op: OpAssertAnnouncement, PuzzleHash: id}
}

// AnnouncementID is the identity of message announced by coinID.
func AnnouncementID(coinID types.Hash, message []byte) types.Hash {
	return crypto.HashParts(coinID[:], message)
}

// EncodeConditions returns the canonical encoding of conds:
// count(4) | [op(1) | hash(32) | amount(8) | memo_len(4) | memo]...
func EncodeConditions(conds []Condition) []byte {
	size := 4
	for _, c := range conds {
		size += conditionSize + len(c.Memo)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(conds)))
	for _, c := range conds {
		buf = append(buf, byte(c.Op))
		buf = append(buf, c.PuzzleHash[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, c.Amount)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Memo)))
		buf = append(buf, c.Memo...)
	}
	return buf
}

// DecodeConditions parses the output of EncodeConditions. The whole input
// must be consumed.
func DecodeConditions(data []byte) ([]Condition, error) {
	conds, rest, err := decodeConditions(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return conds, nil
}

func decodeConditions(data []byte) ([]Condition, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("%w: missing condition count", ErrMalformed)
	}
	count := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint64(count)*conditionSize > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: %d conditions in %d bytes", ErrMalformed, count, len(data))
	}

	conds := make([]Condition, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < conditionSize {
			return nil, nil, fmt.Errorf("%w: condition %d truncated", ErrMalformed, i)
		}
		var c Condition
		c.Op = Opcode(data[0])
		copy(c.PuzzleHash[:], data[1:1+types.HashSize])
		c.Amount = binary.LittleEndian.Uint64(data[1+types.HashSize:])
		memoLen := binary.LittleEndian.Uint32(data[1+types.HashSize+8:])
		data = data[conditionSize:]
		if memoLen > MaxMemoSize || int(memoLen) > len(data) {
			return nil, nil, fmt.Errorf("%w: condition %d memo length %d", ErrMalformed, i, memoLen)
		}
		if memoLen > 0 {
			c.Memo = append([]byte(nil), data[:memoLen]...)
		}
		data = data[memoLen:]
		if !c.Op.Valid() {
			return nil, nil, fmt.Errorf("%w: condition %d opcode 0x%02x", ErrMalformed, i, byte(c.Op))
		}
		conds = append(conds, c)
	}
	return conds, data, nil
}

// conditionJSON is the JSON representation of a Condition.
type conditionJSON struct {
	Op         string      `json:"op"`
	PuzzleHash *types.Hash `json:"puzzle_hash,omitempty"`
	Amount     uint64      `json:"amount,omitempty"`
	Memo       string      `json:"memo,omitempty"`
}

// MarshalJSON renders the condition for CLI output.
func (c Condition) MarshalJSON() ([]byte, error) {
	j := conditionJSON{Op: c.Op.String(), Amount: c.Amount}
	if !c.PuzzleHash.IsZero() {
		ph := c.PuzzleHash
		j.PuzzleHash = &ph
	}
	if len(c.Memo) > 0 {
		j.Memo = hex.EncodeToString(c.Memo)
	}
	return json.Marshal(j)
}
