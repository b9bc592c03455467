// Package predicate implements the small spending-rule language used by bag
// coins. A predicate is content addressed: its hash commits to the rule
// without revealing it until spend time. Running a predicate against a coin
// and a solution yields the conditions the ledger must enforce.
package predicate

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Predicate errors.
var (
	ErrMalformed       = errors.New("malformed predicate data")
	ErrUnknownKind     = errors.New("unknown predicate kind")
	ErrBadSignature    = errors.New("invalid solution signature")
	ErrUnexpectedInput = errors.New("predicate takes no solution")
)

// Kind identifies how a predicate is evaluated.
type Kind uint8

const (
	// KindQuote returns a fixed list of conditions and accepts no solution.
	// Every internal commitment-tree node is a KindQuote predicate.
	KindQuote Kind = 0x01

	// KindPayToPubKey returns the conditions carried in the solution once
	// they are signed by the committed public key.
	KindPayToPubKey Kind = 0x02
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindQuote:
		return "quote"
	case KindPayToPubKey:
		return "pay_to_pubkey"
	default:
		return "unknown"
	}
}

// Predicate is a spending rule: a kind plus its committed data.
type Predicate struct {
	Kind Kind
	Data []byte
}

// Output is a coin a batch predicate creates.
type Output struct {
	PuzzleHash types.Hash
	Amount     uint64
}

// BatchAnnouncement is the message every batch predicate announces. Fee
// spends assert it so they cannot be detached from the batch spend.
var BatchAnnouncement = []byte("$")

// Quote returns a predicate that unconditionally yields conds.
func Quote(conds []Condition) Predicate {
	return Predicate{Kind: KindQuote, Data: EncodeConditions(conds)}
}

// Batch returns the predicate of a commitment-tree node: announce
// BatchAnnouncement, then create one coin per output in order. Each created
// coin carries its own puzzle hash as memo.
func Batch(outputs []Output) Predicate {
	conds := make([]Condition, 0, len(outputs)+1)
	conds = append(conds, CreateAnnouncement(BatchAnnouncement))
	for _, o := range outputs {
		conds = append(conds, CreateCoin(o.PuzzleHash, o.Amount, o.PuzzleHash.Bytes()))
	}
	return Quote(conds)
}

// PayToPubKey returns a predicate spendable by whoever holds the private key
// for pubKey. Funding coins and plain leaf targets use it.
func PayToPubKey(pubKey []byte) Predicate {
	data := make([]byte, len(pubKey))
	copy(data, pubKey)
	return Predicate{Kind: KindPayToPubKey, Data: data}
}

// Bytes returns the canonical encoding: kind(1) | data_len(4) | data.
func (p Predicate) Bytes() []byte {
	buf := make([]byte, 0, 1+4+len(p.Data))
	buf = append(buf, byte(p.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Data)))
	buf = append(buf, p.Data...)
	return buf
}

// Hash returns the predicate's content hash (its puzzle hash).
func (p Predicate) Hash() types.Hash {
	return crypto.Hash(p.Bytes())
}

// Validate checks that the committed data is well formed for the kind.
func (p Predicate) Validate() error {
	switch p.Kind {
	case KindQuote:
		_, err := DecodeConditions(p.Data)
		return err
	case KindPayToPubKey:
		if err := crypto.ValidatePublicKey(p.Data); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnknownKind, byte(p.Kind))
	}
}

// Run evaluates the predicate for the coin coinID with the given solution.
func (p Predicate) Run(coinID types.Hash, solution []byte) ([]Condition, error) {
	switch p.Kind {
	case KindQuote:
		if len(solution) != 0 {
			return nil, ErrUnexpectedInput
		}
		return DecodeConditions(p.Data)
	case KindPayToPubKey:
		return p.runPayToPubKey(coinID, solution)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, byte(p.Kind))
	}
}

// SigningDigest is the message a pay-to-pubkey solution signs: the coin
// being spent and the exact encoded conditions it asks for.
func SigningDigest(coinID types.Hash, encodedConds []byte) types.Hash {
	return crypto.HashParts(coinID[:], encodedConds)
}

// Sign builds a pay-to-pubkey solution for coinID yielding conds.
// Layout: conditions | signature(64).
func Sign(signer crypto.Signer, coinID types.Hash, conds []Condition) ([]byte, error) {
	encoded := EncodeConditions(conds)
	sig, err := signer.Sign(SigningDigest(coinID, encoded))
	if err != nil {
		return nil, fmt.Errorf("sign solution: %w", err)
	}
	return append(encoded, sig...), nil
}

func (p Predicate) runPayToPubKey(coinID types.Hash, solution []byte) ([]Condition, error) {
	conds, rest, err := decodeConditions(solution)
	if err != nil {
		return nil, err
	}
	if len(rest) != crypto.SignatureSize {
		return nil, fmt.Errorf("%w: signature length %d", ErrMalformed, len(rest))
	}
	encoded := solution[:len(solution)-len(rest)]
	if !crypto.VerifySignature(SigningDigest(coinID, encoded), rest, p.Data) {
		return nil, ErrBadSignature
	}
	return conds, nil
}

// predicateJSON is the JSON representation of a Predicate with hex data.
type predicateJSON struct {
	Kind Kind   `json:"kind"`
	Data string `json:"data"`
}

// MarshalJSON encodes the predicate with hex-encoded data.
func (p Predicate) MarshalJSON() ([]byte, error) {
	return json.Marshal(predicateJSON{Kind: p.Kind, Data: hex.EncodeToString(p.Data)})
}

// UnmarshalJSON decodes a predicate with hex-encoded data.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var j predicateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	b, err := hex.DecodeString(j.Data)
	if err != nil {
		return fmt.Errorf("predicate data: %w", err)
	}
	p.Kind = j.Kind
	p.Data = b
	return nil
}
