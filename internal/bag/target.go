package bag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Target is a leaf destination: a puzzle hash and an amount.
type Target struct {
	PuzzleHash types.Hash `json:"puzzle_hash"`
	Amount     uint64     `json:"amount"`
}

// Output returns the target as a batch predicate output.
func (t Target) Output() predicate.Output {
	return predicate.Output{PuzzleHash: t.PuzzleHash, Amount: t.Amount}
}

// ReadTargets decodes a JSON array of targets.
func ReadTargets(r io.Reader) ([]Target, error) {
	var targets []Target
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	for i, t := range targets {
		if t.PuzzleHash.IsZero() {
			return nil, fmt.Errorf("target %d: missing puzzle hash", i)
		}
	}
	return targets, nil
}

// LoadTargets reads a JSON target file.
func LoadTargets(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTargets(f)
}

// WriteTargets encodes targets as an indented JSON array.
func WriteTargets(w io.Writer, targets []Target) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(targets)
}
