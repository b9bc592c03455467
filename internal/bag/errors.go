package bag

import (
	"errors"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
)

// Bag errors.
var (
	// ErrAlreadySpentAncestor means an ancestor deeper than the target's own
	// parent was found spent: someone else unwound the tree past this point.
	// It is reported in Plan.Warning, never returned.
	ErrAlreadySpentAncestor = errors.New("ancestor already spent")

	// ErrMissingFunding means the funder cannot cover fee plus shortfall.
	ErrMissingFunding = errors.New("missing funding for fee and shortfall")

	// ErrSubmissionRejected is the ledger's rejection of a spend bundle.
	ErrSubmissionRejected = ledger.ErrRejected

	// ErrInconsistentTree means a parent lookup invariant was violated.
	ErrInconsistentTree = errors.New("inconsistent commitment tree")

	ErrUnknownPuzzleHash = errors.New("puzzle hash not in tree")
	ErrInvalidWidth      = errors.New("leaf width must be at least 1")
	ErrNoTargets         = errors.New("no targets")
	ErrAmountOverflow    = errors.New("batch amount overflows")
	ErrConfirmTimeout    = errors.New("timed out waiting for coin state")
)
