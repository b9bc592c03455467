package rpc

import (
	"context"
	"errors"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
)

func (s *Server) handleCoinGetState(ctx context.Context, req *Request) (interface{}, *Error) {
	var p CoinIDParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	state, err := s.store.CoinState(ctx, p.CoinID)
	if err != nil {
		return nil, internalError(err)
	}
	return &CoinStateResult{CoinID: p.CoinID, State: state}, nil
}

func (s *Server) handleCoinGetRecord(ctx context.Context, req *Request) (interface{}, *Error) {
	var p CoinIDParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	rec, err := s.store.Record(ctx, p.CoinID)
	if errors.Is(err, ledger.ErrCoinNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	if err != nil {
		return nil, internalError(err)
	}
	return rec, nil
}

func (s *Server) handleCoinListByPuzzleHash(ctx context.Context, req *Request) (interface{}, *Error) {
	var p PuzzleHashParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	recs, err := s.store.CoinsByPuzzleHash(ctx, p.PuzzleHash, p.IncludeSpent)
	if err != nil {
		return nil, internalError(err)
	}
	if recs == nil {
		recs = []*ledger.CoinRecord{}
	}
	return recs, nil
}

func (s *Server) handleCoinMint(ctx context.Context, req *Request) (interface{}, *Error) {
	if !s.faucet {
		return nil, &Error{Code: CodeDisabled, Message: "faucet is disabled on this node"}
	}
	var p MintParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	rec, err := s.store.Mint(ctx, p.Coin)
	if errors.Is(err, ledger.ErrCoinExists) {
		return nil, &Error{Code: CodeExists, Message: err.Error()}
	}
	if err != nil {
		return nil, internalError(err)
	}
	return rec, nil
}

func (s *Server) handleBundlePush(ctx context.Context, req *Request) (interface{}, *Error) {
	b, rpcErr := parseBundle(req)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var err error
	if s.pool != nil {
		err = s.pool.Submit(ctx, b)
	} else {
		err = s.store.Submit(ctx, b)
	}
	if err != nil {
		return nil, submitError(err)
	}

	s.logger.Debug().Str("bundle", b.ID().Short()).Int("spends", len(b.Spends)).Msg("Bundle pushed")
	return &BundleResult{BundleID: b.ID(), Queued: s.pool != nil}, nil
}

func (s *Server) handleBundleValidate(ctx context.Context, req *Request) (interface{}, *Error) {
	b, rpcErr := parseBundle(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	eff, err := s.store.Check(ctx, b)
	if err != nil {
		return nil, submitError(err)
	}
	return &ValidateResult{
		BundleID:  b.ID(),
		Removals:  nonNil(eff.Removals),
		Additions: nonNil(eff.Additions),
		Fee:       eff.Fee,
	}, nil
}

func (s *Server) handleNodeGetInfo(_ context.Context, _ *Request) (interface{}, *Error) {
	info := &InfoResult{
		Network: s.network,
		Genesis: s.genesis,
		Height:  s.store.Height(),
		Faucet:  s.faucet,
	}
	if s.pool != nil {
		info.Pending = s.pool.Pending()
	}
	return info, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

func parseBundle(req *Request) (*tx.Bundle, *Error) {
	var p BundleParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	if p.Bundle == nil || len(p.Bundle.Spends) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "bundle with at least one spend required"}
	}
	for _, sp := range p.Bundle.Spends {
		if sp == nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "null spend in bundle"}
		}
	}
	return p.Bundle, nil
}

func submitError(err error) *Error {
	if errors.Is(err, ledger.ErrRejected) {
		return &Error{Code: CodeRejected, Message: err.Error()}
	}
	return internalError(err)
}

func internalError(err error) *Error {
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func nonNil(coins []tx.Coin) []tx.Coin {
	if coins == nil {
		return []tx.Coin{}
	}
	return coins
}
