package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001 // Bundle failed ledger validation.
	CodeDisabled       = -32002 // Method turned off by node config.
	CodeExists         = -32003 // Minted coin already exists.
)

// Method names.
const (
	MethodCoinGetState     = "coin_getState"
	MethodCoinGetRecord    = "coin_getRecord"
	MethodCoinListByPuzzle = "coin_listByPuzzleHash"
	MethodCoinMint         = "coin_mint"
	MethodBundlePush       = "bundle_push"
	MethodBundleValidate   = "bundle_validate"
	MethodNodeGetInfo      = "node_getInfo"
)

// Request is a JSON-RPC 2.0 request. Params stay raw so 64-bit amounts
// survive decoding.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// CoinIDParam is used by coin_getState and coin_getRecord.
type CoinIDParam struct {
	CoinID types.Hash `json:"coin_id"`
}

// PuzzleHashParam is used by coin_listByPuzzleHash.
type PuzzleHashParam struct {
	PuzzleHash   types.Hash `json:"puzzle_hash"`
	IncludeSpent bool       `json:"include_spent,omitempty"`
}

// BundleParam is used by bundle_push and bundle_validate.
type BundleParam struct {
	Bundle *tx.Bundle `json:"bundle"`
}

// MintParam is used by coin_mint.
type MintParam struct {
	Coin tx.Coin `json:"coin"`
}

// ── Result types ────────────────────────────────────────────────────────

// CoinStateResult is returned by coin_getState.
type CoinStateResult struct {
	CoinID types.Hash       `json:"coin_id"`
	State  ledger.CoinState `json:"state"`
}

// BundleResult is returned by bundle_push.
type BundleResult struct {
	BundleID types.Hash `json:"bundle_id"`
	Queued   bool       `json:"queued"` // false when applied directly
}

// ValidateResult is returned by bundle_validate.
type ValidateResult struct {
	BundleID  types.Hash `json:"bundle_id"`
	Removals  []tx.Coin  `json:"removals"`
	Additions []tx.Coin  `json:"additions"`
	Fee       uint64     `json:"fee"`
}

// InfoResult is returned by node_getInfo.
type InfoResult struct {
	Network string     `json:"network"`
	Genesis types.Hash `json:"genesis"`
	Height  uint64     `json:"height"`
	Pending int        `json:"pending"`
	Faucet  bool       `json:"faucet"`
}
