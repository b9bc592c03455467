// Package rpcclient provides a JSON-RPC 2.0 client for klingbag ledger
// nodes. A Client satisfies ledger.Ledger and ledger.CoinLister, so the
// unwind scheduler and the funding wallet can run against a remote node.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/rpc"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

var (
	_ ledger.Ledger     = (*Client)(nil)
	_ ledger.CoinLister = (*Client)(nil)
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Unwrap maps server error codes onto ledger errors so callers can use
// errors.Is across the wire.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case rpc.CodeRejected:
		return ledger.ErrRejected
	case rpc.CodeNotFound:
		return ledger.ErrCoinNotFound
	case rpc.CodeExists:
		return ledger.ErrCoinExists
	default:
		return nil
	}
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call bound to ctx.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// CoinState implements ledger.StateReader.
func (c *Client) CoinState(ctx context.Context, id types.Hash) (ledger.CoinState, error) {
	var res rpc.CoinStateResult
	if err := c.CallContext(ctx, rpc.MethodCoinGetState, rpc.CoinIDParam{CoinID: id}, &res); err != nil {
		return ledger.CoinUnknown, err
	}
	return res.State, nil
}

// Record returns the node's record of a coin.
func (c *Client) Record(ctx context.Context, id types.Hash) (*ledger.CoinRecord, error) {
	var rec ledger.CoinRecord
	if err := c.CallContext(ctx, rpc.MethodCoinGetRecord, rpc.CoinIDParam{CoinID: id}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CoinsByPuzzleHash implements ledger.CoinLister.
func (c *Client) CoinsByPuzzleHash(ctx context.Context, ph types.Hash, includeSpent bool) ([]*ledger.CoinRecord, error) {
	var recs []*ledger.CoinRecord
	params := rpc.PuzzleHashParam{PuzzleHash: ph, IncludeSpent: includeSpent}
	if err := c.CallContext(ctx, rpc.MethodCoinListByPuzzle, params, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Submit implements ledger.Ledger.
func (c *Client) Submit(ctx context.Context, b *tx.Bundle) error {
	return c.CallContext(ctx, rpc.MethodBundlePush, rpc.BundleParam{Bundle: b}, nil)
}

// Validate checks b against the node's state without applying it.
func (c *Client) Validate(ctx context.Context, b *tx.Bundle) (*rpc.ValidateResult, error) {
	var res rpc.ValidateResult
	if err := c.CallContext(ctx, rpc.MethodBundleValidate, rpc.BundleParam{Bundle: b}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Mint asks a faucet-enabled node to create coin.
func (c *Client) Mint(ctx context.Context, coin tx.Coin) (*ledger.CoinRecord, error) {
	var rec ledger.CoinRecord
	if err := c.CallContext(ctx, rpc.MethodCoinMint, rpc.MintParam{Coin: coin}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Info returns the node's network and height.
func (c *Client) Info(ctx context.Context) (*rpc.InfoResult, error) {
	var info rpc.InfoResult
	if err := c.CallContext(ctx, rpc.MethodNodeGetInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
