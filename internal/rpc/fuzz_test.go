package rpc

import (
	"encoding/json"
	"testing"
)

// FuzzRPCRequestUnmarshal tests that arbitrary JSON does not panic
// when parsed as a JSON-RPC 2.0 request and its params decoded.
func FuzzRPCRequestUnmarshal(f *testing.F) {
	f.Add([]byte(`{"jsonrpc":"2.0","method":"node_getInfo","params":null,"id":1}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"coin_getState","params":{"coin_id":"abc"},"id":"test"}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"bundle_push","params":{"bundle":{"spends":[null]}},"id":2}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"method":"","params":[]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		_, _ = parseBundle(&req)
		var p CoinIDParam
		_ = parseParams(&req, &p)
	})
}
