package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JSONRPCAdapter is a reference Adapter issuing a plain eth_call-style
// JSON-RPC request and treating the result as an already-decoded
// positional tuple. Real deployments wire in a chain SDK's own client
// instead; this exists so pkg/loader/chain is testable without one
// (spec.md §1: chain RPC clients are external collaborators).
type JSONRPCAdapter struct {
	client *http.Client
}

// NewJSONRPCAdapter builds a JSONRPCAdapter bounded by timeout.
func NewJSONRPCAdapter(timeout time.Duration) *JSONRPCAdapter {
	return &JSONRPCAdapter{client: &http.Client{Timeout: timeout}}
}

var _ Adapter = (*JSONRPCAdapter)(nil)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result []interface{} `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call posts a single JSON-RPC request naming method as the call and
// [chainID, address] as its params, and returns the result array
// verbatim as the decoded tuple.
func (a *JSONRPCAdapter) Call(ctx context.Context, endpoint, chainID, address, method string) ([]interface{}, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []interface{}{chainID, address},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to %q: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on a read-only response body

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rr.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rr.Error.Code, rr.Error.Message)
	}

	return rr.Result, nil
}
