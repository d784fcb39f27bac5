package evmlogger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// JSONRPCAdapter is a reference LogAdapter issuing eth_blockNumber and
// eth_getLogs against a single endpoint, with Subscribe implemented as
// a poll loop rather than a true push subscription (a JSON-RPC HTTP
// endpoint has no subscription transport; a deployment wanting a real
// push feed wires in a chain SDK's websocket client instead). Mirrors
// pkg/loader/chain's JSONRPCAdapter, the same reference/test role for
// this kind's external collaborator (spec.md §1).
type JSONRPCAdapter struct {
	client       *http.Client
	endpoint     string
	pollInterval time.Duration
}

// NewJSONRPCAdapter builds a JSONRPCAdapter against endpoint, polling
// every pollInterval while a Subscribe is active.
func NewJSONRPCAdapter(endpoint string, timeout, pollInterval time.Duration) *JSONRPCAdapter {
	return &JSONRPCAdapter{
		client:       &http.Client{Timeout: timeout},
		endpoint:     endpoint,
		pollInterval: pollInterval,
	}
}

var _ LogAdapter = (*JSONRPCAdapter)(nil)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *JSONRPCAdapter) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// HeadBlock returns the endpoint's current block height.
func (a *JSONRPCAdapter) HeadBlock(ctx context.Context, _ string) (uint64, error) {
	var height string
	if err := a.call(ctx, "eth_blockNumber", nil, &height); err != nil {
		return 0, err
	}
	return parseHexUint(height)
}

// FetchLogs fetches logs matching address and topic over [fromBlock,
// toBlock]. chainID is accepted for interface symmetry with the
// caller-maintained pool keying but not sent: eth_getLogs is scoped by
// the endpoint it's sent to.
func (a *JSONRPCAdapter) FetchLogs(ctx context.Context, _, address, topic string, fromBlock, toBlock uint64) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   address,
		"topics":    []string{topic},
		"fromBlock": toHex(fromBlock),
		"toBlock":   toHex(toBlock),
	}

	var raw []struct {
		Topics []string `json:"topics"`
		Data   string   `json:"data"`
	}
	if err := a.call(ctx, "eth_getLogs", []interface{}{filter}, &raw); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(raw))
	for _, r := range raw {
		data, err := hex.DecodeString(strings.TrimPrefix(r.Data, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode log data: %w", err)
		}
		logs = append(logs, Log{Topics: r.Topics, Data: data})
	}
	return logs, nil
}

// Subscribe polls FetchLogs every pollInterval starting from the
// current head, pushing each newly observed log to push.
func (a *JSONRPCAdapter) Subscribe(ctx context.Context, chainID, address, topic string, push func(Log)) (func(), error) {
	from, err := a.HeadBlock(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: initial head block: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()

		next := from + 1
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				head, err := a.HeadBlock(pollCtx, chainID)
				if err != nil || head < next {
					continue
				}
				logs, err := a.FetchLogs(pollCtx, chainID, address, topic, next, head)
				if err != nil {
					continue
				}
				for _, lg := range logs {
					push(lg)
				}
				next = head + 1
			}
		}
	}()

	return cancel, nil
}

func toHex(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
