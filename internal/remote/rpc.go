package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CodeNotFound is the error code upstream uses for unknown ids.
const CodeNotFound = -32004

// RPCRequest is a JSON-RPC 2.0 request
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a response
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCClient posts JSON-RPC requests to a single endpoint.
type RPCClient struct {
	url    string
	http   *http.Client
	nextID atomic.Int64
	logger *zap.Logger
}

// NewRPCClient creates a client for url. A zero timeout means no deadline
// beyond the caller's context.
func NewRPCClient(url string, timeout time.Duration, logger *zap.Logger) *RPCClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCClient{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Call invokes method with params and decodes the result into result.
// result may be nil when the caller only needs success.
func (c *RPCClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", method, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, httpResp.StatusCode)
	}

	var resp RPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", method, err)
	}

	c.logger.Debug("rpc call",
		zap.String("method", method),
		zap.Int64("id", req.ID),
		zap.Duration("duration", time.Since(start)))

	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}
