package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// JSONRPC is a JSON-RPC 2.0 client over HTTP.
type JSONRPC struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	nextID     atomic.Uint64
}

type JSONRPCOption func(*JSONRPC)

func WithHTTPClient(c *http.Client) JSONRPCOption {
	return func(j *JSONRPC) {
		if c != nil {
			j.httpClient = c
		}
	}
}

func WithLogger(l *zap.Logger) JSONRPCOption {
	return func(j *JSONRPC) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewJSONRPC posts to endpoint. Deadlines come from the call context, so
// the default HTTP client has no overall timeout.
func NewJSONRPC(endpoint string, opts ...JSONRPCOption) *JSONRPC {
	c := &JSONRPC{
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Call invokes method and decodes the result into out. Failures are
// returned as *fault.Error.
func (c *JSONRPC) Call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	req := &jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fault.InvalidRequest("marshal "+method+" params", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fault.InvalidRequest("build "+method+" request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if fe := fault.FromContext(ctx, method); fe != nil {
			return fe
		}
		return fault.ConnectionFailure(method+": http request", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("close response body", zap.String("method", method), zap.Error(err))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.ConnectionFailure(method+": read response", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fault.ConnectionFailure(fmt.Sprintf("%s: http %d", method, resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return fault.InvalidRequest(fmt.Sprintf("%s: http %d", method, resp.StatusCode), nil)
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fault.Internal(method+": unmarshal response", err)
	}
	if rpcResp.Error != nil {
		c.logger.Debug("jsonrpc error",
			zap.String("method", method),
			zap.Uint64("id", req.ID),
			zap.Int("code", rpcResp.Error.Code),
		)
		return translateRPCError(method, rpcResp.Error)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fault.Internal(method+": unmarshal result", err)
		}
	}
	return nil
}

type rejectionData struct {
	CommitStatus json.RawMessage `json:"commit_status"`
}

func translateRPCError(method string, e *RPCError) *fault.Error {
	if len(e.Data) > 0 {
		var data rejectionData
		if json.Unmarshal(e.Data, &data) == nil && len(data.CommitStatus) > 0 {
			if status, ok := commitStatus(data.CommitStatus); ok {
				return fault.Rejected(status, e.Message)
			}
		}
	}

	switch e.Code {
	case CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams:
		return fault.InvalidRequest(method, e)
	default:
		return fault.Internal(method, e)
	}
}

// commitStatus accepts a numeric result code or a status name.
func commitStatus(raw json.RawMessage) (fault.CommitStatus, bool) {
	var name string
	if json.Unmarshal(raw, &name) == nil {
		if n, err := strconv.ParseInt(name, 10, 32); err == nil {
			return fault.StatusFromCode(int32(n)), true
		}
		return fault.StatusFromName(name), true
	}
	var code int32
	if json.Unmarshal(raw, &code) == nil {
		return fault.StatusFromCode(code), true
	}
	return 0, false
}

// Method binds a JSON-RPC method as a remote call. The request is sent as
// the single positional parameter.
func Method[Req, Resp any](c *JSONRPC, name string) chain.RemoteCall[Req, Resp] {
	return func(ctx context.Context, req Req) *result.Handle[Resp] {
		return result.Go(func() result.Result[Resp] {
			var resp Resp
			err := c.Call(ctx, name, []any{req}, &resp)
			return result.From(resp, err)
		})
	}
}

// NoParams binds a JSON-RPC method that takes no parameters.
func NoParams[Resp any](c *JSONRPC, name string) chain.RemoteCall[struct{}, Resp] {
	return func(ctx context.Context, _ struct{}) *result.Handle[Resp] {
		return result.Go(func() result.Result[Resp] {
			var resp Resp
			err := c.Call(ctx, name, nil, &resp)
			return result.From(resp, err)
		})
	}
}
