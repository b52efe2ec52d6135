// Package jsonrpc implements the JSON-RPC 2.0 client used to call SCIP gateways.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Version is the only protocol version this package speaks.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an outbound JSON-RPC call. Params are sent by name.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC reply envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object returned by the remote side.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IDGenerator hands out monotonically increasing request ids. Safe for concurrent use.
type IDGenerator struct {
	last atomic.Int64
}

// NewIDGenerator creates a generator whose first id is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next id.
func (g *IDGenerator) Next() int64 {
	return g.last.Add(1)
}

// NewRequest builds a request envelope with the given id, method and named params.
func NewRequest(id int64, method string, params map[string]interface{}) (*Request, error) {
	idRaw, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	req := &Request{JSONRPC: Version, ID: idRaw, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params for %s: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}
