// Package dispatcher decodes inbound gateway callbacks and hands them to the correlation registry.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alonegg/scip-client/pkg/commsutil"
	"github.com/alonegg/scip-client/pkg/message"
)

// Callback methods a gateway may use when it wraps the result in a JSON-RPC envelope.
const (
	MethodReceiveResponse = "ReceiveResponse"
	MethodReceiveError    = "ReceiveError"
)

// ErrMissingCorrelation is returned for a callback without a correlation identifier.
var ErrMissingCorrelation = errors.New("callback has no correlationIdentifier")

// CallbackEnvelope is a JSON-RPC notification carrying a FinalResponse in params.
type CallbackEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Acknowledgement is returned to whoever delivered a callback.
type Acknowledgement struct {
	Ok                    bool         `json:"ok"`
	Dispatched            bool         `json:"dispatched"`
	CorrelationIdentifier string       `json:"correlationIdentifier,omitempty"`
	Error                 *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeCallback accepts either a bare FinalResponse object or a CallbackEnvelope
// whose params is the FinalResponse.
func DecodeCallback(data []byte) (*message.FinalResponse, error) {
	var probe map[string]json.RawMessage
	if err := commsutil.DecodePayload(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid callback payload: %w", err)
	}

	payload := data
	if _, isEnvelope := probe["jsonrpc"]; isEnvelope {
		var env CallbackEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("invalid callback envelope: %w", err)
		}
		if len(bytes.TrimSpace(env.Params)) == 0 {
			return nil, fmt.Errorf("callback envelope %q has no params", env.Method)
		}
		payload = env.Params
	}

	var resp message.FinalResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid final response: %w", err)
	}
	if resp.CorrelationIdentifier == "" {
		return nil, ErrMissingCorrelation
	}
	return &resp, nil
}
