package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alonegg/scip-client/pkg/transport"
)

const logPrefix = "jsonrpc:client"

// Client issues JSON-RPC calls over a Transport.
type Client struct {
	transport transport.Transport
	ids       *IDGenerator
}

// NewClient creates a Client. A nil ids gets a fresh generator.
func NewClient(t transport.Transport, ids *IDGenerator) *Client {
	if ids == nil {
		ids = NewIDGenerator()
	}
	return &Client{transport: t, ids: ids}
}

// Call sends method with named params to endpoint and decodes the result into out
// (out may be nil to discard it). A JSON-RPC error reply is returned as *Error;
// transport failures are returned as *transport.Error; anything else is wrapped.
func (c *Client) Call(ctx context.Context, endpoint, method string, params map[string]interface{}, out interface{}) error {
	req, err := NewRequest(c.ids.Next(), method, params)
	if err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s request: %w", logPrefix, method, err)
	}

	slog.Debug(fmt.Sprintf("%s - calling %s at %s id=%s", logPrefix, method, endpoint, string(req.ID)))
	raw, err := c.transport.Send(ctx, endpoint, body)
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s - failed to decode %s response: %w", logPrefix, method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.JSONRPC != Version {
		return fmt.Errorf("%s - unexpected jsonrpc version %q in %s response", logPrefix, resp.JSONRPC, method)
	}
	if len(resp.ID) > 0 && !bytes.Equal(resp.ID, req.ID) {
		return fmt.Errorf("%s - response id %s does not match request id %s", logPrefix, string(resp.ID), string(req.ID))
	}

	if out == nil || len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s - failed to decode %s result: %w", logPrefix, method, err)
	}
	return nil
}
