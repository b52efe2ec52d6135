// Package transport moves encoded JSON-RPC requests to a gateway endpoint and returns the reply bytes.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alonegg/scip-client/pkg/semver"
)

const logPrefix = "transport:transport"

const (
	contentTypeJSON = "application/json"
	// HeaderProtocolVersion carries the SCIP protocol version the client speaks.
	HeaderProtocolVersion = "X-SCIP-Version"
	maxResponseBytes      = 8 << 20
)

// Transport sends one request body to endpoint and returns the response body.
type Transport interface {
	Send(ctx context.Context, endpoint string, body []byte) ([]byte, error)
}

// Error is an I/O level failure talking to an endpoint.
type Error struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error from %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error from %s: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPTransportParams holds parameters for NewHTTPTransport.
type HTTPTransportParams struct {
	// Client defaults to an http.Client with Timeout.
	Client *http.Client
	// Timeout bounds a single exchange when Client is nil.
	Timeout time.Duration
	// ProtocolVersion is sent as X-SCIP-Version when non-empty.
	ProtocolVersion string
}

// HTTPTransport POSTs JSON bodies over HTTP.
type HTTPTransport struct {
	client          *http.Client
	protocolVersion string
	// protocolMajor is matched against the version a gateway reports back.
	protocolMajor string
}

// NewHTTPTransport creates a new HTTPTransport.
func NewHTTPTransport(params HTTPTransportParams) *HTTPTransport {
	client := params.Client
	if client == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	t := &HTTPTransport{client: client, protocolVersion: params.ProtocolVersion}
	if v, err := semver.ParseProtocolVersion(params.ProtocolVersion); err == nil {
		t.protocolMajor = strconv.FormatUint(v.Major(), 10)
	}
	return t
}

// Send POSTs body to endpoint. The response body is read and closed within the call.
func (t *HTTPTransport) Send(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	if t.protocolVersion != "" {
		req.Header.Set(HeaderProtocolVersion, t.protocolVersion)
	}

	slog.Debug(fmt.Sprintf("%s - POST %s (%d bytes)", logPrefix, endpoint, len(body)))
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if remote := resp.Header.Get(HeaderProtocolVersion); remote != "" && t.protocolMajor != "" && !semver.SatisfiesRange(remote, t.protocolMajor) {
		slog.Warn(fmt.Sprintf("%s - %s speaks protocol %s, client speaks %s", logPrefix, endpoint, remote, t.protocolVersion))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	// JSON-RPC servers may report protocol errors with a non-2xx status and a valid
	// envelope; only fail here when there is nothing to decode.
	if resp.StatusCode >= 300 && !looksLikeJSON(data) {
		return nil, &Error{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response %q", http.StatusText(resp.StatusCode)),
		}
	}
	return data, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// HandlerFunc answers an in-memory exchange.
type HandlerFunc func(ctx context.Context, endpoint string, body []byte) ([]byte, error)

// MemoryTransport routes requests to an in-process handler. Used in tests and
// when the gateway runs in the same process.
type MemoryTransport struct {
	handler HandlerFunc
}

// NewMemoryTransport creates a MemoryTransport backed by handler.
func NewMemoryTransport(handler HandlerFunc) *MemoryTransport {
	return &MemoryTransport{handler: handler}
}

// Send hands body to the handler, wrapping handler failures as transport errors.
func (t *MemoryTransport) Send(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	out, err := t.handler(ctx, endpoint, body)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	return out, nil
}
