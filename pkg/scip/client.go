// Package scip issues Invoke, Subscribe and Query calls to SCIP gateways and
// reconciles their asynchronous callbacks with the pending caller.
package scip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alonegg/scip-client/pkg/correlation"
	"github.com/alonegg/scip-client/pkg/events"
	"github.com/alonegg/scip-client/pkg/jsonrpc"
	"github.com/alonegg/scip-client/pkg/message"
	"github.com/alonegg/scip-client/pkg/metrics"
	"github.com/alonegg/scip-client/pkg/transport"
)

const logPrefix = "scip:client"

// JSON-RPC method names understood by SCIP gateways.
const (
	MethodInvoke    = "Invoke"
	MethodSubscribe = "Subscribe"
	MethodQuery     = "Query"
)

// NewClientParams holds parameters for NewClient.
type NewClientParams struct {
	Registry  *correlation.Registry
	Transport transport.Transport
	// IDs defaults to a fresh generator.
	IDs *jsonrpc.IDGenerator
	// Publisher defaults to a NoOpPublisher.
	Publisher events.EventPublisher
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// CallbackURL is sent when a request does not name its own.
	CallbackURL string
	// DefaultInvokeTimeout applies to invocations whose Timeout is zero. Zero disables expiry.
	DefaultInvokeTimeout time.Duration
	// StreamDrainTimeout bounds how long an ended stream holds unread events.
	// Zero means DefaultStreamDrainTimeout.
	StreamDrainTimeout time.Duration
}

// Client is the invocation executor. Safe for concurrent use.
type Client struct {
	registry       *correlation.Registry
	rpc            *jsonrpc.Client
	publisher      events.EventPublisher
	metrics        *metrics.Metrics
	callbackURL    string
	defaultTimeout time.Duration
	drainTimeout   time.Duration

	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	nextOp  uint64
	pending map[uint64]func(error)
}

// NewClient creates a new Client.
func NewClient(params NewClientParams) *Client {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	reg := params.Registry
	if reg == nil {
		reg = correlation.NewRegistry()
	}
	return &Client{
		registry:       reg,
		rpc:            jsonrpc.NewClient(params.Transport, params.IDs),
		publisher:      pub,
		metrics:        params.Metrics,
		callbackURL:    params.CallbackURL,
		defaultTimeout: params.DefaultInvokeTimeout,
		drainTimeout:   params.StreamDrainTimeout,
		pending:        make(map[uint64]func(error)),
	}
}

// Registry returns the correlation registry the client registers handlers in.
func (c *Client) Registry() *correlation.Registry {
	return c.registry
}

// Invoke calls a smart contract function. The returned future settles when the
// gateway's callback arrives, the submission fails, the request times out, ctx is
// done, or the future is canceled. The correlation entry is removed in every case.
func (c *Client) Invoke(ctx context.Context, endpoint string, req message.InvocationRequest) *Future[*message.InvokeResponse] {
	const op = "invoke"
	f := newFuture[*message.InvokeResponse](op)
	id := req.CorrelationIdentifier

	timeout, err := invokeTimeout(req.Timeout, c.defaultTimeout)
	if err != nil {
		scipErr := translateError(op, err)
		f.fail(scipErr)
		c.settled(events.OperationInvoke, id, endpoint, req.FunctionIdentifier, scipErr)
		return f
	}

	opCtx, opCancel := context.WithCancel(ctx)
	key, ok := c.track(func(err error) { f.fail(err) })
	if !ok {
		opCancel()
		f.fail(canceledError(op, errClientClosed))
		return f
	}

	err = c.registry.Register(id, func(resp *message.FinalResponse) {
		if resp.IsError() {
			f.fail(gatewayError(resp))
			return
		}
		f.complete(&message.InvokeResponse{
			CorrelationIdentifier: id,
			Parameters:            resp.Parameters,
			TransactionHash:       resp.TransactionHash,
		})
	})
	if err != nil {
		c.untrack(key)
		opCancel()
		scipErr := translateError(op, err)
		f.fail(scipErr)
		c.settled(events.OperationInvoke, id, endpoint, req.FunctionIdentifier, scipErr)
		return f
	}

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() { f.fail(timeoutError(op, timeout)) })
	}
	stop := context.AfterFunc(opCtx, func() { f.fail(contextError(op, opCtx)) })

	f.whenSettled(func(resp *message.InvokeResponse, err error) {
		c.registry.Deregister(id)
		if timer != nil {
			timer.Stop()
		}
		stop()
		opCancel()
		c.untrack(key)
		c.settled(events.OperationInvoke, id, endpoint, req.FunctionIdentifier, err)
	})

	params := map[string]interface{}{
		"correlationIdentifier": id,
		"inputs":                nonNil(req.Inputs),
		"outputs":               nonNil(req.Outputs),
		"callbackUrl":           c.callbackFor(req.CallbackURL),
		"signature":             req.Signature,
		"timeout":               req.Timeout,
		"doc":                   req.RequiredConfidence,
		"functionIdentifier":    req.FunctionIdentifier,
	}
	c.goWorker(func() {
		slog.Info(fmt.Sprintf("%s - Sending %s request to %s for %s (correlationId=%s)", logPrefix, MethodInvoke, endpoint, req.FunctionIdentifier, id))
		if err := c.call(opCtx, endpoint, MethodInvoke, params, nil); err != nil {
			if f.fail(translateError(op, err)) {
				slog.Warn(fmt.Sprintf("%s - %s submission failed (correlationId=%s): %v", logPrefix, MethodInvoke, id, err))
			}
			return
		}
		c.publish(events.OperationInvoke, events.PhaseSubmitted, id, endpoint, req.FunctionIdentifier, nil)
	})
	return f
}

// Subscribe subscribes to events of a smart contract. Each success callback for the
// correlation identifier becomes one event on the stream; an error callback ends it.
// The correlation entry stays registered until the stream is finalized.
func (c *Client) Subscribe(ctx context.Context, endpoint string, req message.SubscriptionRequest) *Stream {
	const op = "subscribe"
	id := req.CorrelationIdentifier
	s := newStream(id, c.drainTimeout)

	opCtx, opCancel := context.WithCancel(ctx)
	key, ok := c.track(func(err error) { s.finish(err, true) })
	if !ok {
		opCancel()
		s.finish(canceledError(op, errClientClosed), true)
		return s
	}

	err := c.registry.Register(id, func(resp *message.FinalResponse) {
		if resp.IsError() {
			s.finish(gatewayError(resp), false)
			return
		}
		if s.emit(&message.SubscribeResponse{
			CorrelationIdentifier: id,
			Parameters:            resp.Parameters,
			IsoTimestamp:          resp.IsoTimestamp,
		}) {
			c.publish(events.OperationSubscribe, events.PhaseEmitted, id, endpoint, req.EventIdentifier, nil)
		}
	})
	if err != nil {
		c.untrack(key)
		opCancel()
		scipErr := translateError(op, err)
		s.finish(scipErr, false)
		c.settled(events.OperationSubscribe, id, endpoint, req.EventIdentifier, scipErr)
		return s
	}

	stop := context.AfterFunc(opCtx, func() { s.finish(contextError(op, opCtx), true) })
	s.whenFinalized(func(err error) {
		c.registry.Deregister(id)
		stop()
		opCancel()
		c.untrack(key)
		if err == nil {
			c.metrics.ObserveOutcome(string(events.OperationSubscribe), "closed")
			c.publish(events.OperationSubscribe, events.PhaseClosed, id, endpoint, req.EventIdentifier, nil)
			return
		}
		c.settled(events.OperationSubscribe, id, endpoint, req.EventIdentifier, err)
	})

	params := map[string]interface{}{
		"correlationIdentifier": id,
		"parameters":            nonNil(req.Parameters),
		"callbackUrl":           c.callbackFor(req.CallbackURL),
		"eventIdentifier":       req.EventIdentifier,
		"filter":                req.Filter,
		"doc":                   req.DegreeOfConfidence,
	}
	c.goWorker(func() {
		slog.Info(fmt.Sprintf("%s - Sending %s request to %s for %s (correlationId=%s)", logPrefix, MethodSubscribe, endpoint, req.EventIdentifier, id))
		if err := c.call(opCtx, endpoint, MethodSubscribe, params, nil); err != nil {
			if s.finish(translateError(op, err), false) {
				slog.Warn(fmt.Sprintf("%s - %s submission failed (correlationId=%s): %v", logPrefix, MethodSubscribe, id, err))
			}
			return
		}
		c.publish(events.OperationSubscribe, events.PhaseSubmitted, id, endpoint, req.EventIdentifier, nil)
	})
	return s
}

// Query asks a gateway for past event occurrences. The RPC reply is the answer;
// no correlation entry is created.
func (c *Client) Query(ctx context.Context, endpoint string, req message.QueryRequest) *Future[*message.QueryResponse] {
	const op = "query"
	f := newFuture[*message.QueryResponse](op)

	opCtx, opCancel := context.WithCancel(ctx)
	key, ok := c.track(func(err error) { f.fail(err) })
	if !ok {
		opCancel()
		f.fail(canceledError(op, errClientClosed))
		return f
	}
	stop := context.AfterFunc(opCtx, func() { f.fail(contextError(op, opCtx)) })
	f.whenSettled(func(_ *message.QueryResponse, err error) {
		stop()
		opCancel()
		c.untrack(key)
		c.settled(events.OperationQuery, "", endpoint, req.EventIdentifier, err)
	})

	params := map[string]interface{}{
		"parameters":      nonNil(req.Parameters),
		"eventIdentifier": req.EventIdentifier,
		"filter":          req.Filter,
		"timeframe":       req.TimeFrame,
	}
	c.goWorker(func() {
		slog.Info(fmt.Sprintf("%s - Sending %s request to %s for %s", logPrefix, MethodQuery, endpoint, req.EventIdentifier))
		var out message.QueryResponse
		if err := c.call(opCtx, endpoint, MethodQuery, params, &out); err != nil {
			f.fail(translateError(op, err))
			return
		}
		slog.Info(fmt.Sprintf("%s - Received %s response from %s with %d occurrence(s)", logPrefix, MethodQuery, endpoint, len(out.Occurrences)))
		f.complete(&out)
	})
	return f
}

// Close cancels every operation still pending on this client and waits for
// in-flight workers to return. Calls made after Close fail with KindCanceled.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.closed = true
	aborts := make([]func(error), 0, len(c.pending))
	for _, abort := range c.pending {
		aborts = append(aborts, abort)
	}
	c.mu.Unlock()

	if len(aborts) > 0 {
		slog.Info(fmt.Sprintf("%s - Closing with %d pending operation(s)", logPrefix, len(aborts)))
	}
	for _, abort := range aborts {
		abort(canceledError("complete operation", errClientClosed))
	}
	c.wg.Wait()
}

// maxTimeoutSeconds is the largest request timeout a time.Duration can hold.
const maxTimeoutSeconds = int64(math.MaxInt64 / int64(time.Second))

var errInvalidTimeout = errors.New("timeout out of range")

// invokeTimeout converts a request timeout in seconds. Zero selects fallback.
func invokeTimeout(seconds int64, fallback time.Duration) (time.Duration, error) {
	if seconds < 0 || seconds > maxTimeoutSeconds {
		return 0, fmt.Errorf("%w: %d seconds", errInvalidTimeout, seconds)
	}
	if seconds == 0 {
		return fallback, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

func (c *Client) call(ctx context.Context, endpoint, method string, params map[string]interface{}, out interface{}) error {
	start := time.Now()
	err := c.rpc.Call(ctx, endpoint, method, params, out)
	c.metrics.ObserveCall(method, time.Since(start).Seconds(), err)
	return err
}

func (c *Client) callbackFor(url string) string {
	if url != "" {
		return url
	}
	return c.callbackURL
}

func (c *Client) track(abort func(error)) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.nextOp++
	c.pending[c.nextOp] = abort
	return c.nextOp, true
}

func (c *Client) untrack(key uint64) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

// goWorker runs fn on a tracked goroutine. Once the client is closed fn runs inline.
func (c *Client) goWorker(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Client) settled(op events.Operation, id, endpoint, target string, err error) {
	if err == nil {
		c.metrics.ObserveOutcome(string(op), "success")
		c.publish(op, events.PhaseCompleted, id, endpoint, target, nil)
		slog.Info(fmt.Sprintf("%s - %s completed (correlationId=%s)", logPrefix, op, id))
		return
	}
	kind := KindOf(err)
	if kind == "" {
		kind = KindInvocation
	}
	c.metrics.ObserveOutcome(string(op), string(kind))
	c.publish(op, events.PhaseFailed, id, endpoint, target, err)
	slog.Info(fmt.Sprintf("%s - %s failed (correlationId=%s): %v", logPrefix, op, id, err))
}

func (c *Client) publish(op events.Operation, phase events.Phase, id, endpoint, target string, err error) {
	event := &events.OperationEvent{
		Operation:             op,
		Phase:                 phase,
		CorrelationIdentifier: id,
		Endpoint:              endpoint,
		Target:                target,
		Timestamp:             time.Now().UTC().Format(time.RFC3339Nano),
	}
	var scipErr *Error
	if errors.As(err, &scipErr) {
		code := scipErr.Code
		event.ErrorKind = string(scipErr.Kind)
		event.ErrorCode = &code
		event.ErrorMessage = scipErr.Message
	} else if err != nil {
		event.ErrorKind = string(KindInvocation)
		event.ErrorMessage = err.Error()
	}

	c.goWorker(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.publisher.PublishOperation(ctx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to publish %s.%s event: %v", logPrefix, op, phase, err))
		}
	})
}

func nonNil(params []message.Parameter) []message.Parameter {
	if params == nil {
		return []message.Parameter{}
	}
	return params
}
