package scip

import (
	"context"
	"errors"
	"fmt"

	"github.com/alonegg/scip-client/pkg/correlation"
	"github.com/alonegg/scip-client/pkg/jsonrpc"
	"github.com/alonegg/scip-client/pkg/message"
	"github.com/alonegg/scip-client/pkg/transport"
)

// Kind classifies an Error by where the failure came from.
type Kind string

const (
	// KindProtocol: the gateway answered the RPC call with a JSON-RPC error object.
	KindProtocol Kind = "protocol"
	// KindInvocation: the call could not be built, sent or decoded.
	KindInvocation Kind = "invocation"
	// KindTransport: the HTTP exchange with the gateway failed.
	KindTransport Kind = "transport"
	// KindGateway: the gateway reported a failure through the callback.
	KindGateway Kind = "gateway"
	// KindTimeout: no callback arrived before the request expired.
	KindTimeout Kind = "timeout"
	// KindCanceled: the caller, its context or Client.Close ended the operation.
	KindCanceled Kind = "canceled"
	// KindDuplicate: another operation is already pending under the same correlation identifier.
	KindDuplicate Kind = "duplicate"
)

// Error codes for failures that do not carry a gateway code.
const (
	CodeUnknown              = 0
	CodeInvocationError      = -32000
	CodeTimeout              = -32002
	CodeCanceled             = -32003
	CodeDuplicateCorrelation = -32004
)

// Error is the single error type callers of Client observe.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scip %s error %d: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func unableTo(op string, cause error) string {
	return fmt.Sprintf("Unable to %s. Reason: %v", op, cause)
}

// translateError converts a failure of the synchronous RPC call into an *Error.
func translateError(op string, err error) *Error {
	var scipErr *Error
	if errors.As(err, &scipErr) {
		return scipErr
	}

	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return &Error{Kind: KindProtocol, Code: rpcErr.Code, Message: rpcErr.Message, Err: err}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Code: CodeTimeout, Message: unableTo(op, err), Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Code: CodeCanceled, Message: unableTo(op, err), Err: err}
	}

	var tErr *transport.Error
	if errors.As(err, &tErr) {
		return &Error{Kind: KindTransport, Code: CodeInvocationError, Message: unableTo(op, err), Err: err}
	}

	if errors.Is(err, correlation.ErrDuplicate) {
		return &Error{Kind: KindDuplicate, Code: CodeDuplicateCorrelation, Message: unableTo(op, err), Err: err}
	}

	return &Error{Kind: KindInvocation, Code: CodeInvocationError, Message: unableTo(op, err), Err: err}
}

// gatewayError converts an error callback into an *Error carrying the gateway's code and message.
func gatewayError(resp *message.FinalResponse) *Error {
	code := CodeUnknown
	if resp.ErrorCode != nil {
		code = *resp.ErrorCode
	}
	return &Error{Kind: KindGateway, Code: code, Message: resp.ErrorMessage}
}

func timeoutError(op string, after fmt.Stringer) *Error {
	return &Error{
		Kind:    KindTimeout,
		Code:    CodeTimeout,
		Message: unableTo(op, fmt.Errorf("no callback received within %s", after)),
	}
}

func canceledError(op string, cause error) *Error {
	return &Error{Kind: KindCanceled, Code: CodeCanceled, Message: unableTo(op, cause), Err: cause}
}

// errClientClosed is the cause reported to operations aborted by Client.Close.
var errClientClosed = errors.New("client closed")

// errCanceledByCaller is the cause reported by Future.Cancel.
var errCanceledByCaller = errors.New("canceled by caller")

func contextError(op string, ctx context.Context) *Error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Code: CodeTimeout, Message: unableTo(op, err), Err: err}
	}
	return canceledError(op, err)
}
