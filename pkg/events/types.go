// Package events defines operation lifecycle events and publishers for them.
package events

// Operation names the kind of gateway call an event belongs to.
type Operation string

const (
	OperationInvoke    Operation = "invoke"
	OperationSubscribe Operation = "subscribe"
	OperationQuery     Operation = "query"
)

// Phase is a step in an operation's lifecycle.
type Phase string

const (
	// PhaseSubmitted: the RPC call was accepted by the gateway.
	PhaseSubmitted Phase = "submitted"
	// PhaseEmitted: a subscription delivered one event.
	PhaseEmitted Phase = "emitted"
	// PhaseCompleted: an invocation or query finished successfully.
	PhaseCompleted Phase = "completed"
	// PhaseFailed: the operation ended with an error.
	PhaseFailed Phase = "failed"
	// PhaseClosed: a subscription was torn down without error.
	PhaseClosed Phase = "closed"
)

// OperationEvent is emitted at each lifecycle step of an Invoke, Subscribe or Query.
type OperationEvent struct {
	Operation             Operation `json:"operation"`
	Phase                 Phase     `json:"phase"`
	CorrelationIdentifier string    `json:"correlationIdentifier,omitempty"`
	Endpoint              string    `json:"endpoint"`
	Target                string    `json:"target,omitempty"`
	ErrorKind             string    `json:"errorKind,omitempty"`
	ErrorCode             *int      `json:"errorCode,omitempty"`
	ErrorMessage          string    `json:"errorMessage,omitempty"`
	Timestamp             string    `json:"timestamp"`
}
