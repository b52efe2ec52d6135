// Package message defines the SCIP request and response payloads exchanged with a gateway.
package message

// Parameter is a named, typed value passed to or returned from a smart contract.
type Parameter struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// TimeFrame bounds a Query to occurrences between From and To (ISO-8601).
type TimeFrame struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// InvocationRequest describes one smart contract function invocation.
type InvocationRequest struct {
	CorrelationIdentifier string      `json:"correlationIdentifier"`
	FunctionIdentifier    string      `json:"functionIdentifier"`
	Inputs                []Parameter `json:"inputs"`
	Outputs               []Parameter `json:"outputs"`
	RequiredConfidence    float64     `json:"requiredConfidence"`
	// Timeout is in seconds. Zero means no request-level expiry.
	Timeout     int64  `json:"timeout"`
	Signature   string `json:"signature,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// SubscriptionRequest describes a subscription to smart contract events or function invocations.
type SubscriptionRequest struct {
	CorrelationIdentifier string      `json:"correlationIdentifier"`
	EventIdentifier       string      `json:"eventIdentifier"`
	Parameters            []Parameter `json:"parameters"`
	Filter                string      `json:"filter,omitempty"`
	DegreeOfConfidence    float64     `json:"degreeOfConfidence"`
	CallbackURL           string      `json:"callbackUrl,omitempty"`
}

// QueryRequest asks a gateway for past event occurrences.
type QueryRequest struct {
	EventIdentifier string      `json:"eventIdentifier"`
	Parameters      []Parameter `json:"parameters"`
	Filter          string      `json:"filter,omitempty"`
	TimeFrame       *TimeFrame  `json:"timeframe,omitempty"`
}

// FinalResponse is the payload a gateway delivers to the callback URL.
// A non-nil ErrorCode marks a failure.
type FinalResponse struct {
	CorrelationIdentifier string      `json:"correlationIdentifier"`
	Parameters            []Parameter `json:"parameters,omitempty"`
	IsoTimestamp          string      `json:"isoTimestamp,omitempty"`
	TransactionHash       string      `json:"transactionHash,omitempty"`
	ErrorCode             *int        `json:"errorCode,omitempty"`
	ErrorMessage          string      `json:"errorMessage,omitempty"`
}

// IsError reports whether the response carries a gateway error code.
func (r *FinalResponse) IsError() bool {
	return r != nil && r.ErrorCode != nil
}

// InvokeResponse is the successful result of an invocation.
type InvokeResponse struct {
	CorrelationIdentifier string      `json:"correlationIdentifier"`
	Parameters            []Parameter `json:"parameters"`
	TransactionHash       string      `json:"transactionHash,omitempty"`
}

// SubscribeResponse is one event delivered to a subscription.
type SubscribeResponse struct {
	CorrelationIdentifier string      `json:"correlationIdentifier"`
	Parameters            []Parameter `json:"parameters"`
	IsoTimestamp          string      `json:"isoTimestamp,omitempty"`
}

// Occurrence is one past event returned by a Query.
type Occurrence struct {
	Parameters   []Parameter `json:"parameters"`
	IsoTimestamp string      `json:"isoTimestamp"`
}

// QueryResponse is the synchronous result of a Query.
type QueryResponse struct {
	Occurrences []Occurrence `json:"occurrences"`
}
