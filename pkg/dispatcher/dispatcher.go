package dispatcher

import (
	"fmt"
	"log/slog"

	"github.com/alonegg/scip-client/pkg/correlation"
	"github.com/alonegg/scip-client/pkg/message"
	"github.com/alonegg/scip-client/pkg/metrics"
)

const logPrefix = "dispatcher:dispatch"

// Ingress names used for logging and metrics.
const (
	IngressHTTP  = "http"
	IngressComms = "comms"
)

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry *correlation.Registry
	Metrics  *metrics.Metrics
}

// Dispatcher is the single ingress into the correlation registry.
type Dispatcher struct {
	registry *correlation.Registry
	metrics  *metrics.Metrics
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	return &Dispatcher{registry: params.Registry, metrics: params.Metrics}
}

// Dispatch delivers resp to the handler pending under its correlation identifier.
// Unknown identifiers are ignored; the return value reports whether a handler ran.
func (d *Dispatcher) Dispatch(ingress string, resp *message.FinalResponse) bool {
	if resp == nil {
		d.metrics.ObserveDispatch(ingress, false)
		return false
	}
	id := resp.CorrelationIdentifier
	matched := d.registry.Dispatch(id, resp)
	d.metrics.ObserveDispatch(ingress, matched)
	if !matched {
		slog.Debug(fmt.Sprintf("%s - ignoring %s callback for unknown correlationId=%s", logPrefix, ingress, id))
		return false
	}
	if resp.IsError() {
		slog.Info(fmt.Sprintf("%s - error callback via %s for correlationId=%s: code=%d %s", logPrefix, ingress, id, *resp.ErrorCode, resp.ErrorMessage))
	} else {
		slog.Info(fmt.Sprintf("%s - callback via %s for correlationId=%s with %d parameter(s)", logPrefix, ingress, id, len(resp.Parameters)))
	}
	return true
}

// HandleCallback decodes a raw callback and dispatches it.
func (d *Dispatcher) HandleCallback(ingress string, data []byte) *Acknowledgement {
	resp, err := DecodeCallback(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - rejected %s callback: %v", logPrefix, ingress, err))
		return &Acknowledgement{
			Ok: false,
			Error: &ErrorDetail{
				Code:    "INVALID_CALLBACK",
				Message: err.Error(),
			},
		}
	}
	return &Acknowledgement{
		Ok:                    true,
		Dispatched:            d.Dispatch(ingress, resp),
		CorrelationIdentifier: resp.CorrelationIdentifier,
	}
}
