package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing operation lifecycle events.
type EventPublisher interface {
	PublishOperation(ctx context.Context, event *OperationEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishOperation is a no-op.
func (p *NoOpPublisher) PublishOperation(_ context.Context, _ *OperationEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *OperationEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *OperationEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishOperation calls the callback.
func (p *CallbackPublisher) PublishOperation(ctx context.Context, event *OperationEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher fans an event out to several publishers. Every publisher is
// attempted; failures are joined.
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher creates a MultiPublisher, skipping nil entries.
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// PublishOperation publishes to every configured publisher.
func (m *MultiPublisher) PublishOperation(ctx context.Context, event *OperationEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishOperation(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
