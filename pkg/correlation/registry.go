// Package correlation matches asynchronous gateway callbacks to pending callers.
package correlation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alonegg/scip-client/pkg/message"
)

const logPrefix = "correlation:registry"

var (
	// ErrDuplicate is returned when an id already has a pending handler.
	ErrDuplicate = errors.New("correlation identifier already registered")
	// ErrEmptyID is returned when registering an empty correlation identifier.
	ErrEmptyID = errors.New("correlation identifier is empty")
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("handler is nil")
)

// Handler receives one inbound callback for a correlation identifier.
type Handler func(resp *message.FinalResponse)

// entry serializes dispatches for one id. removed is checked after mu is taken,
// so a dispatch queued behind a removal backs off.
type entry struct {
	mu      sync.Mutex
	handler Handler
	removed atomic.Bool
}

// Registry maps correlation identifiers to pending handlers.
// The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register stores handler under id. An id that is already pending is rejected, never overwritten.
func (r *Registry) Register(id string, handler Handler) error {
	if id == "" {
		return ErrEmptyID
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("%s - %w: %s", logPrefix, ErrDuplicate, id)
	}
	r.entries[id] = &entry{handler: handler}
	slog.Debug(fmt.Sprintf("%s - registered id=%s", logPrefix, id))
	return nil
}

// Dispatch delivers resp to the handler registered under id and reports whether a
// handler ran. Unknown ids and nil responses are ignored.
func (r *Registry) Dispatch(id string, resp *message.FinalResponse) bool {
	if resp == nil {
		slog.Warn(fmt.Sprintf("%s - nil callback for id=%s, ignoring", logPrefix, id))
		return false
	}

	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		slog.Debug(fmt.Sprintf("%s - no pending handler for id=%s, ignoring callback", logPrefix, id))
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed.Load() {
		return false
	}
	r.invoke(id, e.handler, resp)
	return true
}

// Deregister removes the entry for id. It is a no-op when id is not registered.
// It is safe to call from inside the handler being dispatched for the same id.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	e.removed.Store(true)
	slog.Debug(fmt.Sprintf("%s - deregistered id=%s", logPrefix, id))
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) invoke(id string, h Handler, resp *message.FinalResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error(fmt.Sprintf("%s - handler for id=%s panicked: %v", logPrefix, id, rec))
		}
	}()
	h(resp)
}
