package scip

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alonegg/scip-client/pkg/message"
)

const streamLogPrefix = "scip:stream"

// Stream delivers the events of one subscription in arrival order. Events are
// buffered without bound so the callback ingress never blocks on a slow reader.
//
// The Events channel is closed after the stream is finalized and every event
// received before finalization has been delivered. Cancel drops undelivered events,
// and so does a reader that takes nothing for drainTimeout after the stream ends.
type Stream struct {
	correlationID string
	drainTimeout  time.Duration

	events chan *message.SubscribeResponse
	notify chan struct{}
	done   chan struct{}
	abort  chan struct{}

	mu        sync.Mutex
	queue     []*message.SubscribeResponse
	finalized bool
	// ended is set once finalization hooks have run.
	ended bool
	err   error
	hooks []func(error)

	abortOnce sync.Once
}

// DefaultStreamDrainTimeout bounds how long events buffered at finalization wait for a reader.
const DefaultStreamDrainTimeout = 30 * time.Second

func newStream(correlationID string, drainTimeout time.Duration) *Stream {
	if drainTimeout <= 0 {
		drainTimeout = DefaultStreamDrainTimeout
	}
	s := &Stream{
		correlationID: correlationID,
		drainTimeout:  drainTimeout,
		events:        make(chan *message.SubscribeResponse),
		notify:        make(chan struct{}, 1),
		done:          make(chan struct{}),
		abort:         make(chan struct{}),
	}
	go s.pump()
	return s
}

// CorrelationID returns the subscription's correlation identifier.
func (s *Stream) CorrelationID() string {
	return s.correlationID
}

// Events returns the channel of subscription events.
func (s *Stream) Events() <-chan *message.SubscribeResponse {
	return s.events
}

// Done is closed once the stream is finalized.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, or nil if the stream is live or was canceled by the caller.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel tears the subscription down. No further events are delivered, including
// events still buffered from a stream that has already ended.
func (s *Stream) Cancel() {
	s.finish(nil, true)
}

func (s *Stream) emit(ev *message.SubscribeResponse) bool {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// finish finalizes the stream with err. When drop is set, buffered events are discarded.
func (s *Stream) finish(err error, drop bool) bool {
	if drop {
		s.abortOnce.Do(func() { close(s.abort) })
	}

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return false
	}
	s.finalized = true
	s.err = err
	if drop {
		s.queue = nil
	}
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, h := range hooks {
		h(err)
	}

	s.mu.Lock()
	s.ended = true
	close(s.done)
	s.mu.Unlock()
	return true
}

func (s *Stream) whenFinalized(h func(error)) {
	s.mu.Lock()
	if !s.finalized {
		s.hooks = append(s.hooks, h)
		s.mu.Unlock()
		return
	}
	err := s.err
	s.mu.Unlock()
	h(err)
}

func (s *Stream) next() (*message.SubscribeResponse, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		return ev, true, false
	}
	return nil, false, s.ended
}

func (s *Stream) pump() {
	defer close(s.events)
	var doneCh <-chan struct{} = s.done
	var expired <-chan time.Time
	for {
		ev, ok, finished := s.next()
		if finished {
			return
		}
		if !ok {
			select {
			case <-s.notify:
			case <-s.done:
			case <-s.abort:
				return
			}
			continue
		}
		if !s.deliver(ev, &doneCh, &expired) {
			s.discard()
			return
		}
	}
}

// deliver blocks until ev is taken. Once the stream has ended, the reader has
// drainTimeout to take the remaining events before they are dropped.
func (s *Stream) deliver(ev *message.SubscribeResponse, doneCh *<-chan struct{}, expired *<-chan time.Time) bool {
	for {
		select {
		case s.events <- ev:
			return true
		case <-s.abort:
			return false
		case <-*doneCh:
			*doneCh = nil
			timer := time.NewTimer(s.drainTimeout)
			*expired = timer.C
		case <-*expired:
			return false
		}
	}
}

func (s *Stream) discard() {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()
	slog.Debug(fmt.Sprintf("%s - stopped delivery for correlationId=%s, %d buffered event(s) dropped", streamLogPrefix, s.correlationID, dropped))
}
