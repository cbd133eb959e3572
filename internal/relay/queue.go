// Package relay moves captured events toward the context that holds network
// credentials. The receiving side may not be ready, so delivery is
// at-least-once: a failed send puts the event back at the head of the queue.
package relay

import (
	"sync"
	"time"

	"github.com/ciddy0/co2ounter/internal/logger"
)

// Sink receives delivered events. A non-nil error requeues the event.
type Sink interface {
	Send(event interface{}) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event interface{}) error

func (f SinkFunc) Send(event interface{}) error { return f(event) }

// Queue is an ordered, single-in-flight delivery channel. Events enqueued
// from one producer are delivered to the sink in FIFO order; at most one
// delivery attempt is active at a time, with a fixed delay between attempts.
type Queue struct {
	sink         Sink
	sendInterval time.Duration
	// maxAttempts bounds retries per event; 0 retries indefinitely.
	maxAttempts int
	// deadLetter, when set, receives events that exhausted their retries.
	deadLetter func(event interface{})

	mu       sync.Mutex
	pending  []queued
	sending  bool
	stopped  bool
	inFlight sync.WaitGroup
}

type queued struct {
	event    interface{}
	attempts int
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts bounds delivery retries per event. Zero means unbounded,
// which matches the behavior of a freshly constructed queue.
func WithMaxAttempts(n int, deadLetter func(event interface{})) Option {
	return func(q *Queue) {
		q.maxAttempts = n
		q.deadLetter = deadLetter
	}
}

// WithSendInterval overrides the fixed delay between delivery attempts.
func WithSendInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.sendInterval = d
	}
}

// NewQueue builds a queue delivering to sink.
func NewQueue(sink Sink, opts ...Option) *Queue {
	q := &Queue{
		sink:         sink,
		sendInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends an event and kicks delivery if idle.
func (q *Queue) Enqueue(event interface{}) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, queued{event: event})
	start := !q.sending
	if start {
		q.sending = true
		q.inFlight.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// drain delivers head events one at a time until the queue empties.
func (q *Queue) drain() {
	defer q.inFlight.Done()

	for {
		q.mu.Lock()
		if q.stopped || len(q.pending) == 0 {
			q.sending = false
			q.mu.Unlock()
			return
		}
		head := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := q.sink.Send(head.event)
		if err != nil {
			head.attempts++
			if q.maxAttempts > 0 && head.attempts >= q.maxAttempts {
				logger.Log.WithField("attempts", head.attempts).
					Warn("Dropping undeliverable event")
				if q.deadLetter != nil {
					q.deadLetter(head.event)
				}
			} else {
				q.mu.Lock()
				if q.stopped {
					// Stop cleared the queue while this send was in flight;
					// the event is dropped with the rest.
					q.mu.Unlock()
					return
				}
				// Back to the head: order is preserved across retries.
				q.pending = append([]queued{head}, q.pending...)
				q.mu.Unlock()
			}
		}

		time.Sleep(q.sendInterval)
	}
}

// Len reports the number of events not yet delivered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop drops pending events and waits for the active delivery attempt to
// finish. Queued events are lost, mirroring a torn-down capture context.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.pending = nil
	q.mu.Unlock()
	q.inFlight.Wait()
}
