package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	received []interface{}
	failures int
	attempts int
}

func (s *recordingSink) Send(event interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("receiver not listening")
	}
	s.received = append(s.received, event)
	return nil
}

func (s *recordingSink) snapshot() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, len(s.received))
	copy(out, s.received)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueueDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, WithSendInterval(time.Millisecond))
	defer q.Stop()

	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })
	assert.Equal(t, []interface{}{"a", "b", "c"}, sink.snapshot())
}

func TestQueueRetriesHeadOnFailure(t *testing.T) {
	// First attempt fails, second succeeds: the event is delivered exactly
	// once, after one retry delay.
	sink := &recordingSink{failures: 1}
	q := NewQueue(sink, WithSendInterval(time.Millisecond))
	defer q.Stop()

	q.Enqueue("e1")

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
	assert.Equal(t, []interface{}{"e1"}, sink.snapshot())

	sink.mu.Lock()
	attempts := sink.attempts
	sink.mu.Unlock()
	assert.Equal(t, 2, attempts)
}

func TestQueueRetryPreservesOrder(t *testing.T) {
	sink := &recordingSink{failures: 3}
	q := NewQueue(sink, WithSendInterval(time.Millisecond))
	defer q.Stop()

	q.Enqueue("first")
	q.Enqueue("second")

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
	assert.Equal(t, []interface{}{"first", "second"}, sink.snapshot())
}

func TestQueueDeadLetterAfterMaxAttempts(t *testing.T) {
	var dead []interface{}
	var deadMu sync.Mutex

	sink := &recordingSink{failures: 100}
	q := NewQueue(sink,
		WithSendInterval(time.Millisecond),
		WithMaxAttempts(3, func(event interface{}) {
			deadMu.Lock()
			dead = append(dead, event)
			deadMu.Unlock()
		}),
	)
	defer q.Stop()

	q.Enqueue("doomed")
	q.Enqueue("fine")

	// "doomed" burns 3 attempts and is dropped; by then the sink has 97
	// failures left, so "fine" also burns 3 and is dropped. Use a sink
	// that recovers instead.
	waitFor(t, func() bool {
		deadMu.Lock()
		defer deadMu.Unlock()
		return len(dead) >= 1
	})

	deadMu.Lock()
	require.NotEmpty(t, dead)
	assert.Equal(t, "doomed", dead[0])
	deadMu.Unlock()
}

func TestQueueStopDropsPending(t *testing.T) {
	sink := &recordingSink{failures: 1000}
	q := NewQueue(sink, WithSendInterval(time.Millisecond))

	q.Enqueue("never")
	q.Stop()

	assert.Zero(t, q.Len())
}

// blockingSink holds its one delivery attempt open until released, then
// fails it.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Send(event interface{}) error {
	s.entered <- struct{}{}
	<-s.release
	return errors.New("receiver gone")
}

func TestQueueStopDropsEventFailingMidStop(t *testing.T) {
	// A send that fails while Stop is already waiting must not put its event
	// back on the queue.
	sink := &blockingSink{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	q := NewQueue(sink, WithSendInterval(time.Millisecond))

	q.Enqueue("in-flight")
	<-sink.entered

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	waitFor(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.stopped
	})
	close(sink.release)

	<-done
	assert.Zero(t, q.Len())
}

func TestQueueUnboundedRetryByDefault(t *testing.T) {
	sink := &recordingSink{failures: 20}
	q := NewQueue(sink, WithSendInterval(time.Millisecond))
	defer q.Stop()

	q.Enqueue("persistent")

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
	assert.Equal(t, []interface{}{"persistent"}, sink.snapshot())
}
