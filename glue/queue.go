package glue

import (
	"fmt"
	"runtime"
	"sync"
)

const defaultQueueDepth = 64

// Event is the completion handle of a queued command
type Event struct {
	done chan struct{}
	err  error
}

func newEvent() *Event {
	return &Event{done: make(chan struct{})}
}

func completedEvent(err error) *Event {
	ev := &Event{done: make(chan struct{}), err: err}
	close(ev.done)
	return ev
}

// Wait blocks until the command has completed and returns its error
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

// Done is closed once the command has completed
func (e *Event) Done() <-chan struct{} {
	return e.done
}

type command struct {
	op    string
	fn    func() error
	ev    *Event
	async bool
}

// queue executes commands in submission order on one goroutine locked to
// its OS thread, so a native device context is only touched from one thread
type queue struct {
	tasks   chan command
	stopped chan struct{}

	mu     sync.Mutex
	closed bool

	errMu    sync.Mutex
	asyncErr error
}

func newQueue(depth int) *queue {
	q := &queue{
		tasks:   make(chan command, depth),
		stopped: make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *queue) worker() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for c := range q.tasks {
		c.ev.err = q.run(c)
		if c.ev.err != nil && c.async {
			q.errMu.Lock()
			if q.asyncErr == nil {
				q.asyncErr = c.ev.err
			}
			q.errMu.Unlock()
		}
		close(c.ev.done)
	}
	close(q.stopped)
}

// run converts panics raised by the native layer into errors
func (q *queue) run(c command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrapError(ExecutionFailure, c.op, fmt.Errorf("%v", r), "device call panicked")
		}
	}()
	return c.fn()
}

func (q *queue) submit(op string, async bool, fn func() error) *Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return completedEvent(newError(Released, op, "command queue is closed"))
	}
	ev := newEvent()
	q.tasks <- command{op: op, fn: fn, ev: ev, async: async}
	return ev
}

// do runs fn on the queue and waits for it
func (q *queue) do(op string, fn func() error) error {
	return q.submit(op, false, fn).Wait()
}

// enqueue runs fn on the queue; a non-blocking failure is also reported by
// the next takeAsyncError
func (q *queue) enqueue(op string, blocking bool, fn func() error) (*Event, error) {
	ev := q.submit(op, !blocking, fn)
	if blocking {
		return ev, ev.Wait()
	}
	return ev, nil
}

func (q *queue) takeAsyncError() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.asyncErr
	q.asyncErr = nil
	return err
}

// close drains queued commands and stops the worker
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.stopped
}
