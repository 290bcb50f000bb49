package glue

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestQueue_ExecutesInOrder(t *testing.T) {
	q := newQueue(4)
	defer q.close()

	var order []int
	var last *Event
	for i := 0; i < 100; i++ {
		i := i
		last = q.submit("append", true, func() error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, last.Wait())

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueue_BlockingReturnsError(t *testing.T) {
	q := newQueue(1)
	defer q.close()

	cause := errors.New("boom")
	ev, err := q.enqueue("fail", true, func() error { return cause })
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, ev.Wait(), cause)
	assert.NoError(t, q.takeAsyncError(), "blocking failures are not deferred")
}

func TestQueue_NonBlockingErrorIsDeferred(t *testing.T) {
	q := newQueue(1)
	defer q.close()

	release := make(chan struct{})
	ev, err := q.enqueue("slow", false, func() error {
		<-release
		return newError(TransferFailure, "slow", "failed late")
	})
	require.NoError(t, err)

	select {
	case <-ev.Done():
		t.Fatal("non-blocking command completed before it was allowed to")
	case <-time.After(10 * time.Millisecond):
	}
	close(release)

	assert.Equal(t, TransferFailure, CodeOf(ev.Wait()))
	assert.Equal(t, TransferFailure, CodeOf(q.takeAsyncError()))
	assert.NoError(t, q.takeAsyncError(), "deferred error is reported once")
}

func TestQueue_RecoversPanics(t *testing.T) {
	q := newQueue(1)
	defer q.close()

	err := q.do("panic", func() error { panic("native failure") })
	assert.Equal(t, ExecutionFailure, CodeOf(err))

	// The worker survives
	assert.NoError(t, q.do("noop", func() error { return nil }))
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := newQueue(1)
	ran := false
	pending := q.submit("pending", false, func() error {
		ran = true
		return nil
	})
	q.close()
	q.close()

	require.NoError(t, pending.Wait())
	assert.True(t, ran, "close drains queued commands")

	err := q.do("late", func() error { return nil })
	assert.True(t, errors.Is(err, ErrReleased))
}
