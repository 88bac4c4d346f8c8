package ripper

import (
	"io"
	"sync"

	"github.com/zachfi/icystream/pkg/session"
)

// eventQueue hands session events from the network reader to the file
// writer so slow disks don't stall the connection.
type eventQueue struct {
	sync.Mutex
	events chan session.Events
	closed bool
}

func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &eventQueue{
		events: make(chan session.Events, size),
	}
}

// Send blocks while the queue is full. The consumer must drain the queue
// until it is closed.
func (q *eventQueue) Send(ev session.Events) error {
	q.Lock()
	defer q.Unlock()

	if q.closed {
		return io.ErrClosedPipe
	}

	q.events <- ev

	return nil
}

func (q *eventQueue) Events() <-chan session.Events {
	return q.events
}

func (q *eventQueue) Close() error {
	q.Lock()
	defer q.Unlock()

	if !q.closed {
		close(q.events)
		q.closed = true
	}

	return nil
}
