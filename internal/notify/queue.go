package notify

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
)

const (
	// DefaultQueueSize is the buffer size used when none is configured.
	DefaultQueueSize = 256

	// sendTimeout bounds a single delivery attempt.
	sendTimeout = 10 * time.Second
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Queue buffers messages for asynchronous delivery.
//
// Thread Safety:
//   - Enqueue is safe for concurrent use. Start and Close are called once
//     by the owner.
type Queue struct {
	sender Sender
	links  Links
	logger *logging.Logger
	ch     chan Message

	started   bool
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewQueue creates a queue holding at most size pending messages.
func NewQueue(sender Sender, links Links, size int, logger *logging.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		sender: sender,
		links:  links,
		logger: logger,
		ch:     make(chan Message, size),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine. It stops when ctx is cancelled or
// Close is called, after draining whatever is still buffered.
func (q *Queue) Start(ctx context.Context) {
	q.started = true
	go q.run(ctx)
}

// Enqueue schedules msg for delivery and reports whether it was accepted.
// The link is derived from the token if the caller left it empty.
func (q *Queue) Enqueue(msg Message) bool {
	select {
	case <-q.closed:
		q.logger.Warn("notification queue closed, dropping message",
			"kind", msg.Kind,
			"user_id", msg.UserID,
		)
		return false
	default:
	}

	if msg.Link == "" {
		msg.Link = q.links.For(msg.Kind, msg.Token)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	select {
	case q.ch <- msg:
		return true
	default:
		q.logger.Warn("notification queue full, dropping message",
			"kind", msg.Kind,
			"user_id", msg.UserID,
		)
		return false
	}
}

// Pending returns the number of buffered messages.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Close stops accepting messages and waits for the buffer to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
	if q.started {
		<-q.done
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		case <-ctx.Done():
			q.drain()
			return
		case <-q.closed:
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		default:
			return
		}
	}
}

func (q *Queue) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := q.sender.Send(ctx, msg); err != nil {
		q.logger.Error("notification delivery failed",
			"kind", msg.Kind,
			"user_id", msg.UserID,
			"error", err,
		)
		return
	}
	q.logger.Debug("notification delivered", "kind", msg.Kind, "user_id", msg.UserID)
}
