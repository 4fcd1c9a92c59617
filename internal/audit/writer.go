package audit

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
)

// DefaultBufferSize is the number of entries the writer holds before it
// starts dropping.
const DefaultBufferSize = 256

const writeTimeout = 5 * time.Second

// Writer persists entries on a single background goroutine so request
// handlers never wait on the store. Entries are best-effort: when the
// buffer is full they are dropped with a warning.
type Writer struct {
	repo   Repository
	logger *logging.Logger
	ch     chan *Entry

	started   bool
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewWriter creates a writer buffering at most size entries.
func NewWriter(repo Repository, size int, logger *logging.Logger) *Writer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Entry, size),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the write loop. It exits when ctx is cancelled or Close
// is called, after draining buffered entries.
func (w *Writer) Start(ctx context.Context) {
	w.started = true
	go w.run(ctx)
}

// Log enqueues e without blocking.
func (w *Writer) Log(e *Entry) {
	select {
	case <-w.closed:
		return
	default:
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	select {
	case w.ch <- e:
	default:
		w.logger.Warn("audit buffer full, dropping entry",
			"action", e.Action,
			"entity_type", e.EntityType,
		)
	}
}

// Record implements auth.ActivitySink, turning account flow events into
// audit entries.
func (w *Writer) Record(_ context.Context, ev auth.ActivityEvent) {
	details := map[string]any{"outcome": string(ev.Outcome)}
	if ev.Email != "" {
		details["email"] = ev.Email
	}
	if ev.Reason != "" {
		details["reason"] = ev.Reason
	}

	w.Log(&Entry{
		Action:     string(ev.Kind),
		EntityType: EntityAccount,
		EntityID:   ev.UserID,
		UserID:     ev.UserID,
		Source:     SourceAuth,
		Details:    details,
		CreatedAt:  ev.OccurredAt,
	})
}

// Close stops accepting entries and waits for the buffer to drain.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.closed) })
	if w.started {
		<-w.done
	}
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case e := <-w.ch:
			w.write(e)
		case <-ctx.Done():
			w.drain()
			return
		case <-w.closed:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case e := <-w.ch:
			w.write(e)
		default:
			return
		}
	}
}

func (w *Writer) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.repo.Create(ctx, e); err != nil {
		w.logger.Error("audit write failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"error", err,
		)
	}
}
