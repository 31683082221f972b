package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAttemptSubmitted = "attempt.submitted"
	EventResultAvailable  = "result.available"
)

// Event is a fire-and-forget signal for the notification collaborator.
type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	QuizID    string    `json:"quizId"`
	AttemptID uuid.UUID `json:"attemptId"`
	ResultID  uuid.UUID `json:"resultId"`
	At        time.Time `json:"at"`
}

// Notifier delivers events asynchronously. Notify must not block and its
// failures must never affect attempt state.
type Notifier interface {
	Notify(Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// LogNotifier writes events to the log; a real deployment would hand them to
// an email/queue collaborator instead.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(e Event) {
	n.log.Info("notification event",
		zap.String("type", e.Type),
		zap.String("userId", e.UserID),
		zap.String("quizId", e.QuizID),
		zap.String("attemptId", e.AttemptID.String()),
		zap.String("resultId", e.ResultID.String()))
}

// AsyncNotifier decouples event delivery from the submit path with a small
// buffer. When the buffer is full the event is dropped rather than blocking
// the caller. Notify after Close is a no-op, so background work that
// outlives the shutdown sequence cannot hit a closed channel.
type AsyncNotifier struct {
	sink Notifier
	ch   chan Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewAsyncNotifier(sink Notifier, buffer int) *AsyncNotifier {
	n := &AsyncNotifier{
		sink: sink,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *AsyncNotifier) Notify(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- e:
	default:
	}
}

// Close stops the delivery goroutine after draining buffered events.
// Safe to call more than once.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.ch)
	<-n.done
}

func (n *AsyncNotifier) run() {
	defer close(n.done)
	for e := range n.ch {
		n.sink.Notify(e)
	}
}
