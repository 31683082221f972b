package app_test

import (
	"sync"
	"testing"

	"quiz-attempt-service/internal/app"
)

type captureSink struct {
	mu     sync.Mutex
	events []app.Event
}

func (s *captureSink) Notify(e app.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAsyncNotifierDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	notifier := app.NewAsyncNotifier(sink, 8)

	for i := 0; i < 5; i++ {
		notifier.Notify(app.Event{Type: app.EventAttemptSubmitted})
	}
	notifier.Close()

	if got := sink.count(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
}

func TestAsyncNotifierNotifyDuringCloseDoesNotPanic(t *testing.T) {
	sink := &captureSink{}
	notifier := app.NewAsyncNotifier(sink, 4)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 1000; j++ {
				notifier.Notify(app.Event{Type: app.EventResultAvailable})
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		notifier.Close()
	}()

	close(start)
	wg.Wait()

	// Late notifications after shutdown are dropped silently.
	notifier.Notify(app.Event{Type: app.EventResultAvailable})
}

func TestAsyncNotifierCloseIsIdempotent(t *testing.T) {
	notifier := app.NewAsyncNotifier(&captureSink{}, 1)
	notifier.Close()
	notifier.Close()
}
