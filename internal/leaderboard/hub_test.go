package leaderboard

import (
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestHubDeliversToQuizSubscribersOnly(t *testing.T) {
	hub := NewHub()

	a, cancelA := hub.Subscribe("quiz-1")
	defer cancelA()
	b, cancelB := hub.Subscribe("quiz-2")
	defer cancelB()

	hub.Publish(domain.Leaderboard{QuizID: "quiz-1"})

	select {
	case lb := <-a:
		if lb.QuizID != "quiz-1" {
			t.Fatalf("unexpected quiz: %s", lb.QuizID)
		}
	default:
		t.Fatalf("expected delivery to quiz-1 subscriber")
	}
	select {
	case lb := <-b:
		t.Fatalf("unexpected delivery to quiz-2 subscriber: %+v", lb)
	default:
	}
}

func TestHubDropsOldestWhenSubscriberLags(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("quiz-1")
	defer cancel()

	// Overflow the buffer; the publisher must never block.
	for i := 0; i < 20; i++ {
		hub.Publish(domain.Leaderboard{QuizID: "quiz-1", Entries: []domain.LeaderboardEntry{{Score: i}}})
	}

	var last domain.Leaderboard
	drained := 0
	for {
		select {
		case lb := <-ch:
			last = lb
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 {
		t.Fatalf("expected buffered snapshots")
	}
	if last.Entries[0].Score != 19 {
		t.Fatalf("expected newest snapshot last, got %d", last.Entries[0].Score)
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("quiz-1")
	cancel()
	cancel() // second call must not panic

	// Publishing after cancellation must not panic either.
	hub.Publish(domain.Leaderboard{QuizID: "quiz-1"})
}
