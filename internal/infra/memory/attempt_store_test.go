package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

func newAttempt(userID, quizID string, expiresAt time.Time) domain.Attempt {
	started := expiresAt.Add(-10 * time.Minute)
	return domain.Attempt{
		ID:        uuid.New(),
		UserID:    userID,
		QuizID:    quizID,
		Status:    domain.AttemptInProgress,
		StartedAt: started,
		ExpiresAt: expiresAt,
	}
}

func terminalFn(status domain.AttemptStatus) func(domain.Attempt, []domain.Answer) (domain.Attempt, domain.Result, error) {
	return func(attempt domain.Attempt, answers []domain.Answer) (domain.Attempt, domain.Result, error) {
		attempt.Status = status
		return attempt, domain.Result{
			ID:        uuid.New(),
			AttemptID: attempt.ID,
			UserID:    attempt.UserID,
			QuizID:    attempt.QuizID,
			RawScore:  len(answers),
		}, nil
	}
}

func TestCreateRejectsSecondActiveAttempt(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Minute)

	if err := store.CreateAttempt(ctx, newAttempt("u1", "quiz-1", deadline)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := store.CreateAttempt(ctx, newAttempt("u1", "quiz-1", deadline))
	if !errors.Is(err, domain.ErrActiveAttemptExists) {
		t.Fatalf("expected ErrActiveAttemptExists, got %v", err)
	}

	// A different quiz or user is unaffected.
	if err := store.CreateAttempt(ctx, newAttempt("u1", "quiz-2", deadline)); err != nil {
		t.Fatalf("other quiz: %v", err)
	}
	if err := store.CreateAttempt(ctx, newAttempt("u2", "quiz-1", deadline)); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestCreateAllowedAfterTransition(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Minute)

	first := newAttempt("u1", "quiz-1", deadline)
	if err := store.CreateAttempt(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.Transition(ctx, first.ID, terminalFn(domain.AttemptSubmitted)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if err := store.CreateAttempt(ctx, newAttempt("u1", "quiz-1", deadline)); err != nil {
		t.Fatalf("expected create after terminal, got %v", err)
	}
}

func TestTransitionIsIdempotent(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	attempt := newAttempt("u1", "quiz-1", time.Now().Add(10*time.Minute))
	if err := store.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, already, err := store.Transition(ctx, attempt.ID, terminalFn(domain.AttemptSubmitted))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if already {
		t.Fatalf("first transition reported already terminal")
	}

	calls := 0
	second, already, err := store.Transition(ctx, attempt.ID, func(a domain.Attempt, ans []domain.Answer) (domain.Attempt, domain.Result, error) {
		calls++
		return terminalFn(domain.AttemptSubmitted)(a, ans)
	})
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if !already {
		t.Fatalf("expected already terminal")
	}
	if calls != 0 {
		t.Fatalf("transition func ran on terminal attempt")
	}
	if second.ID != first.ID {
		t.Fatalf("expected stored result back, got %s vs %s", second.ID, first.ID)
	}
}

func TestTransitionErrorLeavesAttemptInProgress(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	attempt := newAttempt("u1", "quiz-1", time.Now().Add(10*time.Minute))
	if err := store.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	wantErr := errors.New("quiz fetch failed")
	_, _, err := store.Transition(ctx, attempt.ID, func(a domain.Attempt, _ []domain.Answer) (domain.Attempt, domain.Result, error) {
		return a, domain.Result{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	stored, err := store.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.AttemptInProgress {
		t.Fatalf("failed transition must not change status, got %s", stored.Status)
	}
	if _, err := store.GetResult(ctx, attempt.ID); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected no result, got %v", err)
	}
}

func TestUpsertAnswerReplacesSelection(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	attempt := newAttempt("u1", "quiz-1", time.Now().Add(10*time.Minute))
	if err := store.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := domain.Answer{AttemptID: attempt.ID, QuestionID: "q1", SelectedOptionIDs: []string{"o1"}}
	if err := store.UpsertAnswer(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	replacement := domain.Answer{AttemptID: attempt.ID, QuestionID: "q1", SelectedOptionIDs: []string{"o2"}}
	if err := store.UpsertAnswer(ctx, replacement); err != nil {
		t.Fatalf("upsert replacement: %v", err)
	}

	answers, err := store.ListAnswers(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(answers) != 1 || answers[0].SelectedOptionIDs[0] != "o2" {
		t.Fatalf("expected replaced answer, got %+v", answers)
	}
}

func TestUpsertAnswerRejectedAfterTransition(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	attempt := newAttempt("u1", "quiz-1", time.Now().Add(10*time.Minute))
	if err := store.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.Transition(ctx, attempt.ID, terminalFn(domain.AttemptExpired)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	err := store.UpsertAnswer(ctx, domain.Answer{AttemptID: attempt.ID, QuestionID: "q1", SelectedOptionIDs: []string{"o1"}})
	if !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("expected ErrAttemptNotInProgress, got %v", err)
	}
}

func TestListExpiredFiltersAndLimits(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	now := time.Now()

	past := newAttempt("u1", "quiz-1", now.Add(-time.Minute))
	past2 := newAttempt("u2", "quiz-1", now.Add(-time.Hour))
	future := newAttempt("u3", "quiz-1", now.Add(time.Hour))
	for _, a := range []domain.Attempt{past, past2, future} {
		if err := store.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// A terminal attempt past its deadline is not a candidate.
	done := newAttempt("u4", "quiz-1", now.Add(-time.Minute))
	if err := store.CreateAttempt(ctx, done); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.Transition(ctx, done.ID, terminalFn(domain.AttemptExpired)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	ids, err := store.ListExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 expired candidates, got %d", len(ids))
	}
	for _, id := range ids {
		if id == future.ID || id == done.ID {
			t.Fatalf("non-candidate %s listed", id)
		}
	}

	limited, err := store.ListExpired(ctx, now, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}
}

func TestListBestScoresTakesMaxPerUserQuiz(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Minute)

	submit := func(userID, quizID string, answers int) {
		t.Helper()
		attempt := newAttempt(userID, quizID, deadline)
		if err := store.CreateAttempt(ctx, attempt); err != nil {
			t.Fatalf("create: %v", err)
		}
		for i := 0; i < answers; i++ {
			a := domain.Answer{AttemptID: attempt.ID, QuestionID: uuid.NewString(), SelectedOptionIDs: []string{"o1"}}
			if err := store.UpsertAnswer(ctx, a); err != nil {
				t.Fatalf("answer: %v", err)
			}
		}
		if _, _, err := store.Transition(ctx, attempt.ID, terminalFn(domain.AttemptSubmitted)); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}

	submit("alice", "quiz-1", 2)
	submit("alice", "quiz-1", 5)
	submit("alice", "quiz-1", 3)
	submit("bob", "quiz-1", 4)

	bests, err := store.ListBestScores(ctx)
	if err != nil {
		t.Fatalf("list bests: %v", err)
	}
	if len(bests) != 2 {
		t.Fatalf("expected 2 bests, got %+v", bests)
	}
	if bests[0].UserID != "alice" || bests[0].Score != 5 {
		t.Fatalf("expected alice at 5, got %+v", bests[0])
	}
	if bests[1].UserID != "bob" || bests[1].Score != 4 {
		t.Fatalf("expected bob at 4, got %+v", bests[1])
	}
}
