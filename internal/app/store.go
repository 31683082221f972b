package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

// TransitionFunc decides the terminal state for a locked, still in-progress
// attempt. It receives the attempt and its persisted answers and returns the
// updated attempt plus the result to record. It must be side-effect free; the
// store may re-run it if the surrounding transaction is retried.
type TransitionFunc func(attempt domain.Attempt, answers []domain.Answer) (domain.Attempt, domain.Result, error)

// AttemptStore abstracts durable attempt state (in-memory, Postgres, etc).
//
// Implementations must enforce the one-InProgress-attempt-per-(user, quiz)
// invariant at the storage layer and must serialize Transition calls per
// attempt identity.
type AttemptStore interface {
	// CreateAttempt persists a new in-progress attempt. Returns
	// domain.ErrActiveAttemptExists when the uniqueness invariant would be
	// violated, including by a concurrent create.
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error

	// GetAttempt returns the attempt or domain.ErrAttemptNotFound.
	GetAttempt(ctx context.Context, id uuid.UUID) (domain.Attempt, error)

	// UpsertAnswer creates or replaces the answer for (attempt, question).
	// Returns domain.ErrAttemptNotInProgress once the attempt is terminal, so
	// late writes can never alter a scored attempt.
	UpsertAnswer(ctx context.Context, answer domain.Answer) error

	// ListAnswers returns all recorded answers for the attempt.
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]domain.Answer, error)

	// GetResult returns the attempt's result or domain.ErrResultNotFound.
	GetResult(ctx context.Context, attemptID uuid.UUID) (domain.Result, error)

	// ListExpired returns IDs of in-progress attempts whose deadline passed
	// before now. Rows currently locked by a concurrent Transition are
	// skipped, never waited on.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// Transition acquires exclusive scope over the attempt, re-reads its
	// status and, if already terminal, returns the stored result with
	// already=true. Otherwise it invokes fn and commits the returned attempt
	// and result as one atomic unit; any failure leaves the attempt
	// in progress.
	Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (result domain.Result, already bool, err error)
}

// QuizRepository loads published quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultRecorder receives freshly committed results, e.g. the leaderboard
// engine. Failures are the caller's to log; they never affect attempt state.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result domain.Result) error
}
