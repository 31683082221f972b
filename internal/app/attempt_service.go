package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/monitoring"
	"quiz-attempt-service/internal/quiz"
)

// AttemptService owns the attempt lifecycle: start, incremental answers and
// the single submit path through which every attempt becomes terminal.
type AttemptService struct {
	store    AttemptStore
	quizzes  QuizRepository
	board    ResultRecorder
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewAttemptService(store AttemptStore, quizzes QuizRepository, board ResultRecorder, notifier Notifier, log *zap.Logger) *AttemptService {
	return NewAttemptServiceWithClock(store, quizzes, board, notifier, log, time.Now)
}

// NewAttemptServiceWithClock allows deterministic timestamps in tests.
func NewAttemptServiceWithClock(store AttemptStore, quizzes QuizRepository, board ResultRecorder, notifier Notifier, log *zap.Logger, now func() time.Time) *AttemptService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AttemptService{
		store:    store,
		quizzes:  quizzes,
		board:    board,
		notifier: notifier,
		log:      log,
		now:      now,
	}
}

// AttemptView is an attempt as shown to its owner: the quiz in this
// attempt's shuffled order with the answer key stripped, plus recorded
// answers and, once terminal, the result.
type AttemptView struct {
	Attempt domain.Attempt  `json:"attempt"`
	Quiz    domain.Quiz     `json:"quiz"`
	Answers []domain.Answer `json:"answers"`
	Result  *domain.Result  `json:"result,omitempty"`
}

// Start creates a new in-progress attempt for (user, quiz).
//
// The uniqueness of the active attempt is enforced by the store, not here,
// so two racing Start calls resolve to exactly one winner.
func (s *AttemptService) Start(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	qz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if qz.Status != domain.QuizPublished {
		return domain.Attempt{}, domain.ErrQuizNotPublished
	}

	seed, err := quiz.NewSeed()
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	attempt := domain.Attempt{
		ID:        uuid.New(),
		UserID:    userID,
		QuizID:    quizID,
		Status:    domain.AttemptInProgress,
		Seed:      seed,
		StartedAt: now,
		ExpiresAt: quiz.Expiry(now, qz.DurationMinutes),
	}
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}

	s.log.Info("attempt started",
		zap.String("attemptId", attempt.ID.String()),
		zap.String("userId", userID),
		zap.String("quizId", quizID),
		zap.Time("expiresAt", attempt.ExpiresAt))
	return attempt, nil
}

// SubmitAnswer upserts the selection for one question of an in-progress
// attempt. When the attempt turns out to be past its deadline, the attempt
// is routed through forced submission before the expiry error surfaces, so
// the client's own request performs the cleanup instead of the sweeper.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID uuid.UUID, questionID string, selection []string) error {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return domain.ErrAttemptNotInProgress
	}
	if quiz.IsExpired(s.now(), attempt.ExpiresAt) {
		if _, err := s.Submit(ctx, attemptID, true); err != nil {
			s.log.Error("forced submit of expired attempt failed",
				zap.String("attemptId", attemptID.String()), zap.Error(err))
		}
		return domain.ErrAttemptExpired
	}

	qz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	if err := validateSelection(qz, questionID, selection); err != nil {
		return err
	}

	return s.store.UpsertAnswer(ctx, domain.Answer{
		AttemptID:         attemptID,
		QuestionID:        questionID,
		SelectedOptionIDs: selection,
		AnsweredAt:        s.now(),
	})
}

// submitAttempts bounds how often a submit transaction is re-run after a
// transient storage failure (serialization conflict, dropped connection).
// Each retry restarts from lock acquisition; idempotency makes re-running
// safe even when the prior attempt committed before the error surfaced.
const submitAttempts = 3

// Submit is the single choke point for an attempt becoming terminal, shared
// by interactive requests and the sweeper. It is idempotent: on an already
// terminal attempt it returns the existing result without re-scoring.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, forced bool) (domain.Result, error) {
	var target domain.AttemptStatus

	result, already, err := s.transitionWithRetry(ctx, attemptID, func(attempt domain.Attempt, answers []domain.Answer) (domain.Attempt, domain.Result, error) {
		qz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			return attempt, domain.Result{}, fmt.Errorf("load quiz for scoring: %w", err)
		}

		now := s.now()
		target = domain.AttemptSubmitted
		if forced || quiz.IsExpired(now, attempt.ExpiresAt) {
			target = domain.AttemptExpired
		}

		sc := quiz.ScoreAttempt(qz, answers)
		res := domain.Result{
			ID:         uuid.New(),
			AttemptID:  attempt.ID,
			UserID:     attempt.UserID,
			QuizID:     attempt.QuizID,
			RawScore:   sc.Raw,
			MaxScore:   sc.Max,
			Percentage: sc.Percentage,
			Passed:     sc.Percentage >= qz.PassingScore,
			CreatedAt:  now,
		}

		attempt.Status = target
		attempt.SubmittedAt = &res.CreatedAt
		attempt.TimeTakenSeconds = int(now.Sub(attempt.StartedAt).Seconds())
		return attempt, res, nil
	})
	if err != nil {
		return domain.Result{}, err
	}
	if already {
		monitoring.SubmitCounter.WithLabelValues("already_terminal").Inc()
		return result, nil
	}

	monitoring.SubmitCounter.WithLabelValues(string(target)).Inc()
	s.log.Info("attempt submitted",
		zap.String("attemptId", attemptID.String()),
		zap.String("status", string(target)),
		zap.Bool("forced", forced),
		zap.Int("rawScore", result.RawScore),
		zap.Int("maxScore", result.MaxScore))

	// The result row is already durable; ranking updates are best-effort and
	// healed by the periodic reconciliation.
	if s.board != nil {
		if err := s.board.RecordResult(ctx, result); err != nil {
			s.log.Warn("leaderboard update deferred to reconciliation",
				zap.String("attemptId", attemptID.String()), zap.Error(err))
		}
	}

	s.notifier.Notify(Event{Type: EventAttemptSubmitted, UserID: result.UserID, QuizID: result.QuizID, AttemptID: result.AttemptID, ResultID: result.ID, At: result.CreatedAt})
	s.notifier.Notify(Event{Type: EventResultAvailable, UserID: result.UserID, QuizID: result.QuizID, AttemptID: result.AttemptID, ResultID: result.ID, At: result.CreatedAt})
	return result, nil
}

// transitionWithRetry re-runs the whole submit transaction, lock acquisition
// included, when the store reports a transient failure. Domain sentinels and
// context cancellation are deterministic and surface immediately.
func (s *AttemptService) transitionWithRetry(ctx context.Context, attemptID uuid.UUID, fn TransitionFunc) (domain.Result, bool, error) {
	var (
		result  domain.Result
		already bool
		err     error
	)
	for try := 1; ; try++ {
		result, already, err = s.store.Transition(ctx, attemptID, fn)
		if err == nil || try >= submitAttempts || !isTransient(err) {
			return result, already, err
		}

		s.log.Warn("submit transaction failed, retrying",
			zap.String("attemptId", attemptID.String()),
			zap.Int("try", try),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return domain.Result{}, false, ctx.Err()
		case <-time.After(time.Duration(try) * 50 * time.Millisecond):
		}
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !domain.IsSentinel(err)
}

// GetAttempt returns the owner's view of an attempt. The layout is
// re-derived from the stored seed, so re-fetching an in-progress attempt
// always shows the same ordering.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uuid.UUID) (AttemptView, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	qz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptView{}, err
	}
	answers, err := s.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}

	view := AttemptView{
		Attempt: attempt,
		Quiz:    quiz.Sanitize(quiz.Shuffle(qz, attempt.Seed)),
		Answers: answers,
	}
	if attempt.Status.Terminal() {
		result, err := s.store.GetResult(ctx, attemptID)
		if err != nil {
			return AttemptView{}, err
		}
		view.Result = &result
	}
	return view, nil
}

func validateSelection(qz domain.Quiz, questionID string, selection []string) error {
	var question *domain.Question
	for i := range qz.Questions {
		if qz.Questions[i].ID == questionID {
			question = &qz.Questions[i]
			break
		}
	}
	if question == nil {
		return domain.ErrQuestionNotFound
	}
	if len(selection) == 0 {
		return domain.ErrInvalidSelection
	}
	if question.Type == domain.QuestionTrueFalse && len(selection) > 1 {
		return domain.ErrInvalidSelection
	}

	valid := make(map[string]struct{}, len(question.Options))
	for _, opt := range question.Options {
		valid[opt.ID] = struct{}{}
	}
	for _, id := range selection {
		if _, ok := valid[id]; !ok {
			return domain.ErrOptionNotFound
		}
	}
	return nil
}
