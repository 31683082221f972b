package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/leaderboard"
)

// AttemptStore is the Postgres implementation of app.AttemptStore.
//
// The one-InProgress-per-(user, quiz) invariant is a partial unique index,
// Transition runs under SELECT ... FOR UPDATE inside a transaction, and the
// sweeper scan uses FOR UPDATE SKIP LOCKED so it never queues behind
// interactive submits.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID           string     `bun:"user_id,notnull"`
	QuizID           string     `bun:"quiz_id,notnull"`
	Status           string     `bun:"status,notnull"`
	Seed             int64      `bun:"seed,notnull"`
	StartedAt        time.Time  `bun:"started_at,notnull"`
	ExpiresAt        time.Time  `bun:"expires_at,notnull"`
	SubmittedAt      *time.Time `bun:"submitted_at"`
	TimeTakenSeconds int        `bun:"time_taken_seconds"`
	Version          int64      `bun:"version,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:attempt_answers,alias:ans"`

	AttemptID         uuid.UUID `bun:"attempt_id,pk,type:uuid"`
	QuestionID        string    `bun:"question_id,pk"`
	SelectedOptionIDs []string  `bun:"selected_option_ids,type:jsonb"`
	AnsweredAt        time.Time `bun:"answered_at,notnull"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results,alias:r"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	AttemptID  uuid.UUID `bun:"attempt_id,notnull,type:uuid"`
	UserID     string    `bun:"user_id,notnull"`
	QuizID     string    `bun:"quiz_id,notnull"`
	RawScore   int       `bun:"raw_score,notnull"`
	MaxScore   int       `bun:"max_score,notnull"`
	Percentage float64   `bun:"percentage,notnull"`
	Passed     bool      `bun:"passed,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := attemptToRow(attempt)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveAttemptExists
		}
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, id uuid.UUID) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, domain.ErrAttemptNotFound
		}
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return rowToAttempt(*row), nil
}

// UpsertAnswer takes a shared lock on the attempt row for the duration of
// the upsert: concurrent answers to different questions proceed in parallel,
// while a concurrent Transition (exclusive lock) serializes against them, so
// no answer can slip in after the attempt turns terminal.
func (s *AttemptStore) UpsertAnswer(ctx context.Context, answer domain.Answer) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := new(attemptRow)
		err := tx.NewSelect().Model(row).Where("a.id = ?", answer.AttemptID).For("SHARE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("lock attempt for answer: %w", err)
		}
		if domain.AttemptStatus(row.Status).Terminal() {
			return domain.ErrAttemptNotInProgress
		}

		ansRow := answerRow{
			AttemptID:         answer.AttemptID,
			QuestionID:        answer.QuestionID,
			SelectedOptionIDs: answer.SelectedOptionIDs,
			AnsweredAt:        answer.AnsweredAt,
		}
		_, err = tx.NewInsert().
			Model(&ansRow).
			On("CONFLICT (attempt_id, question_id) DO UPDATE").
			Set("selected_option_ids = EXCLUDED.selected_option_ids").
			Set("answered_at = EXCLUDED.answered_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("ans.attempt_id = ?", attemptID).
		Order("ans.question_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, len(rows))
	for i, row := range rows {
		answers[i] = rowToAnswer(row)
	}
	return answers, nil
}

func (s *AttemptStore) GetResult(ctx context.Context, attemptID uuid.UUID) (domain.Result, error) {
	row := new(resultRow)
	err := s.db.NewSelect().Model(row).Where("r.attempt_id = ?", attemptID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Result{}, domain.ErrResultNotFound
		}
		return domain.Result{}, fmt.Errorf("get result: %w", err)
	}
	return rowToResult(*row), nil
}

func (s *AttemptStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model((*attemptRow)(nil)).
			Column("a.id").
			Where("a.status = ?", string(domain.AttemptInProgress)).
			Where("a.expires_at < ?", now).
			OrderExpr("a.expires_at").
			Limit(limit).
			For("UPDATE SKIP LOCKED").
			Scan(ctx, &ids)
	})
	if err != nil {
		return nil, fmt.Errorf("list expired attempts: %w", err)
	}
	return ids, nil
}

func (s *AttemptStore) Transition(ctx context.Context, id uuid.UUID, fn app.TransitionFunc) (domain.Result, bool, error) {
	var (
		result  domain.Result
		already bool
	)
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := new(attemptRow)
		err := tx.NewSelect().Model(row).Where("a.id = ?", id).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("lock attempt: %w", err)
		}

		attempt := rowToAttempt(*row)
		if attempt.Status.Terminal() {
			resRow := new(resultRow)
			if err := tx.NewSelect().Model(resRow).Where("r.attempt_id = ?", id).Scan(ctx); err != nil {
				return fmt.Errorf("read existing result: %w", err)
			}
			result = rowToResult(*resRow)
			already = true
			return nil
		}

		var ansRows []answerRow
		if err := tx.NewSelect().Model(&ansRows).Where("ans.attempt_id = ?", id).Order("ans.question_id").Scan(ctx); err != nil {
			return fmt.Errorf("read answers: %w", err)
		}
		answers := make([]domain.Answer, len(ansRows))
		for i, r := range ansRows {
			answers[i] = rowToAnswer(r)
		}

		updated, res, err := fn(attempt, answers)
		if err != nil {
			return err
		}
		updated.Version = attempt.Version + 1

		updatedRow := attemptToRow(updated)
		if _, err := tx.NewUpdate().
			Model(&updatedRow).
			Column("status", "submitted_at", "time_taken_seconds", "version").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("finalize attempt: %w", err)
		}

		newResRow := resultToRow(res)
		if _, err := tx.NewInsert().Model(&newResRow).Exec(ctx); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		result = res
		return nil
	})
	if err != nil {
		return domain.Result{}, false, err
	}
	return result, already, nil
}

// ListBestScores derives each user's best raw score per quiz from result
// rows, for leaderboard reconciliation.
func (s *AttemptStore) ListBestScores(ctx context.Context) ([]leaderboard.BestScore, error) {
	var rows []struct {
		QuizID string `bun:"quiz_id"`
		UserID string `bun:"user_id"`
		Score  int    `bun:"score"`
	}
	err := s.db.NewSelect().
		Model((*resultRow)(nil)).
		ColumnExpr("r.quiz_id, r.user_id, MAX(r.raw_score) AS score").
		GroupExpr("r.quiz_id, r.user_id").
		OrderExpr("r.quiz_id, r.user_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list best scores: %w", err)
	}
	bests := make([]leaderboard.BestScore, len(rows))
	for i, row := range rows {
		bests[i] = leaderboard.BestScore{QuizID: row.QuizID, UserID: row.UserID, Score: row.Score}
	}
	return bests, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func attemptToRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:               a.ID,
		UserID:           a.UserID,
		QuizID:           a.QuizID,
		Status:           string(a.Status),
		Seed:             a.Seed,
		StartedAt:        a.StartedAt,
		ExpiresAt:        a.ExpiresAt,
		SubmittedAt:      a.SubmittedAt,
		TimeTakenSeconds: a.TimeTakenSeconds,
		Version:          a.Version,
	}
}

func rowToAttempt(r attemptRow) domain.Attempt {
	return domain.Attempt{
		ID:               r.ID,
		UserID:           r.UserID,
		QuizID:           r.QuizID,
		Status:           domain.AttemptStatus(r.Status),
		Seed:             r.Seed,
		StartedAt:        r.StartedAt,
		ExpiresAt:        r.ExpiresAt,
		SubmittedAt:      r.SubmittedAt,
		TimeTakenSeconds: r.TimeTakenSeconds,
		Version:          r.Version,
	}
}

func rowToAnswer(r answerRow) domain.Answer {
	return domain.Answer{
		AttemptID:         r.AttemptID,
		QuestionID:        r.QuestionID,
		SelectedOptionIDs: r.SelectedOptionIDs,
		AnsweredAt:        r.AnsweredAt,
	}
}

func resultToRow(r domain.Result) resultRow {
	return resultRow{
		ID:         r.ID,
		AttemptID:  r.AttemptID,
		UserID:     r.UserID,
		QuizID:     r.QuizID,
		RawScore:   r.RawScore,
		MaxScore:   r.MaxScore,
		Percentage: r.Percentage,
		Passed:     r.Passed,
		CreatedAt:  r.CreatedAt,
	}
}

func rowToResult(r resultRow) domain.Result {
	return domain.Result{
		ID:         r.ID,
		AttemptID:  r.AttemptID,
		UserID:     r.UserID,
		QuizID:     r.QuizID,
		RawScore:   r.RawScore,
		MaxScore:   r.MaxScore,
		Percentage: r.Percentage,
		Passed:     r.Passed,
		CreatedAt:  r.CreatedAt,
	}
}
