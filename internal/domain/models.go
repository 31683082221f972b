package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuizStatus is the authoring lifecycle state of a quiz.
type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizArchived  QuizStatus = "archived"
)

// QuestionType discriminates MCQ from true/false questions.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionTrueFalse QuestionType = "true_false"
)

// AttemptStatus is the lifecycle state of a quiz attempt.
// InProgress is the only non-terminal state.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSubmitted || s == AttemptExpired
}

// Option represents a possible answer for a question. Correct is never
// exposed to attempting clients; transports must strip it.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// Question models an MCQ or true/false question. MCQ questions may have
// more than one correct option; true/false has exactly one.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options"`
	Points  int          `json:"points"` // defaults to 1 if zero
}

// Weight returns the scoring weight of the question.
func (q Question) Weight() int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// CorrectOptionIDs returns the IDs of all options flagged correct.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// Quiz is the immutable published content an attempt runs against.
type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Status          QuizStatus `json:"status"`
	DurationMinutes int        `json:"durationMinutes"`
	PassingScore    float64    `json:"passingScore"` // percentage threshold
	Questions       []Question `json:"questions"`
}

// Attempt is one user's timed instance of taking one quiz.
//
// Invariants: at most one InProgress attempt per (user, quiz); SubmittedAt
// is set if and only if Status is terminal, and never changes afterwards.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	UserID           string        `json:"userId"`
	QuizID           string        `json:"quizId"`
	Status           AttemptStatus `json:"status"`
	Seed             int64         `json:"-"`
	StartedAt        time.Time     `json:"startedAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	SubmittedAt      *time.Time    `json:"submittedAt,omitempty"`
	TimeTakenSeconds int           `json:"timeTakenSeconds,omitempty"`
	Version          int64         `json:"-"`
}

// Answer is the recorded selection for one question of one attempt.
// Upsertable while the attempt is InProgress, immutable afterwards.
type Answer struct {
	AttemptID         uuid.UUID `json:"attemptId"`
	QuestionID        string    `json:"questionId"`
	SelectedOptionIDs []string  `json:"selectedOptionIds"`
	AnsweredAt        time.Time `json:"answeredAt"`
}

// Result is the scored outcome of an attempt. Created exactly once per
// attempt and never mutated; it is the source of truth for leaderboards.
type Result struct {
	ID         uuid.UUID `json:"id"`
	AttemptID  uuid.UUID `json:"attemptId"`
	UserID     string    `json:"userId"`
	QuizID     string    `json:"quizId"`
	RawScore   int       `json:"rawScore"`
	MaxScore   int       `json:"maxScore"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// Leaderboard captures an ordered scoreboard snapshot. QuizID is empty for
// the global scope.
type Leaderboard struct {
	QuizID    string             `json:"quizId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
