package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizNotPublished is returned when starting an attempt against an unpublished quiz.
	ErrQuizNotPublished = errors.New("quiz not published")
	// ErrAttemptNotFound indicates an unknown attempt ID.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is not part of the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidSelection indicates a selection shape the question type cannot accept.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrActiveAttemptExists is returned when the user already has an
	// in-progress attempt for the quiz.
	ErrActiveAttemptExists = errors.New("active attempt already exists")
	// ErrAttemptNotInProgress is returned for mutations on a terminal attempt.
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	// ErrAttemptExpired is returned when the attempt deadline has passed.
	// The attempt is force-submitted as a side effect before this surfaces.
	ErrAttemptExpired = errors.New("attempt has expired")
	// ErrResultNotFound indicates no result exists for the attempt yet.
	ErrResultNotFound = errors.New("result not found")
	// ErrLeaderboardUnavailable is returned when the ranking cache cannot be
	// reached; rankings are never served from anywhere else.
	ErrLeaderboardUnavailable = errors.New("leaderboard temporarily unavailable")
)

var sentinels = []error{
	ErrQuizNotFound,
	ErrQuizNotPublished,
	ErrAttemptNotFound,
	ErrQuestionNotFound,
	ErrOptionNotFound,
	ErrInvalidSelection,
	ErrActiveAttemptExists,
	ErrAttemptNotInProgress,
	ErrAttemptExpired,
	ErrResultNotFound,
	ErrLeaderboardUnavailable,
}

// IsSentinel reports whether err is, or wraps, one of the domain errors
// above. Callers use it to tell deterministic outcomes apart from transient
// infrastructure failures.
func IsSentinel(err error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
