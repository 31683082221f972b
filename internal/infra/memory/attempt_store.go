package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/leaderboard"
	"quiz-attempt-service/internal/quiz"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. Each
// attempt carries its own mutex, so one logical owner per attempt ID
// serializes its transitions; the store-level mutex only guards the maps and
// the active-attempt index.
//
// Lock ordering: the store mutex is never acquired while an attempt mutex is
// held.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*attemptState
	active   map[activeKey]uuid.UUID
}

type activeKey struct {
	userID string
	quizID string
}

type attemptState struct {
	mu      sync.Mutex
	attempt domain.Attempt
	answers map[string]domain.Answer
	result  *domain.Result
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[uuid.UUID]*attemptState),
		active:   make(map[activeKey]uuid.UUID),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	key := activeKey{userID: attempt.UserID, quizID: attempt.QuizID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.active[key]; ok {
		if existing, ok := s.attempts[existingID]; ok && existing.inProgress() {
			return domain.ErrActiveAttemptExists
		}
	}

	s.attempts[attempt.ID] = &attemptState{
		attempt: attempt,
		answers: make(map[string]domain.Answer),
	}
	s.active[key] = attempt.ID
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, id uuid.UUID) (domain.Attempt, error) {
	state, err := s.state(id)
	if err != nil {
		return domain.Attempt{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.attempt, nil
}

func (s *AttemptStore) UpsertAnswer(_ context.Context, answer domain.Answer) error {
	state, err := s.state(answer.AttemptID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.attempt.Status.Terminal() {
		return domain.ErrAttemptNotInProgress
	}
	state.answers[answer.QuestionID] = answer
	return nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]domain.Answer, error) {
	state, err := s.state(attemptID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.answersLocked(), nil
}

func (s *AttemptStore) GetResult(_ context.Context, attemptID uuid.UUID) (domain.Result, error) {
	state, err := s.state(attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.result == nil {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return *state.result, nil
}

// ListExpired skips attempts whose mutex is currently held by a concurrent
// Transition, mirroring SKIP LOCKED semantics: a sweep never stalls behind
// an interactive submit.
func (s *AttemptStore) ListExpired(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	states := make([]*attemptState, 0, len(s.attempts))
	for _, state := range s.attempts {
		states = append(states, state)
	}
	s.mu.Unlock()

	ids := make([]uuid.UUID, 0)
	for _, state := range states {
		if len(ids) >= limit {
			break
		}
		if !state.mu.TryLock() {
			continue
		}
		if state.attempt.Status == domain.AttemptInProgress && quiz.IsExpired(now, state.attempt.ExpiresAt) {
			ids = append(ids, state.attempt.ID)
		}
		state.mu.Unlock()
	}
	return ids, nil
}

func (s *AttemptStore) Transition(_ context.Context, id uuid.UUID, fn app.TransitionFunc) (domain.Result, bool, error) {
	state, err := s.state(id)
	if err != nil {
		return domain.Result{}, false, err
	}

	state.mu.Lock()
	if state.attempt.Status.Terminal() {
		result := *state.result
		state.mu.Unlock()
		return result, true, nil
	}

	updated, result, err := fn(state.attempt, state.answersLocked())
	if err != nil {
		state.mu.Unlock()
		return domain.Result{}, false, err
	}

	updated.Version = state.attempt.Version + 1
	state.attempt = updated
	state.result = &result
	key := activeKey{userID: updated.UserID, quizID: updated.QuizID}
	state.mu.Unlock()

	s.mu.Lock()
	if s.active[key] == id {
		delete(s.active, key)
	}
	s.mu.Unlock()

	return result, false, nil
}

// ListBestScores derives each user's best raw score per quiz from stored
// results, for leaderboard reconciliation.
func (s *AttemptStore) ListBestScores(_ context.Context) ([]leaderboard.BestScore, error) {
	s.mu.Lock()
	states := make([]*attemptState, 0, len(s.attempts))
	for _, state := range s.attempts {
		states = append(states, state)
	}
	s.mu.Unlock()

	best := make(map[activeKey]int)
	for _, state := range states {
		state.mu.Lock()
		if state.result != nil {
			key := activeKey{userID: state.result.UserID, quizID: state.result.QuizID}
			if cur, ok := best[key]; !ok || state.result.RawScore > cur {
				best[key] = state.result.RawScore
			}
		}
		state.mu.Unlock()
	}

	bests := make([]leaderboard.BestScore, 0, len(best))
	for key, score := range best {
		bests = append(bests, leaderboard.BestScore{QuizID: key.quizID, UserID: key.userID, Score: score})
	}
	sort.Slice(bests, func(i, j int) bool {
		if bests[i].QuizID != bests[j].QuizID {
			return bests[i].QuizID < bests[j].QuizID
		}
		return bests[i].UserID < bests[j].UserID
	})
	return bests, nil
}

func (s *AttemptStore) state(id uuid.UUID) (*attemptState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return state, nil
}

func (st *attemptState) inProgress() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.attempt.Status == domain.AttemptInProgress
}

func (st *attemptState) answersLocked() []domain.Answer {
	answers := make([]domain.Answer, 0, len(st.answers))
	for _, a := range st.answers {
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	return answers
}
