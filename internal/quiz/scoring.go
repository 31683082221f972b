package quiz

import (
	"math"

	"quiz-attempt-service/internal/domain"
)

// Score is the outcome of scoring one attempt against the answer key.
type Score struct {
	Raw        int
	Max        int
	Percentage float64
}

// ScoreAttempt grades persisted answers against the quiz answer key.
//
// Per question: full weight when the selected option set equals the correct
// option set exactly, zero otherwise. Partially correct multi-select answers
// earn nothing. Unanswered questions earn nothing. A question with no
// correct options is an authoring defect and is excluded from the maximum,
// so it can never drag the percentage down. The function is pure: the same
// quiz and answers always produce the same score.
func ScoreAttempt(q domain.Quiz, answers []domain.Answer) Score {
	byQuestion := make(map[string][]string, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.SelectedOptionIDs
	}

	var score Score
	for _, question := range q.Questions {
		key := question.CorrectOptionIDs()
		if len(key) == 0 {
			continue
		}
		score.Max += question.Weight()
		selected, ok := byQuestion[question.ID]
		if !ok {
			continue
		}
		if sameIDSet(selected, key) {
			score.Raw += question.Weight()
		}
	}

	if score.Max > 0 {
		score.Percentage = round2(float64(score.Raw) / float64(score.Max) * 100)
	}
	return score
}

func sameIDSet(a, b []string) bool {
	if len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
