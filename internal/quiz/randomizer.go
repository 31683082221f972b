package quiz

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"

	"quiz-attempt-service/internal/domain"
)

// NewSeed draws a per-attempt randomization seed from a cryptographic source.
// The seed is stored on the attempt so the shuffled layout can be reproduced
// on every fetch.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// Shuffle returns a copy of the quiz with question and option order fixed by
// seed. Repeated calls with the same seed produce identical layouts. The
// ordering depends only on the seed and the authored order, never on which
// options are correct.
func Shuffle(q domain.Quiz, seed int64) domain.Quiz {
	rnd := mathrand.New(mathrand.NewSource(seed))

	shuffled := q
	shuffled.Questions = make([]domain.Question, len(q.Questions))
	for i, j := range rnd.Perm(len(q.Questions)) {
		shuffled.Questions[i] = q.Questions[j]
	}
	for i := range shuffled.Questions {
		question := &shuffled.Questions[i]
		options := make([]domain.Option, len(question.Options))
		for k, j := range rnd.Perm(len(question.Options)) {
			options[k] = question.Options[j]
		}
		question.Options = options
	}
	return shuffled
}

// Sanitize strips the answer key from a quiz so it can be shown to an
// attempting client.
func Sanitize(q domain.Quiz) domain.Quiz {
	sanitized := q
	sanitized.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		options := make([]domain.Option, len(question.Options))
		for j, opt := range question.Options {
			opt.Correct = false
			options[j] = opt
		}
		question.Options = options
		sanitized.Questions[i] = question
	}
	return sanitized
}
