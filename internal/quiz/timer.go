package quiz

import "time"

// Expiry computes the attempt deadline from its start time and the quiz
// duration. Computed once at start and immutable afterwards.
func Expiry(startedAt time.Time, durationMinutes int) time.Time {
	return startedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// IsExpired reports whether the deadline has passed. All expiry decisions use
// the server clock; client-supplied timestamps are never consulted.
func IsExpired(now, expiresAt time.Time) bool {
	return now.After(expiresAt)
}
