// Package evaluator derives threshold and expiration facts from a group snapshot.
package evaluator

import (
	"fmt"
	"math"
	"time"
)

// ThresholdReached reports whether a group has enough participants to succeed.
func ThresholdReached(currentParticipants, minParticipants int) bool {
	return currentParticipants >= minParticipants
}

// IsFull reports whether a group has no capacity left.
func IsFull(currentParticipants, maxParticipants int) bool {
	return currentParticipants >= maxParticipants
}

// CompletionPercentage returns round(current/max*100), or 0 without capacity.
func CompletionPercentage(currentParticipants, maxParticipants int) int {
	if maxParticipants <= 0 {
		return 0
	}
	return int(math.Round(float64(currentParticipants) / float64(maxParticipants) * 100))
}

// IsExpired reports whether now is strictly after endDate.
func IsExpired(endDate, now time.Time) bool {
	return now.After(endDate)
}

// HoursLeft returns the whole hours until endDate, never negative.
func HoursLeft(endDate, now time.Time) int {
	diff := endDate.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(diff / time.Hour)
}

// FormatTimeLeft renders the remaining time for display.
func FormatTimeLeft(endDate, now time.Time) string {
	hours := HoursLeft(endDate, now)
	switch {
	case hours == 0:
		if endDate.After(now) {
			return "less than an hour left"
		}
		return "expired"
	case hours < 24:
		return plural(hours, "hour") + " left"
	default:
		return plural(hours/24, "day") + " left"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Snapshot holds the fields the evaluator reads.
type Snapshot struct {
	MinParticipants     int
	MaxParticipants     int
	CurrentParticipants int
	EndDate             time.Time
}

// Status is the set of derived, never stored, group facts.
type Status struct {
	CompletionPercentage int    `json:"completionPercentage"`
	IsExpired            bool   `json:"isExpired"`
	IsFull               bool   `json:"isFull"`
	ThresholdReached     bool   `json:"thresholdReached"`
	SpotsLeft            int    `json:"spotsLeft"`
	TimeLeft             string `json:"timeLeft"`
}

// Evaluate derives the status of s at now.
func Evaluate(s Snapshot, now time.Time) Status {
	spots := s.MaxParticipants - s.CurrentParticipants
	if spots < 0 {
		spots = 0
	}
	return Status{
		CompletionPercentage: CompletionPercentage(s.CurrentParticipants, s.MaxParticipants),
		IsExpired:            IsExpired(s.EndDate, now),
		IsFull:               IsFull(s.CurrentParticipants, s.MaxParticipants),
		ThresholdReached:     ThresholdReached(s.CurrentParticipants, s.MinParticipants),
		SpotsLeft:            spots,
		TimeLeft:             FormatTimeLeft(s.EndDate, now),
	}
}
