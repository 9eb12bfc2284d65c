package evaluator

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPredicatesAreMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(0, 500).Draw(t, "limit")
		c := rapid.IntRange(0, 500).Draw(t, "count")
		if IsFull(c, limit) != (c >= limit) {
			t.Fatalf("IsFull(%d, %d) disagrees with c >= m", c, limit)
		}
		if ThresholdReached(c, limit) != (c >= limit) {
			t.Fatalf("ThresholdReached(%d, %d) disagrees with c >= n", c, limit)
		}
		if IsFull(c, limit) && !IsFull(c+1, limit) {
			t.Fatalf("IsFull not monotone at %d/%d", c, limit)
		}
		if ThresholdReached(c, limit) && !ThresholdReached(c+1, limit) {
			t.Fatalf("ThresholdReached not monotone at %d/%d", c, limit)
		}
	})
}

func TestCompletionPercentage(t *testing.T) {
	tests := []struct {
		current, max, want int
	}{
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
		{5, 0, 0},
	}
	for _, tc := range tests {
		if got := CompletionPercentage(tc.current, tc.max); got != tc.want {
			t.Fatalf("CompletionPercentage(%d, %d)=%d, want %d", tc.current, tc.max, got, tc.want)
		}
	}
}

func TestIsExpired(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if IsExpired(end, end) {
		t.Fatalf("expected not expired at the deadline instant")
	}
	if !IsExpired(end, end.Add(time.Nanosecond)) {
		t.Fatalf("expected expired after the deadline")
	}
	if IsExpired(end, end.Add(-time.Hour)) {
		t.Fatalf("expected not expired before the deadline")
	}
}

func TestFormatTimeLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		end  time.Time
		want string
	}{
		{now.Add(-time.Minute), "expired"},
		{now.Add(30 * time.Minute), "less than an hour left"},
		{now.Add(time.Hour), "1 hour left"},
		{now.Add(5 * time.Hour), "5 hours left"},
		{now.Add(30 * time.Hour), "1 day left"},
		{now.Add(72 * time.Hour), "3 days left"},
	}
	for _, tc := range tests {
		if got := FormatTimeLeft(tc.end, now); got != tc.want {
			t.Fatalf("FormatTimeLeft(%s)=%q, want %q", tc.end.Sub(now), got, tc.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	status := Evaluate(Snapshot{MinParticipants: 3, MaxParticipants: 4, CurrentParticipants: 3, EndDate: now.Add(2 * time.Hour)}, now)
	if !status.ThresholdReached || status.IsFull || status.IsExpired {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.CompletionPercentage != 75 || status.SpotsLeft != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}
