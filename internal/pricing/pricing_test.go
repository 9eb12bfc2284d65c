package pricing

import (
	"testing"

	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func tier(participants int, percent int64) models.DiscountTier {
	return models.DiscountTier{Participants: participants, DiscountPercent: decimal.NewFromInt(percent)}
}

func TestComputePrice(t *testing.T) {
	base := decimal.NewFromInt(1000)
	curve := []models.DiscountTier{tier(5, 10), tier(10, 20)}

	tests := []struct {
		name  string
		count int
		tiers []models.DiscountTier
		want  int64
	}{
		{name: "highest matching tier wins", count: 10, tiers: curve, want: 800},
		{name: "between tiers", count: 7, tiers: curve, want: 900},
		{name: "above every tier", count: 50, tiers: curve, want: 800},
		{name: "below every tier", count: 4, tiers: curve, want: 1000},
		{name: "no tiers", count: 10, tiers: nil, want: 1000},
		{name: "unsorted input", count: 10, tiers: []models.DiscountTier{tier(10, 20), tier(5, 10)}, want: 800},
		{name: "equal thresholds take highest discount", count: 5, tiers: []models.DiscountTier{tier(5, 10), tier(5, 25)}, want: 750},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputePrice(base, tc.count, tc.tiers)
			if !got.Equal(decimal.NewFromInt(tc.want)) {
				t.Fatalf("ComputePrice=%s, want %d", got, tc.want)
			}
		})
	}
}

func TestComputeDepositAndFinalBalance(t *testing.T) {
	deposit := ComputeDeposit(decimal.NewFromInt(800), decimal.NewFromInt(10))
	if !deposit.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("ComputeDeposit=%s, want 80", deposit)
	}
	balance := ComputeFinalBalance(decimal.NewFromInt(800), deposit)
	if !balance.Equal(decimal.NewFromInt(720)) {
		t.Fatalf("ComputeFinalBalance=%s, want 720", balance)
	}
	negative := ComputeFinalBalance(decimal.NewFromInt(50), decimal.NewFromInt(80))
	if !negative.IsNegative() {
		t.Fatalf("expected negative balance to pass through, got %s", negative)
	}
}

func TestValidateCurve(t *testing.T) {
	if err := ValidateCurve(nil); err == nil {
		t.Fatalf("expected error for empty curve")
	}
	if err := ValidateCurve([]models.DiscountTier{tier(0, 10)}); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
	if err := ValidateCurve([]models.DiscountTier{tier(5, 51)}); err == nil {
		t.Fatalf("expected error for discount above 50")
	}
	if err := ValidateCurve([]models.DiscountTier{tier(5, -1)}); err == nil {
		t.Fatalf("expected error for negative discount")
	}
	if err := ValidateCurve([]models.DiscountTier{tier(5, 0), tier(10, 50)}); err != nil {
		t.Fatalf("expected valid curve, got %v", err)
	}
}

func genCurve(t *rapid.T) []models.DiscountTier {
	n := rapid.IntRange(0, 6).Draw(t, "tiers")
	tiers := make([]models.DiscountTier, n)
	for i := range tiers {
		tiers[i] = tier(
			rapid.IntRange(1, 100).Draw(t, "participants"),
			int64(rapid.IntRange(0, MaxDiscountPercent).Draw(t, "percent")),
		)
	}
	return tiers
}

func TestComputePriceBelowEveryThresholdIsBase(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tiers := genCurve(t)
		base := decimal.NewFromInt(int64(rapid.IntRange(1, 1_000_000).Draw(t, "base")))
		lowest := 101
		for _, tr := range tiers {
			if tr.Participants < lowest {
				lowest = tr.Participants
			}
		}
		count := rapid.IntRange(0, lowest-1).Draw(t, "count")
		if got := ComputePrice(base, count, tiers); !got.Equal(base) {
			t.Fatalf("ComputePrice(%s, %d)=%s, want base", base, count, got)
		}
	})
}

func TestComputePriceStaysWithinDiscountBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tiers := genCurve(t)
		base := decimal.NewFromInt(int64(rapid.IntRange(1, 1_000_000).Draw(t, "base")))
		count := rapid.IntRange(0, 200).Draw(t, "count")
		got := ComputePrice(base, count, tiers)
		floor := base.Mul(decimal.NewFromInt(100 - MaxDiscountPercent)).Div(hundred)
		if got.GreaterThan(base) || got.LessThan(floor) {
			t.Fatalf("price %s outside [%s, %s]", got, floor, base)
		}
	})
}
