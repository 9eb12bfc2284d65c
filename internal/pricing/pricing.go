// Package pricing computes group prices, deposits and balances from a discount curve.
package pricing

import (
	"fmt"
	"sort"

	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/shopspring/decimal"
)

// MaxDiscountPercent caps a single tier's discount.
const MaxDiscountPercent = 50

var hundred = decimal.NewFromInt(100)

// ComputePrice applies the tier with the largest threshold not above participantCount.
// When two tiers share a threshold the higher discount wins. Without a matching
// tier the base price is returned unchanged.
func ComputePrice(basePrice decimal.Decimal, participantCount int, tiers []models.DiscountTier) decimal.Decimal {
	tier, ok := ApplicableTier(participantCount, tiers)
	if !ok {
		return basePrice
	}
	discount := basePrice.Mul(tier.DiscountPercent).Div(hundred)
	return basePrice.Sub(discount)
}

// ApplicableTier returns the tier selected for participantCount.
func ApplicableTier(participantCount int, tiers []models.DiscountTier) (models.DiscountTier, bool) {
	if len(tiers) == 0 {
		return models.DiscountTier{}, false
	}
	sorted := make([]models.DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Participants != sorted[j].Participants {
			return sorted[i].Participants > sorted[j].Participants
		}
		return sorted[i].DiscountPercent.GreaterThan(sorted[j].DiscountPercent)
	})
	for _, tier := range sorted {
		if participantCount >= tier.Participants {
			return tier, true
		}
	}
	return models.DiscountTier{}, false
}

// ComputeDeposit returns depositPercent percent of price.
func ComputeDeposit(price, depositPercent decimal.Decimal) decimal.Decimal {
	return price.Mul(depositPercent).Div(hundred)
}

// ComputeFinalBalance returns price minus depositPaid. A negative result is a
// data anomaly the caller must handle.
func ComputeFinalBalance(price, depositPaid decimal.Decimal) decimal.Decimal {
	return price.Sub(depositPaid)
}

// ValidateCurve checks a discount curve before it is stored on a group.
func ValidateCurve(tiers []models.DiscountTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one discount tier is required")
	}
	limit := decimal.NewFromInt(MaxDiscountPercent)
	for i, tier := range tiers {
		if tier.Participants < 1 {
			return fmt.Errorf("tier %d: participants must be at least 1", i)
		}
		if tier.DiscountPercent.IsNegative() || tier.DiscountPercent.GreaterThan(limit) {
			return fmt.Errorf("tier %d: discount percent must be between 0 and %d", i, MaxDiscountPercent)
		}
	}
	return nil
}

// Round rounds a monetary amount to cents.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
