// Package payment defines the charge and refund capability used for deposits
// and final balances.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrDeclined reports that the provider refused a charge or refund.
var ErrDeclined = errors.New("payment: declined")

// Method identifies a payment channel.
type Method string

// Method constants list accepted channels.
const (
	MethodOrangeMoney Method = "ORANGE_MONEY"
	MethodMoovMoney   Method = "MOOV_MONEY"
	MethodLigdiCash   Method = "LIGDICASH"
	MethodCard        Method = "CARD"
)

// ParseMethod normalizes and validates a payment method name.
func ParseMethod(raw string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case MethodOrangeMoney, MethodMoovMoney, MethodLigdiCash, MethodCard:
		return m, true
	default:
		return "", false
	}
}

// Purpose tells the provider what a charge pays for.
type Purpose string

// Purpose constants.
const (
	PurposeDeposit      Purpose = "DEPOSIT"
	PurposeFinalBalance Purpose = "FINAL_BALANCE"
)

// ChargeRequest describes money to collect from a user.
type ChargeRequest struct {
	UserID  uint64
	GroupID uint64
	Amount  decimal.Decimal
	Method  Method
	Purpose Purpose
}

// RefundRequest describes money to return to a user.
type RefundRequest struct {
	UserID    uint64
	GroupID   uint64
	Amount    decimal.Decimal
	Reference string
}

// Receipt is the provider's record of a completed operation.
type Receipt struct {
	Reference string
	Amount    decimal.Decimal
}

// Provider charges and refunds users. Implementations return an error
// wrapping ErrDeclined when the provider refuses the operation.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
	Refund(ctx context.Context, req RefundRequest) (Receipt, error)
}
