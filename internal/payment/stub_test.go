package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMethod(t *testing.T) {
	if m, ok := ParseMethod(" orange_money "); !ok || m != MethodOrangeMoney {
		t.Fatalf("expected ORANGE_MONEY, got %q %v", m, ok)
	}
	if _, ok := ParseMethod("cash"); ok {
		t.Fatalf("expected cash to be rejected")
	}
}

func TestStubProviderDeclinesConfiguredMethods(t *testing.T) {
	p := NewStubProvider([]string{"CARD"})
	ctx := context.Background()

	if _, err := p.Charge(ctx, ChargeRequest{Amount: decimal.NewFromInt(80), Method: MethodCard}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected decline, got %v", err)
	}
	receipt, err := p.Charge(ctx, ChargeRequest{Amount: decimal.NewFromInt(80), Method: MethodMoovMoney})
	if err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	if receipt.Reference == "" || !receipt.Amount.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if len(p.Charges()) != 1 {
		t.Fatalf("expected one recorded charge, got %d", len(p.Charges()))
	}
}

func TestStubProviderRefundDecline(t *testing.T) {
	p := NewStubProvider(nil)
	p.DeclineRefunds(true)
	if _, err := p.Refund(context.Background(), RefundRequest{Amount: decimal.NewFromInt(10)}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected refund decline, got %v", err)
	}
	p.DeclineRefunds(false)
	if _, err := p.Refund(context.Background(), RefundRequest{Amount: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("expected refund approval, got %v", err)
	}
	if len(p.Refunds()) != 1 {
		t.Fatalf("expected one refund, got %d", len(p.Refunds()))
	}
}
