package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StubProvider approves every operation except charges made with a declined
// method. It records operations for inspection.
type StubProvider struct {
	mu             sync.Mutex
	declineMethods map[Method]struct{}
	declineRefunds bool
	charges        []ChargeRequest
	refunds        []RefundRequest
}

// NewStubProvider constructs a StubProvider that declines the given methods.
func NewStubProvider(declineMethods []string) *StubProvider {
	p := &StubProvider{declineMethods: make(map[Method]struct{})}
	for _, raw := range declineMethods {
		if m, ok := ParseMethod(raw); ok {
			p.declineMethods[m] = struct{}{}
		}
	}
	return p
}

// DeclineRefunds toggles refund declines.
func (p *StubProvider) DeclineRefunds(decline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declineRefunds = decline
}

// DeclineMethod makes subsequent charges with m fail.
func (p *StubProvider) DeclineMethod(m Method) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declineMethods[m] = struct{}{}
}

// Charge implements Provider.
func (p *StubProvider) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, declined := p.declineMethods[req.Method]; declined {
		return Receipt{}, fmt.Errorf("charge %s via %s: %w", req.Amount.StringFixed(2), req.Method, ErrDeclined)
	}
	p.charges = append(p.charges, req)
	receipt := Receipt{Reference: "ch_" + uuid.NewString(), Amount: req.Amount}
	log.WithFields(log.Fields{
		"user_id":   req.UserID,
		"group_id":  req.GroupID,
		"amount":    req.Amount.StringFixed(2),
		"purpose":   req.Purpose,
		"reference": receipt.Reference,
	}).Debug("payment stub: charge approved")
	return receipt, nil
}

// Refund implements Provider.
func (p *StubProvider) Refund(ctx context.Context, req RefundRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declineRefunds {
		return Receipt{}, fmt.Errorf("refund %s: %w", req.Amount.StringFixed(2), ErrDeclined)
	}
	p.refunds = append(p.refunds, req)
	return Receipt{Reference: "rf_" + uuid.NewString(), Amount: req.Amount}, nil
}

// Charges returns a copy of the approved charges.
func (p *StubProvider) Charges() []ChargeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChargeRequest, len(p.charges))
	copy(out, p.charges)
	return out
}

// Refunds returns a copy of the approved refunds.
func (p *StubProvider) Refunds() []RefundRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RefundRequest, len(p.refunds))
	copy(out, p.refunds)
	return out
}
