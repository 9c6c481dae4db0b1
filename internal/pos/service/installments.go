package service

import (
	"context"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// Installment count bounds accepted from the POS.
const (
	minInstallments = 2
	maxInstallments = 36
)

// InstallmentsRequest is a purchase divided over monthly periods.
type InstallmentsRequest struct {
	PurchaseRequest
	NumberOfInstallments int
}

// InstallmentsPurchase divides the amount across the requested periods,
// settles the first period immediately (full fee/profit split on its
// value), and schedules the remaining periods as a parent/child chain with
// monthly due dates. Collection of the scheduled periods is a separate
// concern and has no code path here.
func (s *Settlement) InstallmentsPurchase(ctx context.Context, req InstallmentsRequest) (*PurchaseResult, error) {
	n := req.NumberOfInstallments
	if n < minInstallments || n > maxInstallments {
		return nil, domain.ErrIncorrectData
	}
	if req.Amount < int64(n) {
		return nil, domain.ErrIncorrectData
	}

	per := req.Amount / int64(n)
	first := per + req.Amount%int64(n) // division remainder lands on the first period
	remaining := req.Amount - first

	firstReq := req.PurchaseRequest
	firstReq.Amount = first

	sc, err := s.validate(ctx, firstReq)
	if err != nil {
		return nil, err
	}

	extra := func(tx domain.Store, txn *domain.Transaction) error {
		due := txn.CreatedAt
		var prevID *uint64
		for i := 0; i < n; i++ {
			inst := &domain.Installment{
				TransactionID: txn.ID,
				CardID:        sc.payer.card.ID,
				Value:         per,
				DueDate:       due.AddDate(0, i, 0),
				Status:        domain.InstallmentPending,
				ParentID:      prevID,
				CreatedAt:     txn.CreatedAt,
			}
			if i == 0 {
				inst.Value = first
				inst.Status = domain.InstallmentSettled
			}
			if err := tx.Installments().CreateAll(ctx, []*domain.Installment{inst}); err != nil {
				return err
			}
			prevID = &inst.ID
		}

		// The unsettled periods are a future obligation on the paying
		// aggregate.
		if remaining > 0 {
			return tx.Accounts().ApplyDelta(ctx, sc.payer.funding.ID, domain.FieldDebt, remaining)
		}
		return nil
	}

	return s.settle(ctx, sc, extra)
}
