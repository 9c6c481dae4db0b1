package service

import (
	"context"
	"time"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// BalanceRequest is the POS balance-inquiry input: the same credentials a
// purchase carries, without an amount.
type BalanceRequest struct {
	TerminalNumber string
	MerchantNumber string
	CardNumber     string
	Password       string
}

// BalanceResult reports both funding balances with a tracing code.
type BalanceResult struct {
	CashBalance   int64
	CreditBalance int64
	Code          string
	Time          time.Time
}

// Balance validates the card at the terminal (purchase steps 1-2) and
// returns the wallet's balances. Never mutates anything.
func (s *Settlement) Balance(ctx context.Context, req BalanceRequest) (*BalanceResult, error) {
	_, _, wallet, err := s.checkCardAtTerminal(ctx, req.TerminalNumber, req.MerchantNumber, req.CardNumber, req.Password)
	if err != nil {
		return nil, err
	}

	cash, err := s.store.Accounts().ForUser(ctx, wallet.UserID, domain.ValueCash)
	if err != nil {
		return nil, err
	}
	credit, err := s.store.Accounts().ForUser(ctx, wallet.UserID, domain.ValueCredit)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Next(ctx)
	if err != nil {
		return nil, domain.ErrTechnicalProblem
	}

	return &BalanceResult{
		CashBalance:   cash.Balance,
		CreditBalance: credit.Balance,
		Code:          code,
		Time:          time.Now(),
	}, nil
}
