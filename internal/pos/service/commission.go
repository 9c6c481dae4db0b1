package service

import (
	"github.com/shopspring/decimal"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// Split is the full partition of one purchase amount. The legs always sum
// to the gross amount: every floor division assigns its complement to the
// adjacent leg (merchant/contract, cash-back/new-amount, agent/platform,
// parent/agent), so no minor unit is created or destroyed.
type Split struct {
	MerchantProfit    int64
	ContractAmount    int64
	CashBackValue     int64
	AgentProfit       int64
	AgentParentProfit int64
	PlatformProfit    int64
}

// Total returns the sum of the terminal legs, which equals the gross
// purchase amount for any valid split.
func (s Split) Total() int64 {
	return s.MerchantProfit + s.CashBackValue + s.AgentProfit + s.AgentParentProfit + s.PlatformProfit
}

var hundred = decimal.NewFromInt(100)

// ComputeSplit runs the commission algorithm. merchantRate and agentRate
// are whole percentages of, respectively, the gross amount ceded to the
// platform side and the agent's share of the post-cash-back remainder.
// parentRate, when non-nil, peels one level of parent commission off the
// agent's share; deeper ancestors are not consulted.
func ComputeSplit(amount int64, merchantRate, agentRate int, parentRate *int, cashBackRate decimal.Decimal) (Split, error) {
	if amount <= 0 {
		return Split{}, domain.ErrIncorrectData
	}
	if merchantRate < 0 || merchantRate > 100 || agentRate < 0 || agentRate > 100 {
		return Split{}, domain.ErrIncorrectData
	}
	if parentRate != nil && (*parentRate < 0 || *parentRate > 100) {
		return Split{}, domain.ErrIncorrectData
	}
	if cashBackRate.IsNegative() || cashBackRate.GreaterThan(hundred) {
		return Split{}, domain.ErrIncorrectData
	}

	var s Split

	s.MerchantProfit = amount * int64(100-merchantRate) / 100
	s.ContractAmount = amount - s.MerchantProfit

	s.CashBackValue = decimal.NewFromInt(amount).
		Mul(cashBackRate).
		Div(hundred).
		Floor().
		IntPart()
	if s.CashBackValue > s.ContractAmount {
		// A cash-back rate that exceeds the platform's take is a
		// configuration error, not a valid split.
		return Split{}, domain.ErrIncorrectData
	}

	newAmount := s.ContractAmount - s.CashBackValue
	s.AgentProfit = newAmount * int64(agentRate) / 100
	s.PlatformProfit = newAmount - s.AgentProfit

	if parentRate != nil {
		s.AgentParentProfit = s.AgentProfit * int64(*parentRate) / 100
		s.AgentProfit -= s.AgentParentProfit
	}

	return s, nil
}

// CashBackRate resolves the cash-back percentage for a (merchant, card)
// pair. The schedule currently lives on the merchant alone; the card is
// part of the contract so per-card-type schedules can slot in without
// touching callers.
func CashBackRate(m *domain.Merchant, _ *domain.Card) decimal.Decimal {
	return m.CashBackRate
}
