package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// settlementState tracks where an attempt is in its lifecycle, for logging
// and for classifying failures.
type settlementState string

const (
	stateValidating     settlementState = "VALIDATING"
	stateBalanceChecked settlementState = "BALANCE_CHECKED"
	stateLocked         settlementState = "LOCKED"
	stateSettled        settlementState = "SETTLED"
	stateUnlocked       settlementState = "UNLOCKED"
	stateAborted        settlementState = "ABORTED"
	stateFailedRollback settlementState = "FAILED_ROLLBACK"
)

// maxCodeAttempts bounds the retry-on-conflict loop for generated codes.
const maxCodeAttempts = 3

// Config carries the settlement policy knobs.
type Config struct {
	// TransactionCeiling is the rolling spend ceiling in minor units.
	TransactionCeiling int64
	// CeilingWindow is the trailing window the ceiling is summed over.
	CeilingWindow time.Duration
	// LockTimeout bounds the locked critical section. Expiry cancels the
	// database transaction, whose rollback releases the wallet locks.
	LockTimeout time.Duration
}

// Settlement orchestrates POS purchases: validation, fee and commission
// computation, wallet locking, ledger writes and balance mutation as one
// unit.
type Settlement struct {
	store domain.Store
	fees  domain.FeeLookup
	codes domain.CodeGenerator
	log   *zap.Logger
	cfg   Config
}

func NewSettlement(store domain.Store, fees domain.FeeLookup, codes domain.CodeGenerator, log *zap.Logger, cfg Config) *Settlement {
	return &Settlement{store: store, fees: fees, codes: codes, log: log, cfg: cfg}
}

// PurchaseRequest is what the POS device submits.
type PurchaseRequest struct {
	TerminalNumber string
	MerchantNumber string
	CardNumber     string
	Password       string
	Amount         int64
	Kind           domain.PurchaseKind
}

// PurchaseResult is the accepted-settlement response.
type PurchaseResult struct {
	Amount int64
	Code   string
	Fee    int64
	Time   time.Time
}

// party bundles one participant's wallet, settlement card and aggregates.
// funding is the aggregate of the purchase's value type; for a DIRECT
// purchase it is the same object as cash.
type party struct {
	wallet  *domain.Wallet
	card    *domain.Card
	cash    *domain.Account
	funding *domain.Account
}

// settlementContext is everything steps 1-6 resolve, handed to the locked
// critical section.
type settlementContext struct {
	req      PurchaseRequest
	vt       domain.ValueType
	payer    *party
	merchant *party
	agent    *party
	parent   *party // nil when the agent has no parent
	platform *party
	split    Split
	userFee  int64
	merchFee int64
}

// Purchase runs one POS purchase end to end. Any error raised during
// validation leaves zero side effects; any error after the wallets are
// locked rolls back, releases the locks, records a FAILED marker and
// surfaces ErrTechnicalProblem.
func (s *Settlement) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	sc, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, sc, nil)
}

// validate performs steps 1-6: terminal/merchant/card checks, the rolling
// ceiling, party resolution, fee and split computation, and affordability
// preconditions. No writes happen here.
func (s *Settlement) validate(ctx context.Context, req PurchaseRequest) (*settlementContext, error) {
	if !req.Kind.IsValid() || req.Amount <= 0 {
		return nil, domain.ErrIncorrectData
	}
	vt := req.Kind.ValueType()

	merchant, card, wallet, err := s.checkCardAtTerminal(ctx, req.TerminalNumber, req.MerchantNumber, req.CardNumber, req.Password)
	if err != nil {
		return nil, err
	}

	// Rolling transaction ceiling over the trailing window.
	since := time.Now().Add(-s.cfg.CeilingWindow)
	spent, err := s.store.Transactions().RowTotalSince(ctx, card.ID, since)
	if err != nil {
		return nil, fmt.Errorf("ceiling lookup: %w", err)
	}
	if spent+req.Amount > s.cfg.TransactionCeiling {
		return nil, domain.ErrTransactionLimit
	}

	agent, err := s.store.Agents().FindByID(ctx, merchant.AgentID)
	if err != nil {
		return nil, err
	}

	sc := &settlementContext{req: req, vt: vt}

	sc.payer, err = s.partyForWallet(ctx, wallet, card, vt)
	if err != nil {
		return nil, err
	}
	sc.merchant, err = s.partyForUser(ctx, merchant.UserID, vt)
	if err != nil {
		return nil, err
	}
	sc.agent, err = s.partyForUser(ctx, agent.UserID, vt)
	if err != nil {
		return nil, err
	}

	var parentRate *int
	if agent.ParentID != nil {
		parent, err := s.store.Agents().FindByID(ctx, *agent.ParentID)
		if err != nil {
			return nil, err
		}
		sc.parent, err = s.partyForUser(ctx, parent.UserID, vt)
		if err != nil {
			return nil, err
		}
		parentRate = &parent.ProfitRate
	}

	platformUser, err := s.store.Users().Platform(ctx)
	if err != nil {
		return nil, err
	}
	sc.platform, err = s.partyForUser(ctx, platformUser.ID, vt)
	if err != nil {
		return nil, err
	}

	sc.userFee, err = s.fees.Calculate(ctx, req.Amount, vt, domain.UserTypeUser)
	if err != nil {
		return nil, fmt.Errorf("user fee: %w", err)
	}
	sc.merchFee, err = s.fees.Calculate(ctx, req.Amount, vt, domain.UserTypeMerchant)
	if err != nil {
		return nil, fmt.Errorf("merchant fee: %w", err)
	}

	sc.split, err = ComputeSplit(req.Amount, merchant.ProfitRate, agent.ProfitRate, parentRate, CashBackRate(merchant, card))
	if err != nil {
		return nil, err
	}

	// Affordability preconditions. The guarded debits inside the locked
	// section re-enforce these under concurrency; failing here keeps the
	// attempt free of side effects.
	if sc.merchant.cash.Balance < sc.merchFee {
		return nil, domain.ErrMerchantLackOfMoney
	}
	switch req.Kind {
	case domain.PurchaseDirect:
		if sc.payer.cash.Balance < req.Amount+sc.userFee {
			return nil, domain.ErrLackOfMoney
		}
	case domain.PurchaseCredit:
		if sc.payer.funding.Balance < req.Amount {
			return nil, domain.ErrLackOfCredit
		}
		if sc.payer.cash.Balance < sc.userFee {
			return nil, domain.ErrLackOfMoney
		}
	}

	return sc, nil
}

// checkCardAtTerminal resolves the terminal, its merchant and the card,
// and verifies merchant number, card expiry, password and the advisory
// wallet lock. Shared by purchase and balance inquiry.
func (s *Settlement) checkCardAtTerminal(ctx context.Context, terminalNumber, merchantNumber, cardNumber, password string) (*domain.Merchant, *domain.Card, *domain.Wallet, error) {
	terminal, err := s.store.Terminals().FindByNumber(ctx, terminalNumber)
	if err != nil {
		return nil, nil, nil, err
	}
	merchant, err := s.store.Merchants().FindByID(ctx, terminal.MerchantID)
	if err != nil {
		return nil, nil, nil, err
	}
	if merchant.Number != merchantNumber {
		return nil, nil, nil, domain.ErrMerchantNotFound
	}

	card, err := s.store.Cards().ActiveByNumber(ctx, cardNumber)
	if err != nil {
		return nil, nil, nil, err
	}
	now := time.Now()
	if card.ExpirationAt.Before(now) {
		return nil, nil, nil, domain.ErrCardExpired
	}
	if !verifyCardPassword(card, password, now) {
		return nil, nil, nil, domain.ErrCardPasswordInvalid
	}

	wallet, err := s.store.Wallets().FindByID(ctx, card.WalletID)
	if err != nil {
		return nil, nil, nil, err
	}
	if wallet.IsLock {
		return nil, nil, nil, domain.ErrWalletLocked
	}
	return merchant, card, wallet, nil
}

// verifyCardPassword accepts either the current dynamic password, when one
// is set and unexpired, or the card's static password.
func verifyCardPassword(card *domain.Card, password string, now time.Time) bool {
	if card.DynamicPassword != "" && card.DynamicExpiresAt != nil && now.Before(*card.DynamicExpiresAt) {
		if password == card.DynamicPassword {
			return true
		}
	}
	return bcrypt.CompareHashAndPassword([]byte(card.PasswordHash), []byte(password)) == nil
}

// partyForUser resolves a participant from its user id: wallet, the
// single active settlement card, and the cash plus funding aggregates.
func (s *Settlement) partyForUser(ctx context.Context, userID uint64, vt domain.ValueType) (*party, error) {
	wallet, err := s.store.Wallets().FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	card, err := s.store.Cards().ActiveForWallet(ctx, wallet.ID, domain.ValueCash)
	if err != nil {
		// Fall back to the credit-class card for wallets that only
		// carry one.
		card, err = s.store.Cards().ActiveForWallet(ctx, wallet.ID, domain.ValueCredit)
		if err != nil {
			return nil, err
		}
	}
	return s.partyForWallet(ctx, wallet, card, vt)
}

func (s *Settlement) partyForWallet(ctx context.Context, wallet *domain.Wallet, card *domain.Card, vt domain.ValueType) (*party, error) {
	cash, err := s.store.Accounts().ForUser(ctx, wallet.UserID, domain.ValueCash)
	if err != nil {
		return nil, err
	}
	funding := cash
	if vt == domain.ValueCredit {
		funding, err = s.store.Accounts().ForUser(ctx, wallet.UserID, domain.ValueCredit)
		if err != nil {
			return nil, err
		}
	}
	return &party{wallet: wallet, card: card, cash: cash, funding: funding}, nil
}

// settle runs steps 7-11 inside one store transaction, bounded by the lock
// timeout, retrying only on generated-code collisions. extra, when set,
// appends further writes (installment schedules) to the same transaction.
func (s *Settlement) settle(ctx context.Context, sc *settlementContext, extra func(domain.Store, *domain.Transaction) error) (*PurchaseResult, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		txn, err := s.buildTransaction(ctx, sc)
		if err != nil {
			s.log.Error("settlement aborted before locking",
				zap.String("state", string(stateAborted)), zap.Error(err))
			return nil, domain.ErrTechnicalProblem
		}

		lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
		err = s.store.Atomic(lockCtx, func(tx domain.Store) error {
			return s.applySettlement(lockCtx, tx, sc, txn, extra)
		})
		cancel()

		if err == nil {
			s.log.Info("settlement accepted",
				zap.String("state", string(stateUnlocked)),
				zap.String("code", txn.Code),
				zap.Int64("amount", sc.req.Amount),
				zap.String("value_type", string(sc.vt)))
			return &PurchaseResult{
				Amount: sc.req.Amount,
				Code:   txn.Code,
				Fee:    sc.userFee,
				Time:   txn.CreatedAt,
			}, nil
		}

		if errors.Is(err, domain.ErrDuplicateCode) {
			s.log.Warn("transaction code collision, regenerating",
				zap.Int("attempt", attempt+1))
			continue
		}

		// Typed precondition errors re-detected under lock (lock
		// contention, guarded debits) rolled back cleanly and are safe
		// to surface as-is.
		if de := domain.AsDomain(err); de != nil && de.Retryable() {
			return nil, de
		}

		// Anything else is fatal to the attempt: rollback already
		// restored the locks; record the failure so it is not silently
		// dropped.
		s.log.Error("settlement failed in critical section",
			zap.String("state", string(stateFailedRollback)),
			zap.String("code", txn.Code),
			zap.Error(err))
		s.markFailed(sc)
		return nil, domain.ErrTechnicalProblem
	}

	s.markFailed(sc)
	return nil, domain.ErrTechnicalProblem
}

// buildTransaction generates all codes and assembles the parent plus its
// rows before any lock is taken. Zero-value legs are omitted; the
// purchase principal row is always present.
func (s *Settlement) buildTransaction(ctx context.Context, sc *settlementContext) (*domain.Transaction, error) {
	code, err := s.codes.Next(ctx)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		Value:     sc.req.Amount,
		ValueType: sc.vt,
		Code:      code,
		Status:    domain.StatusAccepted,
		CreatedAt: time.Now(),
	}

	type leg struct {
		from   *party
		to     *party
		value  int64
		reason domain.RowReason
	}
	legs := []leg{
		{sc.payer, sc.merchant, sc.req.Amount, domain.ReasonPurchase},
		{sc.merchant, sc.platform, sc.merchFee, domain.ReasonFee},
		{sc.payer, sc.platform, sc.userFee, domain.ReasonFee},
		{sc.merchant, sc.platform, sc.split.ContractAmount, domain.ReasonContract},
		{sc.merchant, sc.platform, sc.split.PlatformProfit, domain.ReasonProfit},
		{sc.platform, sc.agent, sc.split.AgentProfit, domain.ReasonProfit},
	}
	if sc.parent != nil {
		legs = append(legs, leg{sc.platform, sc.parent, sc.split.AgentParentProfit, domain.ReasonProfit})
	}
	legs = append(legs, leg{sc.platform, sc.payer, sc.split.CashBackValue, domain.ReasonCashBack})

	for _, l := range legs {
		if l.value == 0 && l.reason != domain.ReasonPurchase {
			continue
		}
		rowCode, err := s.codes.Next(ctx)
		if err != nil {
			return nil, err
		}
		txn.Rows = append(txn.Rows, domain.TransactionRow{
			TransferorCardID: l.from.card.ID,
			ReceiverCardID:   l.to.card.ID,
			Value:            l.value,
			Reason:           l.reason,
			Code:             rowCode,
			CreatedAt:        txn.CreatedAt,
		})
	}
	return txn, nil
}

// applySettlement is the locked critical section: lock both wallets, write
// the ledger, mutate every party's aggregates, then clear the advisory
// flags. Runs entirely inside one store transaction.
func (s *Settlement) applySettlement(ctx context.Context, tx domain.Store, sc *settlementContext, txn *domain.Transaction, extra func(domain.Store, *domain.Transaction) error) error {
	lockIDs := []uint64{sc.payer.wallet.ID}
	if sc.merchant.wallet.ID != sc.payer.wallet.ID {
		lockIDs = append(lockIDs, sc.merchant.wallet.ID)
	}
	if _, err := tx.Wallets().LockForSettlement(ctx, lockIDs...); err != nil {
		return err
	}

	if err := tx.Transactions().CreateWithRows(ctx, txn); err != nil {
		return err
	}

	accounts := tx.Accounts()
	split := sc.split
	amount := sc.req.Amount

	// Payer: principal from the funding aggregate, fee from cash,
	// cash-back to the funding aggregate's back field.
	lackErr := domain.ErrLackOfMoney
	if sc.vt == domain.ValueCredit {
		lackErr = domain.ErrLackOfCredit
	}
	if err := mapInsufficient(accounts.ApplyDelta(ctx, sc.payer.funding.ID, domain.FieldBalance, -amount), lackErr); err != nil {
		return err
	}
	if err := accounts.ApplyDelta(ctx, sc.payer.funding.ID, domain.FieldConsumed, amount); err != nil {
		return err
	}
	if sc.userFee > 0 {
		if err := mapInsufficient(accounts.ApplyDelta(ctx, sc.payer.cash.ID, domain.FieldBalance, -sc.userFee), domain.ErrLackOfMoney); err != nil {
			return err
		}
		if err := accounts.ApplyDelta(ctx, sc.payer.cash.ID, domain.FieldConsumed, sc.userFee); err != nil {
			return err
		}
	}
	if split.CashBackValue > 0 {
		if err := accounts.ApplyDelta(ctx, sc.payer.funding.ID, domain.FieldCashBack, split.CashBackValue); err != nil {
			return err
		}
	}

	// Merchant: fee out of cash, profit into the funding aggregate,
	// contract amount tracked as transferred.
	if sc.merchFee > 0 {
		if err := mapInsufficient(accounts.ApplyDelta(ctx, sc.merchant.cash.ID, domain.FieldBalance, -sc.merchFee), domain.ErrMerchantLackOfMoney); err != nil {
			return err
		}
		if err := accounts.ApplyDelta(ctx, sc.merchant.cash.ID, domain.FieldConsumed, sc.merchFee); err != nil {
			return err
		}
	}
	if split.MerchantProfit > 0 {
		if err := accounts.ApplyDelta(ctx, sc.merchant.funding.ID, domain.FieldBalance, split.MerchantProfit); err != nil {
			return err
		}
		if err := accounts.ApplyDelta(ctx, sc.merchant.funding.ID, domain.FieldReceived, split.MerchantProfit); err != nil {
			return err
		}
	}
	if split.ContractAmount > 0 {
		if err := accounts.ApplyDelta(ctx, sc.merchant.funding.ID, domain.FieldTransferred, split.ContractAmount); err != nil {
			return err
		}
	}

	// Agent chain.
	if split.AgentProfit > 0 {
		if err := creditParty(ctx, accounts, sc.agent, split.AgentProfit); err != nil {
			return err
		}
	}
	if sc.parent != nil && split.AgentParentProfit > 0 {
		if err := creditParty(ctx, accounts, sc.parent, split.AgentParentProfit); err != nil {
			return err
		}
	}

	// Platform: its profit leg plus both fees.
	if split.PlatformProfit > 0 {
		if err := creditParty(ctx, accounts, sc.platform, split.PlatformProfit); err != nil {
			return err
		}
	}
	fees := sc.userFee + sc.merchFee
	if fees > 0 {
		if err := accounts.ApplyDelta(ctx, sc.platform.cash.ID, domain.FieldBalance, fees); err != nil {
			return err
		}
		if err := accounts.ApplyDelta(ctx, sc.platform.cash.ID, domain.FieldReceived, fees); err != nil {
			return err
		}
	}

	if err := s.applyWalletMirrors(ctx, tx, sc); err != nil {
		return err
	}

	if extra != nil {
		if err := extra(tx, txn); err != nil {
			return err
		}
	}

	return tx.Wallets().Unlock(ctx, lockIDs...)
}

// creditParty credits a profit share into a party's funding aggregate.
func creditParty(ctx context.Context, accounts domain.AccountRepository, p *party, value int64) error {
	if err := accounts.ApplyDelta(ctx, p.funding.ID, domain.FieldBalance, value); err != nil {
		return err
	}
	return accounts.ApplyDelta(ctx, p.funding.ID, domain.FieldReceived, value)
}

// applyWalletMirrors keeps the legacy denormalized wallet balances in step
// with the aggregates. The aggregates stay authoritative.
func (s *Settlement) applyWalletMirrors(ctx context.Context, tx domain.Store, sc *settlementContext) error {
	type mirror struct {
		walletID uint64
		kind     domain.ValueType
		delta    int64
	}
	mirrors := []mirror{
		{sc.payer.wallet.ID, sc.vt, -sc.req.Amount},
		{sc.payer.wallet.ID, domain.ValueCash, -sc.userFee},
		{sc.merchant.wallet.ID, domain.ValueCash, -sc.merchFee},
		{sc.merchant.wallet.ID, sc.vt, sc.split.MerchantProfit},
		{sc.agent.wallet.ID, sc.vt, sc.split.AgentProfit},
		{sc.platform.wallet.ID, sc.vt, sc.split.PlatformProfit},
		{sc.platform.wallet.ID, domain.ValueCash, sc.userFee + sc.merchFee},
	}
	if sc.parent != nil {
		mirrors = append(mirrors, mirror{sc.parent.wallet.ID, sc.vt, sc.split.AgentParentProfit})
	}
	for _, m := range mirrors {
		if m.delta == 0 {
			continue
		}
		if err := tx.Wallets().ApplyBalanceDelta(ctx, m.walletID, m.kind, m.delta); err != nil {
			return err
		}
	}
	return nil
}

// markFailed records a FAILED marker transaction in a fresh transaction so
// the attempt is auditable even after the settlement rolled back. Best
// effort: a marker failure is logged, not surfaced.
func (s *Settlement) markFailed(sc *settlementContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	code, err := s.codes.Next(ctx)
	if err != nil {
		s.log.Error("failed-marker code generation failed", zap.Error(err))
		return
	}
	marker := &domain.Transaction{
		Value:     sc.req.Amount,
		ValueType: sc.vt,
		Code:      code,
		Status:    domain.StatusFailed,
		CreatedAt: time.Now(),
	}
	if err := s.store.Transactions().Create(ctx, marker); err != nil {
		s.log.Error("failed-marker write failed", zap.Error(err))
	}
}

func mapInsufficient(err error, mapped *domain.Error) error {
	if errors.Is(err, domain.ErrInsufficientBalance) {
		return mapped
	}
	return err
}
