package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

const testPassword = "1234"

// One bcrypt hash shared by every fixture card; MinCost keeps the suite
// fast.
var testPasswordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

type testParty struct {
	userID   uint64
	walletID uint64
	cardID   uint64
	cashID   uint64
	creditID uint64
}

// fixture is a fully provisioned settlement world: platform, an agent
// (optionally with a parent chain), a merchant with one terminal, and a
// paying cardholder.
type fixture struct {
	t     *testing.T
	store *memStore
	codes *seqCodes
	fees  *flatFees
	svc   *Settlement

	payer       testParty
	merchant    testParty
	agent       testParty
	parent      testParty
	grandparent testParty
	platform    testParty

	terminalNumber string
	merchantNumber string
	cardNumber     string
}

type fixtureOpts struct {
	payerCash       int64
	payerCredit     int64
	merchantCash    int64
	merchantRate    int
	agentRate       int
	parentRate      *int
	grandparentRate *int // implies parentRate
	cashBackRate    decimal.Decimal
	userFee         int64
	merchantFee     int64
	ceiling         int64
}

func defaultOpts() fixtureOpts {
	return fixtureOpts{
		payerCash:    1_000_000,
		payerCredit:  500_000,
		merchantCash: 100_000,
		merchantRate: 70,
		agentRate:    40,
		cashBackRate: decimal.Zero,
		ceiling:      400_000_000,
	}
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		store: newMemStore(),
		codes: &seqCodes{},
		fees:  &flatFees{user: opts.userFee, merchant: opts.merchantFee},
	}

	f.platform = f.addParty("platform", 0, 0, domain.CardGold, true)
	f.agent = f.addParty("agent", 0, 0, domain.CardGold, false)
	f.merchant = f.addParty("merchant", opts.merchantCash, 0, domain.CardBlue, false)
	f.payer = f.addParty("payer", opts.payerCash, opts.payerCredit, domain.CardBlue, false)

	var parentAgentID *uint64
	if opts.grandparentRate != nil || opts.parentRate != nil {
		var grandAgentID *uint64
		if opts.grandparentRate != nil {
			f.grandparent = f.addParty("grandparent", 0, 0, domain.CardGold, false)
			id := f.addAgent(f.grandparent.userID, *opts.grandparentRate, nil)
			grandAgentID = &id
		}
		rate := 0
		if opts.parentRate != nil {
			rate = *opts.parentRate
		}
		f.parent = f.addParty("parent", 0, 0, domain.CardGold, false)
		id := f.addAgent(f.parent.userID, rate, grandAgentID)
		parentAgentID = &id
	}
	agentID := f.addAgent(f.agent.userID, opts.agentRate, parentAgentID)

	d := f.store.data
	merchantID := f.store.id()
	f.merchantNumber = "M100"
	d.merchants[merchantID] = &domain.Merchant{
		ID:           merchantID,
		UserID:       f.merchant.userID,
		AgentID:      agentID,
		Number:       f.merchantNumber,
		ProfitRate:   opts.merchantRate,
		CashBackRate: opts.cashBackRate,
	}

	terminalID := f.store.id()
	f.terminalNumber = "T100"
	d.terminals[terminalID] = &domain.Terminal{
		ID:         terminalID,
		Number:     f.terminalNumber,
		MerchantID: merchantID,
	}

	f.cardNumber = d.cards[f.payer.cardID].Number

	f.svc = NewSettlement(f.store, f.fees, f.codes, zap.NewNop(), Config{
		TransactionCeiling: opts.ceiling,
		CeilingWindow:      44640 * time.Minute,
		LockTimeout:        2 * time.Second,
	})
	return f
}

func (f *fixture) addParty(name string, cash, credit int64, cardType domain.CardType, platform bool) testParty {
	d := f.store.data
	p := testParty{}

	p.userID = f.store.id()
	d.users[p.userID] = &domain.User{
		ID:         p.userID,
		Name:       name,
		Phone:      fmt.Sprintf("0912%07d", p.userID),
		Password:   testPasswordHash,
		IsPlatform: platform,
	}

	p.walletID = f.store.id()
	d.wallets[p.walletID] = &domain.Wallet{
		ID:            p.walletID,
		UserID:        p.userID,
		CashBalance:   cash,
		CreditBalance: credit,
	}

	p.cashID = f.store.id()
	d.accounts[p.cashID] = &domain.Account{
		ID: p.cashID, UserID: p.userID, Kind: domain.ValueCash, Balance: cash,
	}
	p.creditID = f.store.id()
	d.accounts[p.creditID] = &domain.Account{
		ID: p.creditID, UserID: p.userID, Kind: domain.ValueCredit, Balance: credit,
	}

	number, err := domain.GenerateCardNumber("621986")
	if err != nil {
		f.t.Fatalf("generate card number: %v", err)
	}
	p.cardID = f.store.id()
	d.cards[p.cardID] = &domain.Card{
		ID:           p.cardID,
		Number:       number,
		Type:         cardType,
		PasswordHash: testPasswordHash,
		ExpirationAt: time.Now().Add(365 * 24 * time.Hour),
		IsActive:     true,
		WalletID:     p.walletID,
	}
	return p
}

func (f *fixture) addAgent(userID uint64, rate int, parentID *uint64) uint64 {
	id := f.store.id()
	f.store.data.agents[id] = &domain.Agent{
		ID:         id,
		UserID:     userID,
		ParentID:   parentID,
		ProfitRate: rate,
	}
	return id
}

func (f *fixture) purchaseReq(amount int64, kind domain.PurchaseKind) PurchaseRequest {
	return PurchaseRequest{
		TerminalNumber: f.terminalNumber,
		MerchantNumber: f.merchantNumber,
		CardNumber:     f.cardNumber,
		Password:       testPassword,
		Amount:         amount,
		Kind:           kind,
	}
}

func (f *fixture) account(id uint64) *domain.Account {
	f.t.Helper()
	a, ok := f.store.data.accounts[id]
	if !ok {
		f.t.Fatalf("account %d missing", id)
	}
	return a
}

func (f *fixture) wallet(id uint64) *domain.Wallet {
	f.t.Helper()
	w, ok := f.store.data.wallets[id]
	if !ok {
		f.t.Fatalf("wallet %d missing", id)
	}
	return w
}

// fingerprint summarizes all mutable state, for zero-mutation assertions.
func (f *fixture) fingerprint() string {
	out := ""
	for id := uint64(1); id <= f.store.data.nextID; id++ {
		if a, ok := f.store.data.accounts[id]; ok {
			out += fmt.Sprintf("a%d:%d,%d,%d,%d,%d,%d;", id, a.Balance, a.Received, a.Consumed, a.Transferred, a.Debt, a.CashBack)
		}
		if w, ok := f.store.data.wallets[id]; ok {
			out += fmt.Sprintf("w%d:%d,%d,%v;", id, w.CashBalance, w.CreditBalance, w.IsLock)
		}
	}
	out += fmt.Sprintf("txns:%d;insts:%d", len(f.store.data.transactions), len(f.store.data.installments))
	return out
}

// rowsByReason indexes the rows of the single transaction with the given
// code.
func (f *fixture) rowsByReason(code string) map[domain.RowReason][]domain.TransactionRow {
	f.t.Helper()
	for _, txn := range f.store.data.transactions {
		if txn.Code == code {
			out := make(map[domain.RowReason][]domain.TransactionRow)
			for _, row := range txn.Rows {
				out[row.Reason] = append(out[row.Reason], row)
			}
			return out
		}
	}
	f.t.Fatalf("transaction %s not found", code)
	return nil
}
