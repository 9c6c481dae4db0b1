package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// memStore is an in-memory domain.Store for the settlement tests. Atomic
// serializes on one mutex and restores a snapshot on error, mirroring the
// commit/rollback contract of the SQL store. Repositories obtained from
// the root store lock per call; repositories obtained inside Atomic run
// under the already-held lock.
type memStore struct {
	mu   sync.Mutex
	data *memData

	// failpoints
	failCreateWithRows error
}

type memData struct {
	users        map[uint64]*domain.User
	wallets      map[uint64]*domain.Wallet
	cards        map[uint64]*domain.Card
	accounts     map[uint64]*domain.Account
	agents       map[uint64]*domain.Agent
	merchants    map[uint64]*domain.Merchant
	terminals    map[uint64]*domain.Terminal
	transactions map[uint64]*domain.Transaction
	installments map[uint64]*domain.Installment
	usedCodes    map[string]bool
	nextID       uint64
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		users:        make(map[uint64]*domain.User),
		wallets:      make(map[uint64]*domain.Wallet),
		cards:        make(map[uint64]*domain.Card),
		accounts:     make(map[uint64]*domain.Account),
		agents:       make(map[uint64]*domain.Agent),
		merchants:    make(map[uint64]*domain.Merchant),
		terminals:    make(map[uint64]*domain.Terminal),
		transactions: make(map[uint64]*domain.Transaction),
		installments: make(map[uint64]*domain.Installment),
		usedCodes:    make(map[string]bool),
	}}
}

// acquire locks unless the call already runs inside Atomic.
func (s *memStore) acquire(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) id() uint64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *memStore) snapshot() *memData {
	d := s.data
	c := &memData{
		users:        make(map[uint64]*domain.User, len(d.users)),
		wallets:      make(map[uint64]*domain.Wallet, len(d.wallets)),
		cards:        make(map[uint64]*domain.Card, len(d.cards)),
		accounts:     make(map[uint64]*domain.Account, len(d.accounts)),
		agents:       make(map[uint64]*domain.Agent, len(d.agents)),
		merchants:    make(map[uint64]*domain.Merchant, len(d.merchants)),
		terminals:    make(map[uint64]*domain.Terminal, len(d.terminals)),
		transactions: make(map[uint64]*domain.Transaction, len(d.transactions)),
		installments: make(map[uint64]*domain.Installment, len(d.installments)),
		usedCodes:    make(map[string]bool, len(d.usedCodes)),
		nextID:       d.nextID,
	}
	for k, v := range d.users {
		cp := *v
		c.users[k] = &cp
	}
	for k, v := range d.wallets {
		cp := *v
		c.wallets[k] = &cp
	}
	for k, v := range d.cards {
		cp := *v
		c.cards[k] = &cp
	}
	for k, v := range d.accounts {
		cp := *v
		c.accounts[k] = &cp
	}
	for k, v := range d.agents {
		cp := *v
		c.agents[k] = &cp
	}
	for k, v := range d.merchants {
		cp := *v
		c.merchants[k] = &cp
	}
	for k, v := range d.terminals {
		cp := *v
		c.terminals[k] = &cp
	}
	for k, v := range d.transactions {
		cp := *v
		cp.Rows = append([]domain.TransactionRow(nil), v.Rows...)
		c.transactions[k] = &cp
	}
	for k, v := range d.installments {
		cp := *v
		c.installments[k] = &cp
	}
	for k := range d.usedCodes {
		c.usedCodes[k] = true
	}
	return c
}

func (s *memStore) Atomic(ctx context.Context, fn func(domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.data = snap
		return err
	}
	return nil
}

func (s *memStore) Users() domain.UserRepository               { return &memUsers{s: s} }
func (s *memStore) Wallets() domain.WalletRepository           { return &memWallets{s: s} }
func (s *memStore) Cards() domain.CardRepository               { return &memCards{s: s} }
func (s *memStore) Accounts() domain.AccountRepository         { return &memAccounts{s: s} }
func (s *memStore) Agents() domain.AgentRepository             { return &memAgents{s: s} }
func (s *memStore) Merchants() domain.MerchantRepository       { return &memMerchants{s: s} }
func (s *memStore) Terminals() domain.TerminalRepository       { return &memTerminals{s: s} }
func (s *memStore) Transactions() domain.TransactionRepository { return &memTransactions{s: s} }
func (s *memStore) Installments() domain.InstallmentRepository { return &memInstallments{s: s} }

// memTx is the view handed to Atomic callbacks: same data, lock held.
type memTx struct{ s *memStore }

func (t *memTx) Atomic(ctx context.Context, fn func(domain.Store) error) error {
	return fn(t)
}

func (t *memTx) Users() domain.UserRepository               { return &memUsers{s: t.s, tx: true} }
func (t *memTx) Wallets() domain.WalletRepository           { return &memWallets{s: t.s, tx: true} }
func (t *memTx) Cards() domain.CardRepository               { return &memCards{s: t.s, tx: true} }
func (t *memTx) Accounts() domain.AccountRepository         { return &memAccounts{s: t.s, tx: true} }
func (t *memTx) Agents() domain.AgentRepository             { return &memAgents{s: t.s, tx: true} }
func (t *memTx) Merchants() domain.MerchantRepository       { return &memMerchants{s: t.s, tx: true} }
func (t *memTx) Terminals() domain.TerminalRepository       { return &memTerminals{s: t.s, tx: true} }
func (t *memTx) Transactions() domain.TransactionRepository { return &memTransactions{s: t.s, tx: true} }
func (t *memTx) Installments() domain.InstallmentRepository { return &memInstallments{s: t.s, tx: true} }

// ---------------------------------------------------------

type memUsers struct {
	s  *memStore
	tx bool
}

func (r *memUsers) FindByID(ctx context.Context, id uint64) (*domain.User, error) {
	defer r.s.acquire(r.tx)()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, domain.ErrIncorrectData
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	defer r.s.acquire(r.tx)()
	for _, u := range r.s.data.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrIncorrectData
}

func (r *memUsers) Platform(ctx context.Context) (*domain.User, error) {
	defer r.s.acquire(r.tx)()
	for _, u := range r.s.data.users {
		if u.IsPlatform {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrIncorrectData
}

type memWallets struct {
	s  *memStore
	tx bool
}

func (r *memWallets) FindByID(ctx context.Context, id uint64) (*domain.Wallet, error) {
	defer r.s.acquire(r.tx)()
	w, ok := r.s.data.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *memWallets) FindByUserID(ctx context.Context, userID uint64) (*domain.Wallet, error) {
	defer r.s.acquire(r.tx)()
	for _, w := range r.s.data.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (r *memWallets) LockForSettlement(ctx context.Context, ids ...uint64) ([]*domain.Wallet, error) {
	defer r.s.acquire(r.tx)()
	var out []*domain.Wallet
	for _, id := range ids {
		w, ok := r.s.data.wallets[id]
		if !ok {
			return nil, domain.ErrWalletNotFound
		}
		if w.IsLock {
			return nil, domain.ErrWalletLocked
		}
		out = append(out, w)
	}
	for _, w := range out {
		w.IsLock = true
	}
	return out, nil
}

func (r *memWallets) Unlock(ctx context.Context, ids ...uint64) error {
	defer r.s.acquire(r.tx)()
	for _, id := range ids {
		if w, ok := r.s.data.wallets[id]; ok {
			w.IsLock = false
		}
	}
	return nil
}

func (r *memWallets) ApplyBalanceDelta(ctx context.Context, id uint64, kind domain.ValueType, delta int64) error {
	defer r.s.acquire(r.tx)()
	w, ok := r.s.data.wallets[id]
	if !ok {
		return domain.ErrWalletNotFound
	}
	if kind == domain.ValueCredit {
		w.CreditBalance += delta
	} else {
		w.CashBalance += delta
	}
	return nil
}

type memCards struct {
	s  *memStore
	tx bool
}

func (r *memCards) FindByID(ctx context.Context, id uint64) (*domain.Card, error) {
	defer r.s.acquire(r.tx)()
	c, ok := r.s.data.cards[id]
	if !ok {
		return nil, domain.ErrCardNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCards) ActiveByNumber(ctx context.Context, number string) (*domain.Card, error) {
	defer r.s.acquire(r.tx)()
	for _, c := range r.s.data.cards {
		if c.Number == number && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCardNotFound
}

func (r *memCards) ActiveForWallet(ctx context.Context, walletID uint64, class domain.ValueType) (*domain.Card, error) {
	defer r.s.acquire(r.tx)()
	for _, c := range r.s.data.cards {
		if c.WalletID == walletID && c.IsActive && c.Type.FundingClass() == class {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCardNotFound
}

func (r *memCards) Create(ctx context.Context, card *domain.Card) error {
	defer r.s.acquire(r.tx)()
	for _, c := range r.s.data.cards {
		if c.Number == card.Number {
			return domain.ErrDuplicateCode
		}
	}
	card.ID = r.s.id()
	cp := *card
	r.s.data.cards[card.ID] = &cp
	return nil
}

type memAccounts struct {
	s  *memStore
	tx bool
}

func (r *memAccounts) ForUser(ctx context.Context, userID uint64, kind domain.ValueType) (*domain.Account, error) {
	defer r.s.acquire(r.tx)()
	for _, a := range r.s.data.accounts {
		if a.UserID == userID && a.Kind == kind {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (r *memAccounts) ApplyDelta(ctx context.Context, accountID uint64, field domain.BalanceField, delta int64) error {
	defer r.s.acquire(r.tx)()
	a, ok := r.s.data.accounts[accountID]
	if !ok {
		return domain.ErrInsufficientBalance
	}
	if field == domain.FieldBalance && delta < 0 && a.Balance < -delta {
		return domain.ErrInsufficientBalance
	}
	switch field {
	case domain.FieldBalance:
		a.Balance += delta
	case domain.FieldReceived:
		a.Received += delta
	case domain.FieldConsumed:
		a.Consumed += delta
	case domain.FieldTransferred:
		a.Transferred += delta
	case domain.FieldDebt:
		a.Debt += delta
	case domain.FieldCashBack:
		a.CashBack += delta
	default:
		return domain.ErrIncorrectData
	}
	return nil
}

type memAgents struct {
	s  *memStore
	tx bool
}

func (r *memAgents) FindByID(ctx context.Context, id uint64) (*domain.Agent, error) {
	defer r.s.acquire(r.tx)()
	a, ok := r.s.data.agents[id]
	if !ok {
		return nil, domain.ErrMerchantNotFound
	}
	cp := *a
	return &cp, nil
}

type memMerchants struct {
	s  *memStore
	tx bool
}

func (r *memMerchants) FindByID(ctx context.Context, id uint64) (*domain.Merchant, error) {
	defer r.s.acquire(r.tx)()
	m, ok := r.s.data.merchants[id]
	if !ok {
		return nil, domain.ErrMerchantNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMerchants) FindByNumber(ctx context.Context, number string) (*domain.Merchant, error) {
	defer r.s.acquire(r.tx)()
	for _, m := range r.s.data.merchants {
		if m.Number == number {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrMerchantNotFound
}

type memTerminals struct {
	s  *memStore
	tx bool
}

func (r *memTerminals) FindByNumber(ctx context.Context, number string) (*domain.Terminal, error) {
	defer r.s.acquire(r.tx)()
	for _, t := range r.s.data.terminals {
		if t.Number == number {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTerminalNotFound
}

type memTransactions struct {
	s  *memStore
	tx bool
}

func (r *memTransactions) Create(ctx context.Context, t *domain.Transaction) error {
	defer r.s.acquire(r.tx)()
	if r.s.data.usedCodes[t.Code] {
		return domain.ErrDuplicateCode
	}
	t.ID = r.s.id()
	r.s.data.usedCodes[t.Code] = true
	cp := *t
	cp.Rows = nil
	r.s.data.transactions[t.ID] = &cp
	return nil
}

func (r *memTransactions) CreateWithRows(ctx context.Context, t *domain.Transaction) error {
	defer r.s.acquire(r.tx)()
	if r.s.failCreateWithRows != nil {
		return r.s.failCreateWithRows
	}
	if r.s.data.usedCodes[t.Code] {
		return domain.ErrDuplicateCode
	}
	for _, row := range t.Rows {
		if r.s.data.usedCodes[row.Code] {
			return domain.ErrDuplicateCode
		}
	}
	t.ID = r.s.id()
	r.s.data.usedCodes[t.Code] = true
	for i := range t.Rows {
		t.Rows[i].ID = r.s.id()
		t.Rows[i].TransactionID = t.ID
		r.s.data.usedCodes[t.Rows[i].Code] = true
	}
	cp := *t
	cp.Rows = append([]domain.TransactionRow(nil), t.Rows...)
	r.s.data.transactions[t.ID] = &cp
	return nil
}

func (r *memTransactions) FindByCode(ctx context.Context, code string) (*domain.Transaction, error) {
	defer r.s.acquire(r.tx)()
	for _, t := range r.s.data.transactions {
		if t.Code == code {
			cp := *t
			cp.Rows = append([]domain.TransactionRow(nil), t.Rows...)
			return &cp, nil
		}
	}
	return nil, domain.ErrIncorrectData
}

func (r *memTransactions) RowTotalSince(ctx context.Context, cardID uint64, since time.Time) (int64, error) {
	defer r.s.acquire(r.tx)()
	var total int64
	for _, t := range r.s.data.transactions {
		for _, row := range t.Rows {
			if row.TransferorCardID == cardID && row.Reason == domain.ReasonPurchase && !row.CreatedAt.Before(since) {
				total += row.Value
			}
		}
	}
	return total, nil
}

type memInstallments struct {
	s  *memStore
	tx bool
}

func (r *memInstallments) CreateAll(ctx context.Context, installments []*domain.Installment) error {
	defer r.s.acquire(r.tx)()
	for _, inst := range installments {
		inst.ID = r.s.id()
		cp := *inst
		r.s.data.installments[inst.ID] = &cp
	}
	return nil
}

// ---------------------------------------------------------

// seqCodes is a deterministic code generator: 9 followed by a counter.
type seqCodes struct {
	mu sync.Mutex
	n  int64
}

func (g *seqCodes) Next(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("9%012d", g.n), nil
}

// flatFees charges a fixed fee per party type, zero by default.
type flatFees struct {
	user     int64
	merchant int64
}

func (f *flatFees) Calculate(ctx context.Context, amount int64, vt domain.ValueType, ut domain.UserType) (int64, error) {
	if ut == domain.UserTypeMerchant {
		return f.merchant, nil
	}
	return f.user, nil
}
