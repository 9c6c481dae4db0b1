package repo

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// Store is the GORM-backed implementation of domain.Store. A Store holds
// either the root *gorm.DB or, inside Atomic, the transaction handle, so
// every repository automatically participates in the enclosing
// transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomic(ctx context.Context, fn func(domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Users() domain.UserRepository                 { return &userRepo{db: s.db} }
func (s *Store) Wallets() domain.WalletRepository             { return &walletRepo{db: s.db} }
func (s *Store) Cards() domain.CardRepository                 { return &cardRepo{db: s.db} }
func (s *Store) Accounts() domain.AccountRepository           { return &accountRepo{db: s.db} }
func (s *Store) Agents() domain.AgentRepository               { return &agentRepo{db: s.db} }
func (s *Store) Merchants() domain.MerchantRepository         { return &merchantRepo{db: s.db} }
func (s *Store) Terminals() domain.TerminalRepository         { return &terminalRepo{db: s.db} }
func (s *Store) Transactions() domain.TransactionRepository   { return &transactionRepo{db: s.db} }
func (s *Store) Installments() domain.InstallmentRepository   { return &installmentRepo{db: s.db} }

// notFound maps gorm's record-not-found to the given domain error.
func notFound(err error, domErr *domain.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domErr
	}
	return err
}

// ---------------------------------------------------------

type userRepo struct{ db *gorm.DB }

func (r *userRepo) FindByID(ctx context.Context, id uint64) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, domain.ErrIncorrectData)
	}
	return &u, nil
}

func (r *userRepo) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&u).Error; err != nil {
		return nil, notFound(err, domain.ErrIncorrectData)
	}
	return &u, nil
}

func (r *userRepo) Platform(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("is_platform = ?", true).First(&u).Error; err != nil {
		return nil, notFound(err, domain.ErrIncorrectData)
	}
	return &u, nil
}

// ---------------------------------------------------------

type walletRepo struct{ db *gorm.DB }

func (r *walletRepo) FindByID(ctx context.Context, id uint64) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.db.WithContext(ctx).First(&w, id).Error; err != nil {
		return nil, notFound(err, domain.ErrWalletNotFound)
	}
	return &w, nil
}

func (r *walletRepo) FindByUserID(ctx context.Context, userID uint64) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, notFound(err, domain.ErrWalletNotFound)
	}
	return &w, nil
}

// LockForSettlement takes SELECT ... FOR UPDATE locks in ascending id
// order so two settlements sharing wallets always acquire in the same
// order. The advisory is_lock flag is set afterwards; a rollback of the
// enclosing transaction restores it, which is the unlock-on-failure
// guarantee.
func (r *walletRepo) LockForSettlement(ctx context.Context, ids ...uint64) ([]*domain.Wallet, error) {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var wallets []*domain.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	if len(wallets) != len(sorted) {
		return nil, domain.ErrWalletNotFound
	}
	for _, w := range wallets {
		if w.IsLock {
			return nil, domain.ErrWalletLocked
		}
	}

	err = r.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id IN ?", sorted).
		Update("is_lock", true).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *walletRepo) Unlock(ctx context.Context, ids ...uint64) error {
	return r.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id IN ?", ids).
		Update("is_lock", false).Error
}

func (r *walletRepo) ApplyBalanceDelta(ctx context.Context, id uint64, kind domain.ValueType, delta int64) error {
	col := "cash_balance"
	if kind == domain.ValueCredit {
		col = "credit_balance"
	}
	res := r.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id = ?", id).
		Update(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// ---------------------------------------------------------

type cardRepo struct{ db *gorm.DB }

func (r *cardRepo) FindByID(ctx context.Context, id uint64) (*domain.Card, error) {
	var c domain.Card
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, domain.ErrCardNotFound)
	}
	return &c, nil
}

func (r *cardRepo) ActiveByNumber(ctx context.Context, number string) (*domain.Card, error) {
	var c domain.Card
	err := r.db.WithContext(ctx).
		Where("number = ? AND is_active = ?", number, true).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, domain.ErrCardNotFound)
	}
	return &c, nil
}

func (r *cardRepo) ActiveForWallet(ctx context.Context, walletID uint64, class domain.ValueType) (*domain.Card, error) {
	types := []domain.CardType{domain.CardBlue, domain.CardGold, domain.CardPlatinum}
	if class == domain.ValueCredit {
		types = []domain.CardType{domain.CardCredit}
	}
	var c domain.Card
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND is_active = ? AND type IN ?", walletID, true, types).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, domain.ErrCardNotFound)
	}
	return &c, nil
}

func (r *cardRepo) Create(ctx context.Context, card *domain.Card) error {
	err := r.db.WithContext(ctx).Create(card).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

// ---------------------------------------------------------

type accountRepo struct{ db *gorm.DB }

func (r *accountRepo) ForUser(ctx context.Context, userID uint64, kind domain.ValueType) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		First(&a).Error
	if err != nil {
		return nil, notFound(err, domain.ErrWalletNotFound)
	}
	return &a, nil
}

// ApplyDelta performs the database-side add so concurrent settlements
// against unlocked accounts (agents, platform) stay correct. Debits on the
// balance field carry a sufficiency guard in the WHERE clause; zero rows
// affected means the guard failed, never a partial write.
func (r *accountRepo) ApplyDelta(ctx context.Context, accountID uint64, field domain.BalanceField, delta int64) error {
	if !field.IsValid() {
		return domain.ErrIncorrectData
	}
	col := string(field)

	q := r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", accountID)
	if field == domain.FieldBalance && delta < 0 {
		q = q.Where(col+" >= ?", -delta)
	}
	res := q.Update(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// ---------------------------------------------------------

type agentRepo struct{ db *gorm.DB }

func (r *agentRepo) FindByID(ctx context.Context, id uint64) (*domain.Agent, error) {
	var a domain.Agent
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err, domain.ErrMerchantNotFound)
	}
	return &a, nil
}

// ---------------------------------------------------------

type merchantRepo struct{ db *gorm.DB }

func (r *merchantRepo) FindByID(ctx context.Context, id uint64) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, domain.ErrMerchantNotFound)
	}
	return &m, nil
}

func (r *merchantRepo) FindByNumber(ctx context.Context, number string) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := r.db.WithContext(ctx).Where("number = ?", number).First(&m).Error; err != nil {
		return nil, notFound(err, domain.ErrMerchantNotFound)
	}
	return &m, nil
}

// ---------------------------------------------------------

type terminalRepo struct{ db *gorm.DB }

func (r *terminalRepo) FindByNumber(ctx context.Context, number string) (*domain.Terminal, error) {
	var t domain.Terminal
	if err := r.db.WithContext(ctx).Where("number = ?", number).First(&t).Error; err != nil {
		return nil, notFound(err, domain.ErrTerminalNotFound)
	}
	return &t, nil
}

// ---------------------------------------------------------

type transactionRepo struct{ db *gorm.DB }

func (r *transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	err := r.db.WithContext(ctx).Omit("Rows").Create(t).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *transactionRepo) CreateWithRows(ctx context.Context, t *domain.Transaction) error {
	// GORM cascades the row inserts from the association.
	err := r.db.WithContext(ctx).Create(t).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *transactionRepo) FindByCode(ctx context.Context, code string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).
		Preload("Rows").
		Where("code = ?", code).
		First(&t).Error
	if err != nil {
		return nil, notFound(err, domain.ErrIncorrectData)
	}
	return &t, nil
}

func (r *transactionRepo) RowTotalSince(ctx context.Context, cardID uint64, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.TransactionRow{}).
		Select("COALESCE(SUM(value), 0)").
		Where("transferor_card_id = ? AND reason = ? AND created_at >= ?", cardID, domain.ReasonPurchase, since).
		Scan(&total).Error
	return total, err
}

// ---------------------------------------------------------

type installmentRepo struct{ db *gorm.DB }

func (r *installmentRepo) CreateAll(ctx context.Context, installments []*domain.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&installments).Error
}
