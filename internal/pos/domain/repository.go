package domain

import (
	"context"
	"time"
)

// Store aggregates the repository ports. Atomic runs fn against a store
// bound to one database transaction: every write inside either commits as
// a unit or rolls back as a unit. Row locks taken inside are released on
// both paths.
type Store interface {
	Users() UserRepository
	Wallets() WalletRepository
	Cards() CardRepository
	Accounts() AccountRepository
	Agents() AgentRepository
	Merchants() MerchantRepository
	Terminals() TerminalRepository
	Transactions() TransactionRepository
	Installments() InstallmentRepository

	Atomic(ctx context.Context, fn func(Store) error) error
}

type UserRepository interface {
	FindByID(ctx context.Context, id uint64) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	// Platform resolves the admin account that collects fees and
	// platform profit.
	Platform(ctx context.Context) (*User, error)
}

type WalletRepository interface {
	FindByID(ctx context.Context, id uint64) (*Wallet, error)
	FindByUserID(ctx context.Context, userID uint64) (*Wallet, error)
	// LockForSettlement takes row locks on the given wallets (ascending
	// id order, so concurrent settlements cannot deadlock) and marks
	// them is_lock=true. Must be called inside Atomic; the row locks
	// live until commit or rollback. Returns ErrWalletLocked if any
	// wallet is already flagged.
	LockForSettlement(ctx context.Context, ids ...uint64) ([]*Wallet, error)
	// Unlock clears is_lock. Called as the last write of a settlement.
	Unlock(ctx context.Context, ids ...uint64) error
	// ApplyBalanceDelta maintains the legacy denormalized balance
	// mirror for the given funding type.
	ApplyBalanceDelta(ctx context.Context, id uint64, kind ValueType, delta int64) error
}

type CardRepository interface {
	FindByID(ctx context.Context, id uint64) (*Card, error)
	// ActiveByNumber resolves an active card by its PAN.
	ActiveByNumber(ctx context.Context, number string) (*Card, error)
	// ActiveForWallet resolves the wallet's single active card of the
	// given funding class.
	ActiveForWallet(ctx context.Context, walletID uint64, class ValueType) (*Card, error)
	Create(ctx context.Context, card *Card) error
}

type AccountRepository interface {
	ForUser(ctx context.Context, userID uint64, kind ValueType) (*Account, error)
	// ApplyDelta atomically adds delta to one field. A negative delta on
	// the balance field is guarded (balance >= -delta) and returns
	// ErrInsufficientBalance when the guard fails. Fields are never set
	// absolutely.
	ApplyDelta(ctx context.Context, accountID uint64, field BalanceField, delta int64) error
}

type AgentRepository interface {
	FindByID(ctx context.Context, id uint64) (*Agent, error)
}

type MerchantRepository interface {
	FindByID(ctx context.Context, id uint64) (*Merchant, error)
	FindByNumber(ctx context.Context, number string) (*Merchant, error)
}

type TerminalRepository interface {
	FindByNumber(ctx context.Context, number string) (*Terminal, error)
}

type TransactionRepository interface {
	// Create persists a parent transaction alone (used for FAILED
	// markers).
	Create(ctx context.Context, t *Transaction) error
	// CreateWithRows persists the parent and all rows in one insert
	// cascade. A code collision surfaces as ErrDuplicateCode.
	CreateWithRows(ctx context.Context, t *Transaction) error
	FindByCode(ctx context.Context, code string) (*Transaction, error)
	// RowTotalSince sums the values transferred from the given card
	// after the cutoff, for the rolling transaction ceiling.
	RowTotalSince(ctx context.Context, cardID uint64, since time.Time) (int64, error)
}

type InstallmentRepository interface {
	CreateAll(ctx context.Context, installments []*Installment) error
}

// FeeLookup is the consumed fee-table collaborator. The returned fee is a
// hard precondition: if a party cannot cover it the settlement aborts
// before any write.
type FeeLookup interface {
	Calculate(ctx context.Context, amount int64, valueType ValueType, userType UserType) (int64, error)
}

// CodeGenerator produces numeric codes for transactions and rows. Codes
// must be collision-free in practice; the store's unique index plus the
// orchestrator's retry-on-conflict loop covers the residual risk.
type CodeGenerator interface {
	Next(ctx context.Context) (string, error)
}

// AuthZ is the consumed identity gate for the back-office surface.
type AuthZ interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}
