package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the owner of a wallet. The platform/admin account that collects
// fees and platform profit is the user flagged IsPlatform.
type User struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:100;not null"`
	Phone      string `gorm:"uniqueIndex;size:15;not null"`
	Password   string `gorm:"size:255"` // bcrypt hash, back-office login only
	IsPlatform bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Wallet is the per-user container for cards and the settlement lock.
// CashBalance/CreditBalance are legacy denormalized mirrors; the Account
// aggregates are the source of truth. IsLock is advisory: it fast-fails
// requests, but mutual exclusion comes from row locks in the store.
type Wallet struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	UserID        uint64 `gorm:"uniqueIndex;not null"`
	CashBalance   int64  `gorm:"not null;default:0"`
	CreditBalance int64  `gorm:"not null;default:0"`
	IsLock        bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Account is a funding aggregate: one CASH and one CREDIT row per user.
// All fields are integer minor-currency units and are mutated only through
// delta updates, never absolute sets. On the CREDIT row, CashBack is the
// credit_back field.
type Account struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	UserID      uint64    `gorm:"uniqueIndex:idx_accounts_user_kind;not null"`
	Kind        ValueType `gorm:"uniqueIndex:idx_accounts_user_kind;size:6;not null"`
	Balance     int64     `gorm:"not null;default:0"`
	Received    int64     `gorm:"not null;default:0"`
	Consumed    int64     `gorm:"not null;default:0"`
	Transferred int64     `gorm:"not null;default:0"`
	Debt        int64     `gorm:"not null;default:0"`
	CashBack    int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Card is the payment instrument presented at the POS. Once a card has
// transacted it is only ever deactivated, never deleted.
type Card struct {
	ID               uint64   `gorm:"primaryKey;autoIncrement"`
	Number           string   `gorm:"uniqueIndex;size:19;not null"`
	Type             CardType `gorm:"size:10;not null"`
	PasswordHash     string   `gorm:"size:255;not null"`
	DynamicPassword  string   `gorm:"size:10"`
	DynamicExpiresAt *time.Time
	ExpirationAt     time.Time `gorm:"not null"`
	IsActive         bool      `gorm:"not null;default:true"`
	WalletID         uint64    `gorm:"index;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Agent is a node in the reseller tree. ProfitRate is a whole percentage
// of the post-cash-back contract amount.
type Agent struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement"`
	UserID     uint64  `gorm:"uniqueIndex;not null"`
	ParentID   *uint64 `gorm:"index"`
	ProfitRate int     `gorm:"not null;default:0"`
	IsMain     bool    `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Merchant receives purchases. ProfitRate is the whole percentage of the
// gross amount ceded to the platform side; CashBackRate is the fractional
// percentage returned to the paying customer for this merchant.
type Merchant struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement"`
	UserID       uint64          `gorm:"uniqueIndex;not null"`
	AgentID      uint64          `gorm:"index;not null"`
	Number       string          `gorm:"uniqueIndex;size:15;not null"`
	ProfitRate   int             `gorm:"not null;default:0"`
	CashBackRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal is a provisioned POS device bound to one merchant.
type Terminal struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Number     string `gorm:"uniqueIndex;size:15;not null"`
	MerchantID uint64 `gorm:"index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transaction is the parent record of one settlement. Immutable after
// creation; a transaction with rows can never be deleted.
type Transaction struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement"`
	Value     int64             `gorm:"not null"`
	ValueType ValueType         `gorm:"size:6;not null"`
	Code      string            `gorm:"uniqueIndex;size:20;not null"`
	Status    TransactionStatus `gorm:"size:12;not null"`
	CreatedAt time.Time

	Rows []TransactionRow `gorm:"foreignKey:TransactionID"`
}

// TransactionRow records one atomic money movement between two cards.
type TransactionRow struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	TransactionID    uint64    `gorm:"index;not null"`
	ReceiverCardID   uint64    `gorm:"index;not null"`
	TransferorCardID uint64    `gorm:"index;not null"`
	Value            int64     `gorm:"not null"`
	Reason           RowReason `gorm:"size:12;not null"`
	Code             string    `gorm:"uniqueIndex;size:20;not null"`
	CreatedAt        time.Time
}

// Installment is one scheduled period of an installments purchase.
// ParentID chains each period to the previous one; the first period is
// settled immediately, the rest wait for future collection.
type Installment struct {
	ID            uint64            `gorm:"primaryKey;autoIncrement"`
	TransactionID uint64            `gorm:"index;not null"`
	CardID        uint64            `gorm:"index;not null"`
	Value         int64             `gorm:"not null"`
	DueDate       time.Time         `gorm:"not null"`
	Status        InstallmentStatus `gorm:"size:10;not null"`
	ParentID      *uint64           `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
