package domain

// ValueType selects which funding aggregate a movement touches.
type ValueType string

const (
	ValueCash   ValueType = "CASH"
	ValueCredit ValueType = "CREDIT"
)

// PurchaseKind is the two-variant purchase tag sent by the POS device.
// It drives both the aggregate that pays the principal and the field that
// receives cash-back (cash_back vs credit_back).
type PurchaseKind string

const (
	PurchaseDirect PurchaseKind = "DIRECT"
	PurchaseCredit PurchaseKind = "CREDIT"
)

func (k PurchaseKind) IsValid() bool {
	return k == PurchaseDirect || k == PurchaseCredit
}

// ValueType maps the purchase tag to the aggregate it settles against.
func (k PurchaseKind) ValueType() ValueType {
	if k == PurchaseCredit {
		return ValueCredit
	}
	return ValueCash
}

// UserType distinguishes fee schedules for the two fee-paying parties.
type UserType string

const (
	UserTypeUser     UserType = "USER"
	UserTypeMerchant UserType = "MERCHANT"
)

// CardType is the issued card class.
type CardType string

const (
	CardCredit   CardType = "CREDIT"
	CardGold     CardType = "GOLD"
	CardBlue     CardType = "BLUE"
	CardPlatinum CardType = "PLATINUM"
)

func (t CardType) IsValid() bool {
	switch t {
	case CardCredit, CardGold, CardBlue, CardPlatinum:
		return true
	}
	return false
}

// FundingClass groups card types by the aggregate they draw on.
// A wallet holds at most one active card per funding class.
func (t CardType) FundingClass() ValueType {
	if t == CardCredit {
		return ValueCredit
	}
	return ValueCash
}

// TransactionStatus tracks the parent transaction lifecycle.
type TransactionStatus string

const (
	StatusFailed     TransactionStatus = "FAILED"
	StatusInProgress TransactionStatus = "IN_PROGRESS"
	StatusAccepted   TransactionStatus = "ACCEPTED"
)

// RowReason labels a single money movement inside a transaction.
type RowReason string

const (
	ReasonPurchase RowReason = "PURCHASE"
	ReasonFee      RowReason = "FEE"
	ReasonProfit   RowReason = "PROFIT"
	ReasonContract RowReason = "CONTRACT"
	ReasonCashBack RowReason = "CASH_BACK"
)

// InstallmentStatus tracks a scheduled installment period.
type InstallmentStatus string

const (
	InstallmentSettled InstallmentStatus = "SETTLED"
	InstallmentPending InstallmentStatus = "PENDING"
)

// BalanceField names a mutable column on the Account aggregate.
// Only these names may reach the storage layer's delta update.
type BalanceField string

const (
	FieldBalance     BalanceField = "balance"
	FieldReceived    BalanceField = "received"
	FieldConsumed    BalanceField = "consumed"
	FieldTransferred BalanceField = "transferred"
	FieldDebt        BalanceField = "debt"
	FieldCashBack    BalanceField = "cash_back"
)

func (f BalanceField) IsValid() bool {
	switch f {
	case FieldBalance, FieldReceived, FieldConsumed, FieldTransferred, FieldDebt, FieldCashBack:
		return true
	}
	return false
}
