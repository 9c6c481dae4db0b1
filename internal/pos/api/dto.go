package api

import "time"

// PurchaseReq is the POS purchase payload.
type PurchaseReq struct {
	TerminalNumber string `json:"terminal_number" binding:"required"`
	MerchantNumber string `json:"merchant_number" binding:"required"`
	CardNumber     string `json:"card_number" binding:"required"`
	Password       string `json:"password" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	PurchaseType   string `json:"purchase_type" binding:"required,oneof=DIRECT CREDIT"`
}

// InstallmentsPurchaseReq additionally carries the period count.
type InstallmentsPurchaseReq struct {
	PurchaseReq
	NumberOfInstallments int `json:"number_of_installments" binding:"required,min=2,max=36"`
}

// BalanceReq is the balance-inquiry payload.
type BalanceReq struct {
	TerminalNumber string `json:"terminal_number" binding:"required"`
	MerchantNumber string `json:"merchant_number" binding:"required"`
	CardNumber     string `json:"card_number" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

// LoginReq authenticates a back-office user.
type LoginReq struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// IssueCardReq creates a card for a wallet.
type IssueCardReq struct {
	WalletID     uint64    `json:"wallet_id" binding:"required"`
	Type         string    `json:"type" binding:"required,oneof=CREDIT GOLD BLUE PLATINUM"`
	Password     string    `json:"password" binding:"required,min=4"`
	ExpirationAt time.Time `json:"expiration_at" binding:"required"`
}

// PurchaseResp is the accepted purchase response.
type PurchaseResp struct {
	Amount          int64     `json:"amount"`
	TransactionCode string    `json:"transaction_code"`
	Fee             int64     `json:"fee"`
	Time            time.Time `json:"time"`
}

// BalanceResp reports both funding balances.
type BalanceResp struct {
	CashBalance   int64     `json:"cash_balance"`
	CreditBalance int64     `json:"credit_balance"`
	Code          string    `json:"code"`
	Time          time.Time `json:"time"`
}

// ErrorResp is the error envelope. Machine clients branch on Code only.
type ErrorResp struct {
	Code           int       `json:"code"`
	PersianMessage string    `json:"persian_message"`
	EnglishMessage string    `json:"english_message"`
	Time           time.Time `json:"time"`
	TraceID        string    `json:"trace_id"`
}
