package domain

import "errors"

// Error is a typed domain error. The numeric Code is the stable machine
// contract; clients must branch on it, never on the messages. Messages are
// bilingual because POS receipts print both.
type Error struct {
	Code    int
	English string
	Persian string
}

func (e *Error) Error() string { return e.English }

// Retryable reports whether the caller may retry with corrected input.
// Everything detected before the locked critical section is retryable.
func (e *Error) Retryable() bool { return e.Code < 5000 }

var (
	// NotFound class.
	ErrCardNotFound     = &Error{1001, "card not found", "کارت یافت نشد"}
	ErrCardExpired      = &Error{1002, "card is expired or inactive", "کارت منقضی یا غیرفعال است"}
	ErrTerminalNotFound = &Error{1004, "pos terminal not found", "پایانه فروش یافت نشد"}
	ErrMerchantNotFound = &Error{1005, "merchant not found", "پذیرنده یافت نشد"}
	ErrWalletNotFound   = &Error{1006, "wallet not found", "کیف پول یافت نشد"}

	// Validation class.
	ErrCardPasswordInvalid = &Error{1003, "card password is invalid", "رمز کارت نادرست است"}
	ErrIncorrectData       = &Error{1007, "incorrect data", "اطلاعات ارسالی نادرست است"}

	// InsufficientFunds class.
	ErrLackOfMoney         = &Error{2001, "insufficient cash balance", "موجودی نقدی کافی نیست"}
	ErrLackOfCredit        = &Error{2002, "insufficient credit balance", "اعتبار کافی نیست"}
	ErrMerchantLackOfMoney = &Error{2003, "merchant has insufficient balance for the fee", "موجودی پذیرنده برای کارمزد کافی نیست"}

	// Concurrency class.
	ErrWalletLocked     = &Error{3001, "wallet is locked by another settlement", "کیف پول توسط تراکنش دیگری قفل شده است"}
	ErrTransactionLimit = &Error{3002, "transaction ceiling exceeded", "سقف مجاز تراکنش گذشته است"}

	// Integrity class.
	ErrDuplicateCode     = &Error{4001, "duplicate transaction code", "کد تراکنش تکراری است"}
	ErrCardAlreadyExists = &Error{4002, "an active card of this class already exists", "کارت فعال از این نوع قبلا صادر شده است"}

	// Anything that fails inside the locked critical section surfaces as
	// this; the detailed cause stays server-side.
	ErrTechnicalProblem = &Error{5000, "technical problem, please try again later", "خطای فنی رخ داده است، بعدا تلاش کنید"}
)

// ErrInsufficientBalance is the storage-layer sentinel returned when a
// guarded debit would drive a balance negative. The orchestrator maps it to
// the party-specific InsufficientFunds error.
var ErrInsufficientBalance = errors.New("insufficient balance for delta")

// AsDomain unwraps err to a typed domain error, or nil.
func AsDomain(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return nil
}
