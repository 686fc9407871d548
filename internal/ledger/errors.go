package ledger

import "errors"

// Business-rule failures (§7 taxonomy: Ledger). These never change state;
// the caller receives them synchronously or maps them to a result code.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSelfTransact        = errors.New("source and destination are the same account")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyReversed     = errors.New("transaction already reversed")
)
