package domain

import "errors"

// Sentinel errors surfaced by the ledger. Handlers map these to HTTP status
// codes; the messages are part of the external contract and must not change.
var (
	ErrInsufficientFunds         = errors.New("Insufficient funds")
	ErrInsufficientUnlockedFunds = errors.New("Insufficient unlocked funds")
	ErrInsufficientLockedFunds   = errors.New("Insufficient locked funds")
	ErrOverdraftDebit            = errors.New("Overdraft limit would be reached, cannot debit account")
	ErrOverdraftLock             = errors.New("Overdraft limit would be reached, cannot lock the amount")
	ErrCurrencyMismatch          = errors.New("Currency mismatch")
	ErrRecipientCurrency         = errors.New("Expect the recipient to have the same currency and decimals as the bank")
	ErrSecretMismatch            = errors.New("secret mismatch")
	ErrAllowanceExceeded         = errors.New("transfer amount exceeds allowance")
	ErrNotRegisteredAccount      = errors.New("Only a registered account can call this function")

	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrBankNotFound          = errors.New("bank not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrTransferNotFound      = errors.New("transfer not found")
	ErrHTLCNotFound          = errors.New("htlc payment not found")
	ErrNotAuthorized         = errors.New("caller is not authorized on this account")
	ErrTransferNotPending    = errors.New("transfer is not pending")
	ErrInvalidDecision       = errors.New("decision must be rejected or completed")
	ErrCorrespondentNotFound = errors.New("correspondent not found")
	ErrRecipientUnresolved   = errors.New("cannot resolve the recipient")
	ErrHTLCNotExpired        = errors.New("htlc payment deadline not reached")
	ErrHTLCInactiveAccount   = errors.New("htlc settlement requires active accounts")
)
