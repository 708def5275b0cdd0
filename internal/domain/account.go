/**
 * @description
 * This file defines the core domain models for the settlement service: accounts,
 * the recipient union used to address a payment target, and the supporting
 * value types shared by the ledger, HTLC engine and API layers.
 *
 * @notes
 * - Amounts are `int64` values in the smallest currency unit (e.g. cents),
 *   which avoids floating-point inaccuracies with financial data.
 * - An account book balance is signed: it may go negative up to the account's
 *   overdraft limit. The query-facing Balance/UnlockedBalance views are
 *   clamped at zero; guard arithmetic always uses the signed values.
 */

package domain

// Address is the opaque identifier of a bank or an account inside the
// settlement network. The zero value means "not set".
type Address string

// Zero reports whether the address is unset.
func (a Address) Zero() bool { return a == "" }

// Identity identifies a calling party (a bank back office, a client wallet or
// a third-party spender).
type Identity string

// AttrOverdraftAmount is the numeric account attribute holding the overdraft
// limit. Reading a missing attribute yields zero, i.e. no overdraft.
const AttrOverdraftAmount = "overdraftAmount"

// Account is a single balance-bearing entity owned by exactly one bank.
type Account struct {
	Address       Address
	Name          string
	Owner         Identity
	Bank          Address
	AccountNumber string
	IBAN          string

	// Book keeping. balance is the signed book balance, locked the funds
	// reserved by plain locks and HTLC payments.
	Balance int64
	Locked  int64

	Active    bool
	Whitelist map[Identity]bool

	// Generic extension slots. Numeric and string attributes live in separate
	// tables because callers address them through distinct operations.
	NumAttributes map[string]int64
	StrAttributes map[string]string

	// ERC20-style third-party spend approvals, spender identity to remaining
	// allowance.
	Allowances map[Identity]int64
}

// NewAccount returns a registered-but-empty account shell.
func NewAccount(address Address, name string, bank Address, owner Identity) *Account {
	return &Account{
		Address:       address,
		Name:          name,
		Owner:         owner,
		Bank:          bank,
		Active:        true,
		Whitelist:     make(map[Identity]bool),
		NumAttributes: make(map[string]int64),
		StrAttributes: make(map[string]string),
		Allowances:    make(map[Identity]int64),
	}
}

// FullBalance is the signed book balance, ignoring locks.
func (a *Account) FullBalance() int64 { return a.Balance }

// VisibleBalance is the query-facing balance, clamped at zero when the account
// is overdrawn.
func (a *Account) VisibleBalance() int64 {
	if a.Balance < 0 {
		return 0
	}
	return a.Balance
}

// UnlockedBalance is the query-facing spendable balance, clamped at zero.
func (a *Account) UnlockedBalance() int64 {
	u := a.Balance - a.Locked
	if u < 0 {
		return 0
	}
	return u
}

// OverdraftLimit reads the overdraft attribute; missing means zero.
func (a *Account) OverdraftLimit() int64 {
	return a.NumAttributes[AttrOverdraftAmount]
}

// SpendableWith returns the signed amount the account can still pay or lock,
// overdraft capacity included.
func (a *Account) SpendableWith() int64 {
	return a.Balance - a.Locked + a.OverdraftLimit()
}

// IsWhitelisted reports whether the identity may move funds on this account
// besides the owning bank.
func (a *Account) IsWhitelisted(id Identity) bool {
	return a.Whitelist[id]
}

// RecipientRef is the tagged union addressing a payment target: an explicit
// account, a bank BIC, or an IBAN. Resolution precedence is account, then BIC,
// then IBAN; an all-zero ref means "no override, default context".
type RecipientRef struct {
	Account Address `json:"account,omitempty"`
	BIC     string  `json:"bic,omitempty"`
	IBAN    string  `json:"iban,omitempty"`
}

// IsZero reports whether no recipient override is present.
func (r RecipientRef) IsZero() bool {
	return r.Account.Zero() && r.BIC == "" && r.IBAN == ""
}
