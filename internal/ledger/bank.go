/**
 * @description
 * Per-bank ledger state and the registration / back-office surface: bank and
 * account lifecycle, account numbering and IBAN assignment, activity toggles,
 * whitelists and the generic attribute store.
 */

package ledger

import (
	"fmt"
	"strings"

	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/iban"
)

// Bank is one ledger of the network. All its accounts share the bank's
// currency and decimal precision.
type Bank struct {
	Address    domain.Address
	BIC        string
	BankCode   string
	BranchCode string
	Currency   string
	Decimals   int
	Operator   domain.Identity

	Registered bool

	accounts    map[domain.Address]*domain.Account
	byNumber    map[string]domain.Address
	accountSeq  uint64
	transferSeq uint64
	transfers   map[uint64]*domain.Transfer

	correspondents map[domain.Address]*Correspondent

	htlcSeq map[domain.Address]uint64
	htlcs   map[domain.Address]map[uint64]*domain.HTLCPayment
}

// BankSpec is the declaration of a bank instance, normally read from
// configuration at startup.
type BankSpec struct {
	BIC        string
	BankCode   string
	BranchCode string
	Currency   string
	Decimals   int
	Operator   domain.Identity
}

// RegisterBank adds a bank ledger to the network and emits a registration
// event. The operator identity defaults to the BIC when unset.
func (l *Ledger) RegisterBank(spec BankSpec) (domain.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byBIC[spec.BIC]; ok {
		return "", fmt.Errorf("bank with BIC %s already registered", spec.BIC)
	}
	op := spec.Operator
	if op == "" {
		op = domain.Identity(spec.BIC)
	}
	b := &Bank{
		Address:        newAddress(),
		BIC:            spec.BIC,
		BankCode:       spec.BankCode,
		BranchCode:     spec.BranchCode,
		Currency:       strings.ToUpper(spec.Currency),
		Decimals:       spec.Decimals,
		Operator:       op,
		Registered:     true,
		accounts:       make(map[domain.Address]*domain.Account),
		byNumber:       make(map[string]domain.Address),
		transfers:      make(map[uint64]*domain.Transfer),
		correspondents: make(map[domain.Address]*Correspondent),
		htlcSeq:        make(map[domain.Address]uint64),
		htlcs:          make(map[domain.Address]map[uint64]*domain.HTLCPayment),
	}
	l.banks[b.Address] = b
	l.byBIC[b.BIC] = b.Address
	l.emit(b.Address, domain.BankRegistrationEvent{Bank: b.Address, Registered: true})
	return b.Address, nil
}

// UnregisterBank withdraws a bank from the network. Transfer records and
// accounts are kept, and the operator can still settle outstanding records;
// the bank drops out of BIC and IBAN resolution, so the interbank surface
// stops routing to it.
func (l *Ledger) UnregisterBank(caller domain.Identity, bank domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	b.Registered = false
	delete(l.byBIC, b.BIC)
	l.emit(b.Address, domain.BankRegistrationEvent{Bank: b.Address, Registered: false})
	return nil
}

// nextAccountNumber issues the bank-scoped account number: the settlement
// currency followed by an 8-digit sequence.
func (b *Bank) nextAccountNumber() string {
	b.accountSeq++
	return fmt.Sprintf("%s%08d", b.Currency, b.accountSeq)
}

// RegisterAccount opens an account at a bank, assigning its address, account
// number and IBAN. Only the bank operator may open accounts.
func (l *Ledger) RegisterAccount(caller domain.Identity, bank domain.Address, name string, owner domain.Identity) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return nil, err
	}
	if caller != b.Operator {
		return nil, domain.ErrNotAuthorized
	}
	if owner == "" {
		owner = b.Operator
	}
	a := domain.NewAccount(newAddress(), name, b.Address, owner)
	a.AccountNumber = b.nextAccountNumber()
	a.IBAN = iban.CalculateFrenchIBAN(b.BankCode, b.BranchCode, a.AccountNumber)
	b.accounts[a.Address] = a
	b.byNumber[a.AccountNumber] = a.Address
	l.accounts[a.Address] = b.Address
	l.emit(b.Address, domain.AccountRegistrationEvent{Account: a.Address, Registered: true})
	return snapshotAccount(a), nil
}

// UnregisterAccount closes an account. Historical transfer records survive
// the closure.
func (l *Ledger) UnregisterAccount(caller domain.Identity, account domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	delete(b.accounts, a.Address)
	delete(b.byNumber, a.AccountNumber)
	delete(l.accounts, a.Address)
	delete(b.htlcs, a.Address)
	delete(b.htlcSeq, a.Address)
	l.emit(b.Address, domain.AccountRegistrationEvent{Account: a.Address, Registered: false})
	return nil
}

// ToggleAccountActive flips the settlement gate of an account. Inactive
// accounts park credits and debits in the pending queue.
func (l *Ledger) ToggleAccountActive(caller domain.Identity, account domain.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return false, err
	}
	if caller != b.Operator {
		return false, domain.ErrNotAuthorized
	}
	a.Active = !a.Active
	return a.Active, nil
}

// Whitelist authorizes an identity to move funds on an account.
func (l *Ledger) Whitelist(caller domain.Identity, account domain.Address, id domain.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if caller != b.Operator && caller != a.Owner {
		return domain.ErrNotAuthorized
	}
	a.Whitelist[id] = true
	return nil
}

// RemoveFromWhitelist withdraws a previously granted authorization.
func (l *Ledger) RemoveFromWhitelist(caller domain.Identity, account domain.Address, id domain.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if caller != b.Operator && caller != a.Owner {
		return domain.ErrNotAuthorized
	}
	delete(a.Whitelist, id)
	return nil
}

// SetNumAttribute writes a named numeric extension slot, e.g. the
// "overdraftAmount" limit.
func (l *Ledger) SetNumAttribute(caller domain.Identity, account domain.Address, key string, value int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	a.NumAttributes[key] = value
	return nil
}

// NumAttribute reads a named numeric slot; missing keys read as zero.
func (l *Ledger) NumAttribute(account domain.Address, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, a, err := l.account(account)
	if err != nil {
		return 0, err
	}
	return a.NumAttributes[key], nil
}

// SetStrAttribute writes a named string extension slot.
func (l *Ledger) SetStrAttribute(caller domain.Identity, account domain.Address, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	a.StrAttributes[key] = value
	return nil
}

// StrAttribute reads a named string slot; missing keys read as empty.
func (l *Ledger) StrAttribute(account domain.Address, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, a, err := l.account(account)
	if err != nil {
		return "", err
	}
	return a.StrAttributes[key], nil
}

// AccountView is the query-facing projection of an account, including its
// token-style face (name, symbol, decimals, total supply).
type AccountView struct {
	Address         domain.Address `json:"address"`
	Name            string         `json:"name"`
	Bank            domain.Address `json:"bank"`
	BIC             string         `json:"bic"`
	AccountNumber   string         `json:"accountNumber"`
	IBAN            string         `json:"iban"`
	Currency        string         `json:"currency"`
	Decimals        int            `json:"decimals"`
	Balance         int64          `json:"balance"`
	FullBalance     int64          `json:"fullBalance"`
	LockedBalance   int64          `json:"lockedBalance"`
	UnlockedBalance int64          `json:"unlockedBalance"`
	TotalSupply     int64          `json:"totalSupply"`
	Active          bool           `json:"active"`
}

// AccountInfo returns the projection of a registered account.
func (l *Ledger) AccountInfo(account domain.Address) (AccountView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{
		Address:         a.Address,
		Name:            a.Name,
		Bank:            b.Address,
		BIC:             b.BIC,
		AccountNumber:   a.AccountNumber,
		IBAN:            a.IBAN,
		Currency:        b.Currency,
		Decimals:        b.Decimals,
		Balance:         a.VisibleBalance(),
		FullBalance:     a.FullBalance(),
		LockedBalance:   a.Locked,
		UnlockedBalance: a.UnlockedBalance(),
		TotalSupply:     a.VisibleBalance(),
		Active:          a.Active,
	}, nil
}

// IsAccountRegistered reports whether the address is a live account.
func (l *Ledger) IsAccountRegistered(account domain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[account]
	return ok
}

// IsAccountActive reports the settlement gate of an account.
func (l *Ledger) IsAccountActive(account domain.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, a, err := l.account(account)
	if err != nil {
		return false, err
	}
	return a.Active, nil
}

// BankView is the query-facing projection of a bank ledger.
type BankView struct {
	Address    domain.Address `json:"address"`
	BIC        string         `json:"bic"`
	BankCode   string         `json:"bankCode"`
	BranchCode string         `json:"branchCode"`
	Currency   string         `json:"currency"`
	Decimals   int            `json:"decimals"`
	Registered bool           `json:"registered"`
}

// BankInfo returns the projection of a bank by address.
func (l *Ledger) BankInfo(bank domain.Address) (BankView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return BankView{}, err
	}
	return BankView{
		Address:    b.Address,
		BIC:        b.BIC,
		BankCode:   b.BankCode,
		BranchCode: b.BranchCode,
		Currency:   b.Currency,
		Decimals:   b.Decimals,
		Registered: b.Registered,
	}, nil
}

// TransferInfo returns a bank-scoped transfer record.
func (l *Ledger) TransferInfo(bank domain.Address, id uint64) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return domain.Transfer{}, err
	}
	t, ok := b.transfers[id]
	if !ok {
		return domain.Transfer{}, fmt.Errorf("%w: %d at %s", domain.ErrTransferNotFound, id, b.BIC)
	}
	return *t, nil
}

// snapshotAccount copies the account state for callers outside the lock.
func snapshotAccount(a *domain.Account) *domain.Account {
	cp := *a
	cp.Whitelist = nil
	cp.NumAttributes = nil
	cp.StrAttributes = nil
	cp.Allowances = nil
	return &cp
}
