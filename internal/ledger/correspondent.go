/**
 * @description
 * Correspondent registry and interbank routing. Each bank keeps its own view
 * of a correspondent relationship: the nostro account it operates at the
 * counterpart, the loro account the counterpart operates here, and a cached
 * mirror of the nostro balance refreshed after every settlement touching the
 * pair. The mirror is informational only; spending checks always run on the
 * owning ledger's balance.
 */

package ledger

import (
	"fmt"
	"strings"

	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/iban"
)

// Correspondent is one bank's view of a counterpart relationship.
type Correspondent struct {
	Counterpart       domain.Address
	Nostro            domain.Address // our account at the counterpart
	Loro              domain.Address // their account at our bank
	LastNostroBalance int64
	Registered        bool
}

// CorrespondentView is the query projection of a registry entry.
type CorrespondentView struct {
	Counterpart       domain.Address `json:"counterpart"`
	CounterpartBIC    string         `json:"counterpartBic"`
	Nostro            domain.Address `json:"nostro"`
	Loro              domain.Address `json:"loro"`
	LastNostroBalance int64          `json:"lastNostroBalance"`
	Registered        bool           `json:"registered"`
}

// RegisterCorrespondent records one side of a correspondent relationship.
// Both banks must register their own view for the pair to become usable.
func (l *Ledger) RegisterCorrespondent(caller domain.Identity, bank, counterpart, nostro, loro domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	cb, err := l.bank(counterpart)
	if err != nil {
		return err
	}
	nb, na, err := l.account(nostro)
	if err != nil {
		return err
	}
	if nb != cb {
		return fmt.Errorf("nostro %s is not held at %s", nostro, cb.BIC)
	}
	lb, la, err := l.account(loro)
	if err != nil {
		return err
	}
	if lb != b {
		return fmt.Errorf("loro %s is not held at %s", loro, b.BIC)
	}
	b.correspondents[counterpart] = &Correspondent{
		Counterpart:       counterpart,
		Nostro:            na.Address,
		Loro:              la.Address,
		LastNostroBalance: na.VisibleBalance(),
		Registered:        true,
	}
	return nil
}

// UnregisterCorrespondent removes the caller bank's view of the
// relationship. Transfer records referencing the pair survive.
func (l *Ledger) UnregisterCorrespondent(caller domain.Identity, bank, counterpart domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	if _, ok := b.correspondents[counterpart]; !ok {
		return domain.ErrCorrespondentNotFound
	}
	delete(b.correspondents, counterpart)
	return nil
}

// IsCorrespondentRegistered reports whether a bank holds a registry entry for
// the counterpart.
func (l *Ledger) IsCorrespondentRegistered(bank, counterpart domain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.banks[bank]
	if !ok {
		return false
	}
	c, ok := b.correspondents[counterpart]
	return ok && c.Registered
}

// CorrespondentInfo returns a bank's view of a counterpart relationship.
func (l *Ledger) CorrespondentInfo(bank, counterpart domain.Address) (CorrespondentView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return CorrespondentView{}, err
	}
	c, ok := b.correspondents[counterpart]
	if !ok {
		return CorrespondentView{}, domain.ErrCorrespondentNotFound
	}
	bic := ""
	if cb, ok := l.banks[counterpart]; ok {
		bic = cb.BIC
	}
	return CorrespondentView{
		Counterpart:       c.Counterpart,
		CounterpartBIC:    bic,
		Nostro:            c.Nostro,
		Loro:              c.Loro,
		LastNostroBalance: c.LastNostroBalance,
		Registered:        c.Registered,
	}, nil
}

// refreshMirrors pushes the balance of a settled account into every registry
// entry that mirrors it as a nostro. Called with the runtime lock held.
func (l *Ledger) refreshMirrors(a *domain.Account) {
	for _, y := range l.banks {
		if c, ok := y.correspondents[a.Bank]; ok && c.Nostro == a.Address {
			c.LastNostroBalance = a.VisibleBalance()
		}
	}
}

func pad5(s string) string {
	for len(s) < 5 {
		s = "0" + s
	}
	return s
}

// resolveRecipient maps the recipient union to a bank ledger and, when
// addressable, a concrete account. Currency and decimals must match the
// sending bank on every cross-bank path.
func (l *Ledger) resolveRecipient(b *Bank, r domain.RecipientRef) (*Bank, *domain.Account, error) {
	switch {
	case !r.Account.Zero():
		rb, ra, err := l.account(r.Account)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: recipient %s", domain.ErrNotRegisteredAccount, r.Account)
		}
		if rb != b && (rb.Currency != b.Currency || rb.Decimals != b.Decimals) {
			return nil, nil, domain.ErrRecipientCurrency
		}
		return rb, ra, nil

	case r.BIC != "":
		rb, err := l.bankByBIC(strings.TrimRight(r.BIC, " \x00"))
		if err != nil {
			return nil, nil, err
		}
		if rb != b && (rb.Currency != b.Currency || rb.Decimals != b.Decimals) {
			return nil, nil, domain.ErrCurrencyMismatch
		}
		return rb, nil, nil

	case r.IBAN != "":
		det, err := iban.ExtractFrenchIBAN(strings.TrimRight(r.IBAN, " \x00"))
		if err != nil {
			return nil, nil, err
		}
		for _, rb := range l.banks {
			if !rb.Registered || pad5(rb.BankCode) != det.BankCode || pad5(rb.BranchCode) != det.BranchCode {
				continue
			}
			if rb.Currency != b.Currency || rb.Decimals != b.Decimals {
				return nil, nil, domain.ErrCurrencyMismatch
			}
			addr, ok := rb.byNumber[det.AccountNumber]
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s at %s", domain.ErrRecipientUnresolved, det.AccountNumber, rb.BIC)
			}
			return rb, rb.accounts[addr], nil
		}
		return nil, nil, fmt.Errorf("%w: no bank for IBAN %s", domain.ErrRecipientUnresolved, r.IBAN)

	default:
		return nil, nil, domain.ErrRecipientUnresolved
	}
}

// interbank settles a cross-bank transfer. The nostro path is taken when the
// sending bank is whitelisted on its nostro at the counterpart and the
// nostro's unlocked balance covers the amount; otherwise the counterpart's
// loro account held locally is credited. The beneficiary leg is booked on the
// counterpart ledger with its own transfer id and pending rules.
func (l *Ledger) interbank(b *Bank, sender *domain.Account, rb *Bank, ra *domain.Account, rcpt domain.RecipientRef, amount int64, details string) (*domain.Transfer, error) {
	c, ok := b.correspondents[rb.Address]
	if !ok || !c.Registered {
		return nil, fmt.Errorf("%w: %s at %s", domain.ErrCorrespondentNotFound, rb.BIC, b.BIC)
	}

	var (
		t        *domain.Transfer
		err      error
		fwdDebit domain.Address
	)
	nostro := rb.accounts[c.Nostro]
	if nostro != nil && bankIsWhitelisted(nostro, b) && checkDebit(nostro, amount) == nil {
		fwdDebit = nostro.Address
		t, err = l.book(b, domain.TransferTypeTransfer, sender, nil, rcpt, amount, details)
	} else {
		loro := b.accounts[c.Loro]
		if loro == nil {
			return nil, fmt.Errorf("%w: loro of %s at %s", domain.ErrAccountNotFound, rb.BIC, b.BIC)
		}
		t, err = l.book(b, domain.TransferTypeTransfer, sender, loro, rcpt, amount, details)
	}
	if err != nil {
		return nil, err
	}
	t.ForwardBank = rb.Address
	t.ForwardDebit = fwdDebit
	t.ForwardCredit = ra.Address
	if t.Status == domain.StatusCompleted {
		if err := l.forward(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// bankIsWhitelisted reports whether a bank entity may operate an account,
// matching entries keyed by the bank address or its BIC.
func bankIsWhitelisted(a *domain.Account, b *Bank) bool {
	return a.IsWhitelisted(domain.Identity(b.Address)) || a.IsWhitelisted(domain.Identity(b.BIC))
}

// checkForward re-runs the counterpart-side guards of an interbank record.
// The forward leg is validated when the path is selected, but a record that
// sat Pending can outlive its nostro cover or even the beneficiary account,
// so the decision path must validate again before the sending side settles.
func (l *Ledger) checkForward(t *domain.Transfer) error {
	rb, ok := l.banks[t.ForwardBank]
	if !ok {
		return fmt.Errorf("%w: forward %s", domain.ErrBankNotFound, t.ForwardBank)
	}
	if rb.accounts[t.ForwardCredit] == nil {
		return fmt.Errorf("%w: beneficiary %s", domain.ErrAccountNotFound, t.ForwardCredit)
	}
	if t.ForwardDebit.Zero() {
		return nil
	}
	nostro := rb.accounts[t.ForwardDebit]
	if nostro == nil {
		return fmt.Errorf("%w: nostro %s", domain.ErrAccountNotFound, t.ForwardDebit)
	}
	// An inactive nostro parks the forward leg Pending at the counterpart
	// instead of failing a guard.
	if nostro.Active {
		return checkDebit(nostro, t.Amount)
	}
	return nil
}

// forward books the beneficiary leg of a settled interbank transfer on the
// counterpart ledger. A non-nil error means nothing was booked there; an
// inactive counterpart account parks the leg Pending without error.
func (l *Ledger) forward(t *domain.Transfer) error {
	rb, ok := l.banks[t.ForwardBank]
	if !ok {
		return fmt.Errorf("%w: forward %s", domain.ErrBankNotFound, t.ForwardBank)
	}
	var debit *domain.Account
	if !t.ForwardDebit.Zero() {
		debit = rb.accounts[t.ForwardDebit]
		if debit == nil {
			return fmt.Errorf("%w: nostro %s", domain.ErrAccountNotFound, t.ForwardDebit)
		}
	}
	credit := rb.accounts[t.ForwardCredit]
	if credit == nil {
		return fmt.Errorf("%w: beneficiary %s", domain.ErrAccountNotFound, t.ForwardCredit)
	}
	_, err := l.book(rb, domain.TransferTypeTransfer, debit, credit, domain.RecipientRef{Account: credit.Address}, t.Amount, t.Details)
	return err
}

// CreditNostro books correspondent funding on both legs at once: the
// counterpart ledger credits the caller bank's nostro and the caller ledger
// credits the matching loro, keeping both mirrors in step.
func (l *Ledger) CreditNostro(caller domain.Identity, bank, nostro domain.Address, amount int64, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	var c *Correspondent
	for _, entry := range b.correspondents {
		if entry.Nostro == nostro && entry.Registered {
			c = entry
			break
		}
	}
	if c == nil {
		return fmt.Errorf("%w: no registered nostro %s at %s", domain.ErrCorrespondentNotFound, nostro, b.BIC)
	}
	cb, err := l.bank(c.Counterpart)
	if err != nil {
		return err
	}
	nostroAcct := cb.accounts[c.Nostro]
	loroAcct := b.accounts[c.Loro]
	if nostroAcct == nil || loroAcct == nil {
		return domain.ErrAccountNotFound
	}
	if _, err := l.book(b, domain.TransferTypeCredit, nil, loroAcct, domain.RecipientRef{Account: loroAcct.Address}, amount, details); err != nil {
		return err
	}
	if _, err := l.book(cb, domain.TransferTypeCredit, nil, nostroAcct, domain.RecipientRef{Account: nostroAcct.Address}, amount, details); err != nil {
		return err
	}
	return nil
}

// RequestNetting symmetrically nets the two opposing nostro balances of a
// correspondent pair down by the agreed amount in one serialized action.
func (l *Ledger) RequestNetting(caller domain.Identity, bank, counterpart domain.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return err
	}
	if caller != b.Operator {
		return domain.ErrNotAuthorized
	}
	cb, err := l.bank(counterpart)
	if err != nil {
		return err
	}
	own, ok := b.correspondents[counterpart]
	if !ok || !own.Registered {
		return fmt.Errorf("%w: %s at %s", domain.ErrCorrespondentNotFound, cb.BIC, b.BIC)
	}
	theirs, ok := cb.correspondents[bank]
	if !ok || !theirs.Registered {
		return fmt.Errorf("%w: %s at %s", domain.ErrCorrespondentNotFound, b.BIC, cb.BIC)
	}
	ourNostro := cb.accounts[own.Nostro]
	theirNostro := b.accounts[theirs.Nostro]
	if ourNostro == nil || theirNostro == nil {
		return domain.ErrAccountNotFound
	}
	// Validate both debits before mutating either ledger.
	if err := checkDebit(ourNostro, amount); err != nil {
		return err
	}
	if err := checkDebit(theirNostro, amount); err != nil {
		return err
	}
	if _, err := l.book(cb, domain.TransferTypeNetting, ourNostro, nil, domain.RecipientRef{}, amount, "netting with "+b.BIC); err != nil {
		return err
	}
	if _, err := l.book(b, domain.TransferTypeNetting, theirNostro, nil, domain.RecipientRef{}, amount, "netting with "+cb.BIC); err != nil {
		return err
	}
	return nil
}
