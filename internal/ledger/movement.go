/**
 * @description
 * Balance movement operations: credits, debits, transfers (local and
 * interbank), third-party allowance spends and plain fund locks. All guards
 * run inside the serialized call that performs the mutation.
 *
 * A movement is booked as a transfer record at each involved bank: an
 * interbank payment produces one record on the sending ledger and one on the
 * receiving ledger, each with its own bank-scoped id and its own pending
 * rules.
 */

package ledger

import (
	"fmt"

	"github.com/openclearing/settlement-service/internal/domain"
)

const (
	reasonInactiveSender    = "Inactive sender account"
	reasonInactiveRecipient = "Inactive recipient account"
)

// checkDebit verifies the overdraft-aware spend guard on the signed balance.
func checkDebit(a *domain.Account, amount int64) error {
	od := a.OverdraftLimit()
	if a.Balance-a.Locked+od < amount {
		if od > 0 {
			return domain.ErrOverdraftDebit
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

// checkLock verifies the same guard for fund reservations, which may consume
// overdraft capacity just like a debit.
func checkLock(a *domain.Account, amount int64) error {
	od := a.OverdraftLimit()
	if a.Balance-a.Locked+od < amount {
		if od > 0 {
			return domain.ErrOverdraftLock
		}
		return domain.ErrInsufficientUnlockedFunds
	}
	return nil
}

// newTransfer allocates the next bank-scoped transfer record.
func (l *Ledger) newTransfer(b *Bank, typ domain.TransferType, sender domain.Address, rcpt domain.RecipientRef, amount int64, details string) *domain.Transfer {
	b.transferSeq++
	t := &domain.Transfer{
		ID:        b.transferSeq,
		Bank:      b.Address,
		Type:      typ,
		Status:    domain.StatusInitiated,
		Sender:    sender,
		Recipient: rcpt,
		Amount:    amount,
		Currency:  b.Currency,
		Details:   details,
		CreatedAt: l.clock(),
	}
	b.transfers[t.ID] = t
	return t
}

// book records and settles a single-bank movement with an optional local
// debit leg and an optional local credit leg. An inactive leg parks the
// record Pending with the movement intent stored; guards failing on an active
// debit leg reject before any record is created.
func (l *Ledger) book(b *Bank, typ domain.TransferType, debit, credit *domain.Account, rcpt domain.RecipientRef, amount int64, details string) (*domain.Transfer, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	if debit != nil && !debit.Active {
		return l.park(b, typ, debit, credit, rcpt, amount, details, reasonInactiveSender), nil
	}
	if credit != nil && !credit.Active {
		return l.park(b, typ, debit, credit, rcpt, amount, details, reasonInactiveRecipient), nil
	}

	if debit != nil {
		if err := checkDebit(debit, amount); err != nil {
			return nil, err
		}
	}

	t := l.newTransfer(b, typ, senderOf(debit), rcpt, amount, details)
	if debit != nil {
		t.DebitAccount = debit.Address
	}
	if credit != nil {
		t.CreditAccount = credit.Address
	}
	l.apply(b, t)
	return t, nil
}

func senderOf(debit *domain.Account) domain.Address {
	if debit == nil {
		return ""
	}
	return debit.Address
}

// park records a movement as Pending without touching balances.
func (l *Ledger) park(b *Bank, typ domain.TransferType, debit, credit *domain.Account, rcpt domain.RecipientRef, amount int64, details, reason string) *domain.Transfer {
	t := l.newTransfer(b, typ, senderOf(debit), rcpt, amount, details)
	if debit != nil {
		t.DebitAccount = debit.Address
	}
	if credit != nil {
		t.CreditAccount = credit.Address
	}
	t.Status = domain.StatusPending
	t.Reason = reason
	l.emit(b.Address, domain.TransferStateChangedEvent{ID: t.ID, Status: t.Status, Reason: t.Reason})
	return t
}

// apply settles a recorded movement: balances mutate, correspondent mirrors
// refresh, and the completion events fire. Guards must have passed already.
func (l *Ledger) apply(b *Bank, t *domain.Transfer) {
	var from, to domain.Address
	if !t.DebitAccount.Zero() {
		a := b.accounts[t.DebitAccount]
		a.Balance -= t.Amount
		from = a.Address
		l.refreshMirrors(a)
	}
	if !t.CreditAccount.Zero() {
		a := b.accounts[t.CreditAccount]
		a.Balance += t.Amount
		to = a.Address
		l.refreshMirrors(a)
	}
	t.Status = domain.StatusCompleted
	t.DecidedAt = l.clock()
	l.emit(b.Address, domain.TransferEvent{From: from, To: to, Value: t.Amount})
	l.emit(b.Address, domain.TransferExEvent{ID: t.ID, From: from, To: to, Value: t.Amount, Details: t.Details})
	l.emit(b.Address, domain.TransferStateChangedEvent{ID: t.ID, Status: t.Status})
}

// Credit books funds onto an account. Inactive recipients park the credit
// Pending until a back-office decision.
func (l *Ledger) Credit(caller domain.Identity, account domain.Address, amount int64, details string) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return domain.Transfer{}, err
	}
	if !canOperate(b, a, caller) {
		return domain.Transfer{}, domain.ErrNotAuthorized
	}
	t, err := l.book(b, domain.TransferTypeCredit, nil, a, domain.RecipientRef{Account: account}, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	return *t, nil
}

// Debit books funds off an account onto the bank's own books. Inactive
// senders park the debit Pending.
func (l *Ledger) Debit(caller domain.Identity, account domain.Address, amount int64, details string) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return domain.Transfer{}, err
	}
	if !canOperate(b, a, caller) {
		return domain.Transfer{}, domain.ErrNotAuthorized
	}
	t, err := l.book(b, domain.TransferTypeDebit, a, nil, domain.RecipientRef{}, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	return *t, nil
}

// Transfer moves funds from a sender account to a recipient resolved through
// the account/BIC/IBAN union, routing interbank payments through the
// correspondent registry.
func (l *Ledger) Transfer(caller domain.Identity, sender domain.Address, rcpt domain.RecipientRef, amount int64, details string) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(sender)
	if err != nil {
		return domain.Transfer{}, err
	}
	if !canOperate(b, a, caller) {
		return domain.Transfer{}, domain.ErrNotAuthorized
	}
	t, err := l.transfer(b, a, rcpt, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	return *t, nil
}

// transfer is the shared movement core behind Transfer, allowance spends and
// HTLC redemptions. Returns the sender-side record.
func (l *Ledger) transfer(b *Bank, sender *domain.Account, rcpt domain.RecipientRef, amount int64, details string) (*domain.Transfer, error) {
	rb, ra, err := l.resolveRecipient(b, rcpt)
	if err != nil {
		return nil, err
	}

	switch {
	case ra != nil && rb == b:
		// Local book transfer.
		return l.book(b, domain.TransferTypeTransfer, sender, ra, rcpt, amount, details)

	case ra != nil:
		return l.interbank(b, sender, rb, ra, rcpt, amount, details)

	case rb == b:
		// The bank's own BIC: move the funds onto the bank's books.
		return l.book(b, domain.TransferTypeDebit, sender, nil, rcpt, amount, details)

	default:
		// A counterpart bank's BIC: settle onto its loro account held here.
		c, ok := b.correspondents[rb.Address]
		if !ok || !c.Registered {
			return nil, fmt.Errorf("%w: %s at %s", domain.ErrCorrespondentNotFound, rb.BIC, b.BIC)
		}
		loro := b.accounts[c.Loro]
		if loro == nil {
			return nil, fmt.Errorf("%w: loro of %s", domain.ErrAccountNotFound, rb.BIC)
		}
		return l.book(b, domain.TransferTypeTransfer, sender, loro, rcpt, amount, details)
	}
}

// Approve sets the allowance of a third-party spender on an account and
// emits the new value.
func (l *Ledger) Approve(caller domain.Identity, account domain.Address, spender domain.Identity, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if !canOperate(b, a, caller) {
		return domain.ErrNotAuthorized
	}
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	a.Allowances[spender] = amount
	l.emit(b.Address, domain.ApprovalEvent{Owner: a.Address, Spender: spender, Value: amount})
	return nil
}

// Allowance reads the remaining spend authorization of a spender.
func (l *Ledger) Allowance(account domain.Address, spender domain.Identity) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, a, err := l.account(account)
	if err != nil {
		return 0, err
	}
	return a.Allowances[spender], nil
}

// TransferFrom spends a previously approved allowance. The allowance is
// decremented only when the movement is booked; a spend above the remaining
// allowance rejects without mutation, and a booked spend that parks Pending
// gives the allowance back if the back office rejects it.
func (l *Ledger) TransferFrom(spender domain.Identity, account domain.Address, rcpt domain.RecipientRef, amount int64, details string) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return domain.Transfer{}, err
	}
	allowance := a.Allowances[spender]
	if amount <= 0 {
		return domain.Transfer{}, domain.ErrInvalidAmount
	}
	if allowance < amount {
		return domain.Transfer{}, domain.ErrAllowanceExceeded
	}
	t, err := l.transfer(b, a, rcpt, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	t.Spender = spender
	remaining := allowance - amount
	a.Allowances[spender] = remaining
	l.emit(b.Address, domain.ApprovalEvent{Owner: a.Address, Spender: spender, Value: remaining})
	return *t, nil
}

// LockAmount reserves funds on an account, consuming overdraft capacity when
// the attribute allows it.
func (l *Ledger) LockAmount(caller domain.Identity, account domain.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if !canOperate(b, a, caller) {
		return domain.ErrNotAuthorized
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := checkLock(a, amount); err != nil {
		return err
	}
	a.Locked += amount
	return nil
}

// UnlockAmount releases a plain reservation.
func (l *Ledger) UnlockAmount(caller domain.Identity, account domain.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return err
	}
	if !canOperate(b, a, caller) {
		return domain.ErrNotAuthorized
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if a.Locked < amount {
		return domain.ErrInsufficientLockedFunds
	}
	a.Locked -= amount
	return nil
}
