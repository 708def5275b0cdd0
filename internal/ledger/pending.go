/**
 * @description
 * Back-office resolution of pending transfers. A transfer parks Pending only
 * for inactive sender/recipient conditions; the decision either applies the
 * originally recorded movement (Completed) or cancels it for good (Rejected).
 * Terminal records cannot be decided again.
 */

package ledger

import (
	"fmt"

	"github.com/openclearing/settlement-service/internal/domain"
)

// DecidePendingTransfer resolves a pending transfer. The decision is the
// target status: StatusCompleted applies the stored movement now (balance
// guards re-run, the inactivity that parked the transfer is overridden);
// StatusRejected cancels it permanently.
func (l *Ledger) DecidePendingTransfer(caller domain.Identity, bank domain.Address, id uint64, decision domain.TransferStatus, reason string) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return domain.Transfer{}, err
	}
	if caller != b.Operator {
		return domain.Transfer{}, domain.ErrNotAuthorized
	}
	t, ok := b.transfers[id]
	if !ok {
		return domain.Transfer{}, fmt.Errorf("%w: %d at %s", domain.ErrTransferNotFound, id, b.BIC)
	}
	if t.Status != domain.StatusPending {
		return domain.Transfer{}, fmt.Errorf("%w: %d is %s", domain.ErrTransferNotPending, id, t.Status)
	}

	switch decision {
	case domain.StatusRejected:
		t.Status = domain.StatusRejected
		if reason != "" {
			t.Reason = reason
		}
		t.DecidedAt = l.clock()
		// An allowance consumed by a parked spend comes back on rejection.
		if t.Spender != "" {
			if a, ok := b.accounts[t.DebitAccount]; ok {
				remaining := a.Allowances[t.Spender] + t.Amount
				a.Allowances[t.Spender] = remaining
				l.emit(b.Address, domain.ApprovalEvent{Owner: a.Address, Spender: t.Spender, Value: remaining})
			}
		}
		l.emit(b.Address, domain.TransferStateChangedEvent{ID: t.ID, Status: t.Status, Reason: t.Reason})
		return *t, nil

	case domain.StatusCompleted:
		if !t.DebitAccount.Zero() {
			a, ok := b.accounts[t.DebitAccount]
			if !ok {
				return domain.Transfer{}, fmt.Errorf("%w: sender %s", domain.ErrAccountNotFound, t.DebitAccount)
			}
			if err := checkDebit(a, t.Amount); err != nil {
				return domain.Transfer{}, err
			}
		}
		if !t.CreditAccount.Zero() {
			if _, ok := b.accounts[t.CreditAccount]; !ok {
				return domain.Transfer{}, fmt.Errorf("%w: recipient %s", domain.ErrAccountNotFound, t.CreditAccount)
			}
		}
		// The forward leg must still be bookable before the sending side
		// settles; a failed decision leaves the transfer Pending.
		if !t.ForwardBank.Zero() {
			if err := l.checkForward(t); err != nil {
				return domain.Transfer{}, err
			}
		}
		if reason != "" {
			t.Reason = reason
		}
		l.apply(b, t)
		if !t.ForwardBank.Zero() {
			if err := l.forward(t); err != nil {
				return domain.Transfer{}, err
			}
		}
		return *t, nil

	default:
		return domain.Transfer{}, fmt.Errorf("%w: got %d", domain.ErrInvalidDecision, decision)
	}
}

// PendingTransfers lists the undecided records of a bank, oldest first.
func (l *Ledger) PendingTransfers(bank domain.Address) ([]domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bank(bank)
	if err != nil {
		return nil, err
	}
	var out []domain.Transfer
	for id := uint64(1); id <= b.transferSeq; id++ {
		if t, ok := b.transfers[id]; ok && t.Status == domain.StatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}
