/**
 * @description
 * Hashed-timelock conditional payments. A payment reserves funds on an
 * account under two independent hashlocks: revealing the paid-secret settles
 * the reservation to a recipient, revealing the cancel-secret (or reaching
 * the deadline) returns it to the account. Each payment resolves exactly
 * once; ids are never reused.
 *
 * Redemption and cancellation are deliberately open calls: possession of a
 * matching preimage is the authorization.
 */

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/openclearing/settlement-service/internal/domain"
)

// HashSecret returns the hex sha256 digest of a secret, the digest form
// stored in hashlocks.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func normalizeDigest(h string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "0x")
}

func digestMatches(secret, hashlock string) bool {
	return HashSecret(secret) == normalizeDigest(hashlock)
}

// HTLCLock reserves funds on an account under the given hashlocks. The
// reservation follows the same overdraft-aware guard as a debit.
func (l *Ledger) HTLCLock(caller domain.Identity, account domain.Address, rcpt domain.RecipientRef, amount int64, deadline time.Time, hashlockPaid, hashlockCancel, opaque string) (domain.HTLCPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, err := l.account(account)
	if err != nil {
		return domain.HTLCPayment{}, err
	}
	if !canOperate(b, a, caller) {
		return domain.HTLCPayment{}, domain.ErrNotAuthorized
	}
	if amount <= 0 {
		return domain.HTLCPayment{}, domain.ErrInvalidAmount
	}
	if err := checkLock(a, amount); err != nil {
		return domain.HTLCPayment{}, err
	}

	a.Locked += amount
	b.htlcSeq[account]++
	p := &domain.HTLCPayment{
		ID:             b.htlcSeq[account],
		Account:        account,
		Recipient:      rcpt,
		Amount:         amount,
		HashlockPaid:   normalizeDigest(hashlockPaid),
		HashlockCancel: normalizeDigest(hashlockCancel),
		Deadline:       deadline,
		Opaque:         opaque,
	}
	if b.htlcs[account] == nil {
		b.htlcs[account] = make(map[uint64]*domain.HTLCPayment)
	}
	b.htlcs[account][p.ID] = p
	l.emit(b.Address, domain.HTLCPaymentCreatedEvent{
		ID:           p.ID,
		Account:      account,
		HashlockPaid: p.HashlockPaid,
		Amount:       p.Amount,
		Deadline:     p.Deadline,
		Opaque:       p.Opaque,
	})
	return *p, nil
}

// htlc finds a live payment on an account.
func (l *Ledger) htlc(account domain.Address, id uint64) (*Bank, *domain.Account, *domain.HTLCPayment, error) {
	b, a, err := l.account(account)
	if err != nil {
		return nil, nil, nil, err
	}
	p, ok := b.htlcs[account][id]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %d on %s", domain.ErrHTLCNotFound, id, account)
	}
	return b, a, p, nil
}

// HTLCTransfer settles a payment to a recipient against the paid-secret. The
// recipient override, when set, takes precedence over the recipient recorded
// at lock time; with neither set the funds simply return to the account
// unlocked. Settlement to another account runs through the normal transfer
// machinery, interbank routing included.
func (l *Ledger) HTLCTransfer(account domain.Address, id uint64, rcpt domain.RecipientRef, secret, details string) (domain.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, p, err := l.htlc(account, id)
	if err != nil {
		return domain.Transfer{}, err
	}
	if !digestMatches(secret, p.HashlockPaid) {
		return domain.Transfer{}, domain.ErrSecretMismatch
	}
	if rcpt.IsZero() {
		rcpt = p.Recipient
	}

	a.Locked -= p.Amount
	delete(b.htlcs[account], id)

	var out domain.Transfer
	if !rcpt.IsZero() && rcpt.Account != account {
		t, err := l.transfer(b, a, rcpt, p.Amount, details)
		if err == nil && t.Status == domain.StatusPending {
			// The settlement leg parked without moving funds. Cancel the
			// parked record and fail the redemption; the reservation stays
			// until the payment can actually settle.
			t.Status = domain.StatusRejected
			t.DecidedAt = l.clock()
			l.emit(b.Address, domain.TransferStateChangedEvent{ID: t.ID, Status: t.Status, Reason: t.Reason})
			err = domain.ErrHTLCInactiveAccount
		}
		if err != nil {
			// Atomic no-op: restore the reservation when the settlement leg
			// cannot be booked.
			a.Locked += p.Amount
			b.htlcs[account][id] = p
			return domain.Transfer{}, err
		}
		out = *t
	}
	l.emit(b.Address, domain.HTLCPaymentRemovedEvent{ID: id, Account: account, Cancelled: false, UsingSecret: true})
	return out, nil
}

// HTLCUnlock cancels a payment, returning the reservation to the account.
// The cancel-secret works at any time; at or past the deadline any input is
// accepted, so timeout reclamation needs no secret at all.
func (l *Ledger) HTLCUnlock(account domain.Address, id uint64, secret string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, a, p, err := l.htlc(account, id)
	if err != nil {
		return err
	}
	usingSecret := digestMatches(secret, p.HashlockCancel)
	if !usingSecret && l.clock().Before(p.Deadline) {
		return domain.ErrSecretMismatch
	}

	a.Locked -= p.Amount
	delete(b.htlcs[account], id)
	l.emit(b.Address, domain.HTLCPaymentRemovedEvent{ID: id, Account: account, Cancelled: true, UsingSecret: usingSecret})
	return nil
}

// HTLCInfo returns a live payment.
func (l *Ledger) HTLCInfo(account domain.Address, id uint64) (domain.HTLCPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _, p, err := l.htlc(account, id)
	if err != nil {
		return domain.HTLCPayment{}, err
	}
	return *p, nil
}

// SweepExpiredHTLCs cancels every payment whose deadline has passed and
// returns the number of reservations released. Run periodically by the
// scheduler; equivalent to a timeout HTLCUnlock per payment.
func (l *Ledger) SweepExpiredHTLCs() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	swept := 0
	for _, b := range l.banks {
		for account, payments := range b.htlcs {
			a := b.accounts[account]
			if a == nil {
				continue
			}
			for id, p := range payments {
				if now.Before(p.Deadline) {
					continue
				}
				a.Locked -= p.Amount
				delete(payments, id)
				l.emit(b.Address, domain.HTLCPaymentRemovedEvent{ID: id, Account: account, Cancelled: true, UsingSecret: false})
				swept++
			}
		}
	}
	return swept
}
