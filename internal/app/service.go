/**
 * @description
 * This file contains the core business logic for the settlement-service. The
 * `Service` struct orchestrates all money movement operations, coordinating
 * between the in-memory settlement ledger, the archive repository, and the
 * message broker.
 *
 * Key features:
 * - Wraps every ledger operation exposed over the API.
 * - Archives each transfer record so history survives restarts and account
 *   unregistration.
 * - Pending decisions re-archive the same record, upserting the final status.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - internal/domain, internal/iban, internal/ledger, internal/store: Domain
 *   models, IBAN codec, settlement core and data access.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/iban"
	"github.com/openclearing/settlement-service/internal/ledger"
	"github.com/openclearing/settlement-service/internal/store"
)

// Service provides the core business logic for settlement operations.
type Service struct {
	ledger *ledger.Ledger
	repo   store.Repository
}

// NewService creates a new settlement service instance. repo may be nil, in
// which case transfers are not archived.
func NewService(l *ledger.Ledger, repo store.Repository) *Service {
	return &Service{ledger: l, repo: repo}
}

// Ledger exposes the underlying settlement core for bootstrap wiring.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// archive upserts a transfer record keyed by the booking bank's BIC. Archive
// failures are logged, never surfaced: the ledger is the source of truth for
// live state.
func (s *Service) archive(ctx context.Context, t domain.Transfer) {
	if s.repo == nil || t.ID == 0 {
		return
	}
	bank, err := s.ledger.BankInfo(t.Bank)
	if err != nil {
		log.Printf("level=error component=service msg=\"archive skipped, unknown bank\" bank=%s transfer_id=%d err=%v", t.Bank, t.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.ArchiveTransfer(ctx, bank.BIC, &t); err != nil {
		log.Printf("level=error component=service msg=\"archive failed\" bank_bic=%s transfer_id=%d err=%v", bank.BIC, t.ID, err)
	}
}

// Credit books funds onto an account.
func (s *Service) Credit(ctx context.Context, caller domain.Identity, account domain.Address, amount int64, details string) (domain.Transfer, error) {
	t, err := s.ledger.Credit(caller, account, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	s.archive(ctx, t)
	return t, nil
}

// Debit removes funds from an account.
func (s *Service) Debit(ctx context.Context, caller domain.Identity, account domain.Address, amount int64, details string) (domain.Transfer, error) {
	t, err := s.ledger.Debit(caller, account, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	s.archive(ctx, t)
	return t, nil
}

// Transfer moves funds from a sender account to a recipient reference, which
// may resolve to a local account, a correspondent route or an IBAN.
func (s *Service) Transfer(ctx context.Context, caller domain.Identity, sender domain.Address, rcpt domain.RecipientRef, amount int64, details string) (domain.Transfer, error) {
	t, err := s.ledger.Transfer(caller, sender, rcpt, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	s.archive(ctx, t)
	return t, nil
}

// TransferFrom spends a previously approved allowance on behalf of the owner.
func (s *Service) TransferFrom(ctx context.Context, spender domain.Identity, account domain.Address, rcpt domain.RecipientRef, amount int64, details string) (domain.Transfer, error) {
	t, err := s.ledger.TransferFrom(spender, account, rcpt, amount, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	s.archive(ctx, t)
	return t, nil
}

// Approve sets the allowance granted by an account to a spender.
func (s *Service) Approve(caller domain.Identity, account domain.Address, spender domain.Identity, amount int64) error {
	return s.ledger.Approve(caller, account, spender, amount)
}

// Allowance reports the remaining allowance for a spender.
func (s *Service) Allowance(account domain.Address, spender domain.Identity) (int64, error) {
	return s.ledger.Allowance(account, spender)
}

// LockAmount reserves part of an account balance.
func (s *Service) LockAmount(caller domain.Identity, account domain.Address, amount int64) error {
	return s.ledger.LockAmount(caller, account, amount)
}

// UnlockAmount releases a previously locked amount.
func (s *Service) UnlockAmount(caller domain.Identity, account domain.Address, amount int64) error {
	return s.ledger.UnlockAmount(caller, account, amount)
}

// HTLCLock creates a hash time locked payment on an account.
func (s *Service) HTLCLock(caller domain.Identity, account domain.Address, rcpt domain.RecipientRef, amount int64, deadline time.Time, hashlockPaid, hashlockCancel, opaque string) (domain.HTLCPayment, error) {
	return s.ledger.HTLCLock(caller, account, rcpt, amount, deadline, hashlockPaid, hashlockCancel, opaque)
}

// HTLCTransfer settles a hash time locked payment with the payment secret.
func (s *Service) HTLCTransfer(ctx context.Context, account domain.Address, id uint64, rcpt domain.RecipientRef, secret, details string) (domain.Transfer, error) {
	t, err := s.ledger.HTLCTransfer(account, id, rcpt, secret, details)
	if err != nil {
		return domain.Transfer{}, err
	}
	s.archive(ctx, t)
	return t, nil
}

// HTLCUnlock cancels a hash time locked payment.
func (s *Service) HTLCUnlock(account domain.Address, id uint64, secret string) error {
	return s.ledger.HTLCUnlock(account, id, secret)
}

// HTLCInfo returns a hash time locked payment by account and id.
func (s *Service) HTLCInfo(account domain.Address, id uint64) (domain.HTLCPayment, error) {
	return s.ledger.HTLCInfo(account, id)
}

// DecidePendingTransfer resolves a parked transfer to Rejected or Completed.
func (s *Service) DecidePendingTransfer(ctx context.Context, caller domain.Identity, bank domain.Address, id uint64, decision domain.TransferStatus, reason string) (domain.Transfer, error) {
	t, err := s.ledger.DecidePendingTransfer(caller, bank, id, decision, reason)
	if err != nil {
		return domain.Transfer{}, err
	}
	s.archive(ctx, t)
	return t, nil
}

// PendingTransfers lists transfers awaiting a back-office decision at a bank.
func (s *Service) PendingTransfers(bank domain.Address) ([]domain.Transfer, error) {
	return s.ledger.PendingTransfers(bank)
}

// RegisterBank creates a bank ledger.
func (s *Service) RegisterBank(spec ledger.BankSpec) (domain.Address, error) {
	return s.ledger.RegisterBank(spec)
}

// UnregisterBank removes a bank ledger.
func (s *Service) UnregisterBank(caller domain.Identity, bank domain.Address) error {
	return s.ledger.UnregisterBank(caller, bank)
}

// RegisterAccount opens an account at a bank and assigns its number and IBAN.
func (s *Service) RegisterAccount(caller domain.Identity, bank domain.Address, name string, owner domain.Identity) (*domain.Account, error) {
	return s.ledger.RegisterAccount(caller, bank, name, owner)
}

// UnregisterAccount closes an account. Its transfer history is retained.
func (s *Service) UnregisterAccount(caller domain.Identity, account domain.Address) error {
	return s.ledger.UnregisterAccount(caller, account)
}

// ToggleAccountActive flips the active flag and returns the new state.
func (s *Service) ToggleAccountActive(caller domain.Identity, account domain.Address) (bool, error) {
	return s.ledger.ToggleAccountActive(caller, account)
}

// Whitelist authorizes an identity to operate an account.
func (s *Service) Whitelist(caller domain.Identity, account domain.Address, id domain.Identity) error {
	return s.ledger.Whitelist(caller, account, id)
}

// RemoveFromWhitelist revokes an operating identity.
func (s *Service) RemoveFromWhitelist(caller domain.Identity, account domain.Address, id domain.Identity) error {
	return s.ledger.RemoveFromWhitelist(caller, account, id)
}

// SetNumAttribute sets a numeric account attribute such as the overdraft limit.
func (s *Service) SetNumAttribute(caller domain.Identity, account domain.Address, key string, value int64) error {
	return s.ledger.SetNumAttribute(caller, account, key, value)
}

// NumAttribute reads a numeric account attribute.
func (s *Service) NumAttribute(account domain.Address, key string) (int64, error) {
	return s.ledger.NumAttribute(account, key)
}

// SetStrAttribute sets a string account attribute.
func (s *Service) SetStrAttribute(caller domain.Identity, account domain.Address, key, value string) error {
	return s.ledger.SetStrAttribute(caller, account, key, value)
}

// StrAttribute reads a string account attribute.
func (s *Service) StrAttribute(account domain.Address, key string) (string, error) {
	return s.ledger.StrAttribute(account, key)
}

// AccountInfo returns the query projection of an account.
func (s *Service) AccountInfo(account domain.Address) (ledger.AccountView, error) {
	return s.ledger.AccountInfo(account)
}

// BankInfo returns the query projection of a bank.
func (s *Service) BankInfo(bank domain.Address) (ledger.BankView, error) {
	return s.ledger.BankInfo(bank)
}

// BankByBIC resolves a BIC to a bank address.
func (s *Service) BankByBIC(bic string) (domain.Address, error) {
	return s.ledger.BankByBIC(bic)
}

// TransferInfo returns a transfer from the live ledger, falling back to the
// archive for records that predate the current process.
func (s *Service) TransferInfo(ctx context.Context, bank domain.Address, id uint64) (domain.Transfer, error) {
	t, err := s.ledger.TransferInfo(bank, id)
	if err == nil || s.repo == nil {
		return t, err
	}
	info, berr := s.ledger.BankInfo(bank)
	if berr != nil {
		return domain.Transfer{}, err
	}
	archived, aerr := s.repo.FindTransfer(ctx, info.BIC, id)
	if aerr != nil {
		return domain.Transfer{}, err
	}
	return *archived, nil
}

// RegisterCorrespondent records a nostro/loro account pair for a counterpart.
func (s *Service) RegisterCorrespondent(caller domain.Identity, bank, counterpart, nostro, loro domain.Address) error {
	return s.ledger.RegisterCorrespondent(caller, bank, counterpart, nostro, loro)
}

// UnregisterCorrespondent removes a correspondent entry.
func (s *Service) UnregisterCorrespondent(caller domain.Identity, bank, counterpart domain.Address) error {
	return s.ledger.UnregisterCorrespondent(caller, bank, counterpart)
}

// CorrespondentInfo returns the correspondent entry for a counterpart.
func (s *Service) CorrespondentInfo(bank, counterpart domain.Address) (ledger.CorrespondentView, error) {
	return s.ledger.CorrespondentInfo(bank, counterpart)
}

// CreditNostro funds a nostro account and its loro mirror in one operation.
func (s *Service) CreditNostro(caller domain.Identity, bank, nostro domain.Address, amount int64, details string) error {
	return s.ledger.CreditNostro(caller, bank, nostro, amount, details)
}

// RequestNetting clears matching nostro positions between two banks.
func (s *Service) RequestNetting(caller domain.Identity, bank, counterpart domain.Address, amount int64) error {
	return s.ledger.RequestNetting(caller, bank, counterpart, amount)
}

// DecodeIBAN extracts the French bank, branch and account codes from an IBAN.
func (s *Service) DecodeIBAN(value string) (iban.FrenchIBANDetails, error) {
	return iban.ExtractFrenchIBAN(value)
}

// SweepExpiredHTLCs cancels every payment past its deadline and returns the
// number of payments swept.
func (s *Service) SweepExpiredHTLCs() int {
	return s.ledger.SweepExpiredHTLCs()
}
