package ledger

import (
	"errors"
	"testing"

	"github.com/openclearing/settlement-service/internal/domain"
)

func TestInterbankTransferViaLoro(t *testing.T) {
	n := newNetwork(t)
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	acc2 := n.account(t, n.bank2, op2, "Account2", "user2")

	if _, err := n.ledger.Credit(op1, acc1, 1_000_000, "Initial credit"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{Account: acc2}, 300_000, "Transfer to account 2"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := n.balance(t, acc1).Balance; got != 700_000 {
		t.Errorf("sender = %d, want 700000", got)
	}
	if got := n.balance(t, acc2).Balance; got != 300_000 {
		t.Errorf("recipient = %d, want 300000", got)
	}
	// The counterpart's loro account held at bank1 carries the settlement.
	if got := n.balance(t, n.nostro2).Balance; got != 300_000 {
		t.Errorf("loro = %d, want 300000", got)
	}
	if got := n.balance(t, n.nostro1).Balance; got != 0 {
		t.Errorf("nostro = %d, want 0", got)
	}

	// Bank2's cached mirror of its nostro refreshed with the settlement.
	c, err := n.ledger.CorrespondentInfo(n.bank2, n.bank1)
	if err != nil {
		t.Fatalf("correspondent info: %v", err)
	}
	if c.LastNostroBalance != 300_000 {
		t.Errorf("lastNostroBalance = %d, want 300000", c.LastNostroBalance)
	}
}

func TestInterbankTransferViaNostro(t *testing.T) {
	n := newNetwork(t)
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	acc2 := n.account(t, n.bank2, op2, "Account2", "user2")

	// Fund bank1's nostro at bank2 and allow bank1 to operate it.
	if _, err := n.ledger.Credit(op2, n.nostro1, 500_000, "Nostro funding"); err != nil {
		t.Fatalf("fund nostro: %v", err)
	}
	if err := n.ledger.Whitelist(op2, n.nostro1, domain.Identity(n.bank1)); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := n.ledger.Credit(op1, acc1, 1_000_000, "Initial credit"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{Account: acc2}, 300_000, "Transfer to account 2"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := n.balance(t, acc1).Balance; got != 700_000 {
		t.Errorf("sender = %d, want 700000", got)
	}
	if got := n.balance(t, acc2).Balance; got != 300_000 {
		t.Errorf("recipient = %d, want 300000", got)
	}
	if got := n.balance(t, n.nostro2).Balance; got != 0 {
		t.Errorf("loro = %d, want 0", got)
	}
	if got := n.balance(t, n.nostro1).Balance; got != 200_000 {
		t.Errorf("nostro = %d, want 200000", got)
	}

	// Bank1's mirror of its own nostro followed the debit.
	c, err := n.ledger.CorrespondentInfo(n.bank1, n.bank2)
	if err != nil {
		t.Fatalf("correspondent info: %v", err)
	}
	if c.LastNostroBalance != 200_000 {
		t.Errorf("lastNostroBalance = %d, want 200000", c.LastNostroBalance)
	}
}

func TestInterbankTransferViaIBAN(t *testing.T) {
	n := newNetwork(t)
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	acc2 := n.account(t, n.bank2, op2, "Account2", "user2")

	if _, err := n.ledger.Credit(op1, acc1, 1_000_000, "Initial credit"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	iban := n.balance(t, acc2).IBAN

	if _, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{IBAN: iban}, 300_000, "Transfer to "+iban); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := n.balance(t, acc1).Balance; got != 700_000 {
		t.Errorf("sender = %d, want 700000", got)
	}
	if got := n.balance(t, acc2).Balance; got != 300_000 {
		t.Errorf("recipient = %d, want 300000", got)
	}
	if got := n.balance(t, n.nostro2).Balance; got != 300_000 {
		t.Errorf("loro = %d, want 300000", got)
	}
}

func TestInterbankPendingDecidedAtRecipientBank(t *testing.T) {
	n := newNetwork(t)
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	acc2 := n.account(t, n.bank2, op2, "Account2", "user2")

	if _, err := n.ledger.Credit(op1, acc1, 1_000_000, "Initial credit"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := n.ledger.ToggleAccountActive(op2, acc2); err != nil {
		t.Fatalf("deactivate recipient: %v", err)
	}

	if _, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{Account: acc2}, 300_000, "Transfer to account 2"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// The sender leg settled; the beneficiary leg is parked at bank2.
	if got := n.balance(t, acc1).Balance; got != 700_000 {
		t.Errorf("sender = %d, want 700000", got)
	}
	if got := n.balance(t, acc2).Balance; got != 0 {
		t.Errorf("recipient before decision = %d, want 0", got)
	}

	pending, err := n.ledger.PendingTransfers(n.bank2)
	if err != nil {
		t.Fatalf("pending transfers: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending at bank2 = %d, want 1", len(pending))
	}
	if pending[0].Reason != "Inactive recipient account" {
		t.Errorf("reason = %q, want %q", pending[0].Reason, "Inactive recipient account")
	}

	if _, err := n.ledger.DecidePendingTransfer(op2, n.bank2, pending[0].ID, domain.StatusCompleted, "Accept the credit"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got := n.balance(t, acc2).Balance; got != 300_000 {
		t.Errorf("recipient after decision = %d, want 300000", got)
	}
}

func TestInterbankWithoutCorrespondentFails(t *testing.T) {
	n := newNetwork(t)
	lone, err := n.ledger.RegisterBank(BankSpec{
		BIC: "BNPAFRPPXXX", BankCode: "30004", BranchCode: "00002",
		Currency: "EUR", Decimals: 2, Operator: "bo-lone",
	})
	if err != nil {
		t.Fatalf("register bank: %v", err)
	}
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	accL := n.account(t, lone, "bo-lone", "Lone", "user2")

	if _, err := n.ledger.Credit(op1, acc1, 10_000, "funding"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{Account: accL}, 1_000, "no route"); !errors.Is(err, domain.ErrCorrespondentNotFound) {
		t.Errorf("transfer without correspondent: err = %v, want ErrCorrespondentNotFound", err)
	}
}

func TestCreditNostroFundsBothSides(t *testing.T) {
	n := newNetwork(t)

	if err := n.ledger.CreditNostro(op1, n.bank1, n.nostro1, 1_000_000, "First credit"); err != nil {
		t.Fatalf("credit nostro: %v", err)
	}

	if got := n.balance(t, n.nostro1).Balance; got != 1_000_000 {
		t.Errorf("nostro1 = %d, want 1000000", got)
	}
	if got := n.balance(t, n.nostro2).Balance; got != 1_000_000 {
		t.Errorf("nostro2 = %d, want 1000000", got)
	}

	c1, err := n.ledger.CorrespondentInfo(n.bank1, n.bank2)
	if err != nil {
		t.Fatalf("correspondent info bank1: %v", err)
	}
	c2, err := n.ledger.CorrespondentInfo(n.bank2, n.bank1)
	if err != nil {
		t.Fatalf("correspondent info bank2: %v", err)
	}
	if c1.LastNostroBalance != 1_000_000 || c2.LastNostroBalance != 1_000_000 {
		t.Errorf("mirrors = %d/%d, want 1000000/1000000", c1.LastNostroBalance, c2.LastNostroBalance)
	}
}

func TestRequestNettingClearsBothNostros(t *testing.T) {
	n := newNetwork(t)

	if err := n.ledger.CreditNostro(op1, n.bank1, n.nostro1, 1_000_000, "funding"); err != nil {
		t.Fatalf("credit nostro: %v", err)
	}
	if err := n.ledger.RequestNetting(op1, n.bank1, n.bank2, 1_000_000); err != nil {
		t.Fatalf("netting: %v", err)
	}

	if got := n.balance(t, n.nostro1).Balance; got != 0 {
		t.Errorf("nostro1 = %d, want 0", got)
	}
	if got := n.balance(t, n.nostro2).Balance; got != 0 {
		t.Errorf("nostro2 = %d, want 0", got)
	}

	c1, _ := n.ledger.CorrespondentInfo(n.bank1, n.bank2)
	c2, _ := n.ledger.CorrespondentInfo(n.bank2, n.bank1)
	if c1.LastNostroBalance != 0 || c2.LastNostroBalance != 0 {
		t.Errorf("mirrors = %d/%d, want 0/0", c1.LastNostroBalance, c2.LastNostroBalance)
	}
}

func TestNettingRequiresCoverage(t *testing.T) {
	n := newNetwork(t)
	if err := n.ledger.RequestNetting(op1, n.bank1, n.bank2, 1); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("netting on empty nostros: err = %v, want ErrInsufficientFunds", err)
	}
}

func TestUnregisterCorrespondent(t *testing.T) {
	n := newNetwork(t)

	if !n.ledger.IsCorrespondentRegistered(n.bank1, n.bank2) {
		t.Fatal("correspondent not registered after fixture setup")
	}
	if err := n.ledger.UnregisterCorrespondent(op1, n.bank1, n.bank2); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if n.ledger.IsCorrespondentRegistered(n.bank1, n.bank2) {
		t.Error("correspondent still registered")
	}

	// The routing path is gone for bank1, bank2's own view is untouched.
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	acc2 := n.account(t, n.bank2, op2, "Account2", "user2")
	if _, err := n.ledger.Credit(op1, acc1, 10_000, "funding"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{Account: acc2}, 1_000, "x"); !errors.Is(err, domain.ErrCorrespondentNotFound) {
		t.Errorf("transfer after unregister: err = %v, want ErrCorrespondentNotFound", err)
	}
	if !n.ledger.IsCorrespondentRegistered(n.bank2, n.bank1) {
		t.Error("counterpart view should survive a one-sided unregister")
	}
}

func TestPendingNostroPathDecisionNeedsCover(t *testing.T) {
	n := newNetwork(t)
	acc1 := n.account(t, n.bank1, op1, "Account1", "user1")
	acc2 := n.account(t, n.bank2, op2, "Account2", "user2")

	if _, err := n.ledger.Credit(op2, n.nostro1, 500_000, "Nostro funding"); err != nil {
		t.Fatalf("fund nostro: %v", err)
	}
	if err := n.ledger.Whitelist(op2, n.nostro1, domain.Identity(n.bank1)); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := n.ledger.Credit(op1, acc1, 1_000_000, "Initial credit"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := n.ledger.ToggleAccountActive(op1, acc1); err != nil {
		t.Fatalf("deactivate sender: %v", err)
	}

	// The sender leg parks at bank1 with the nostro path already chosen.
	tr, err := n.ledger.Transfer(op1, acc1, domain.RecipientRef{Account: acc2}, 300_000, "Transfer to account 2")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tr.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", tr.Status)
	}

	// The nostro loses its cover while the record sits pending.
	if _, err := n.ledger.Debit(op2, n.nostro1, 400_000, "drain"); err != nil {
		t.Fatalf("drain nostro: %v", err)
	}

	if _, err := n.ledger.DecidePendingTransfer(op1, n.bank1, tr.ID, domain.StatusCompleted, ""); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("decide on drained nostro: err = %v, want ErrInsufficientFunds", err)
	}

	// Nothing moved and the record is still decidable.
	if got := n.balance(t, acc1).Balance; got != 1_000_000 {
		t.Errorf("sender = %d, want 1000000", got)
	}
	if got := n.balance(t, acc2).Balance; got != 0 {
		t.Errorf("beneficiary = %d, want 0", got)
	}
	rec, err := n.ledger.TransferInfo(n.bank1, tr.ID)
	if err != nil {
		t.Fatalf("transfer info: %v", err)
	}
	if rec.Status != domain.StatusPending {
		t.Errorf("status after failed decision = %s, want pending", rec.Status)
	}

	// Refunding the nostro lets the same decision settle.
	if _, err := n.ledger.Credit(op2, n.nostro1, 400_000, "refund"); err != nil {
		t.Fatalf("refund nostro: %v", err)
	}
	if _, err := n.ledger.DecidePendingTransfer(op1, n.bank1, tr.ID, domain.StatusCompleted, ""); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got := n.balance(t, acc1).Balance; got != 700_000 {
		t.Errorf("sender after decision = %d, want 700000", got)
	}
	if got := n.balance(t, acc2).Balance; got != 300_000 {
		t.Errorf("beneficiary after decision = %d, want 300000", got)
	}
	if got := n.balance(t, n.nostro1).Balance; got != 200_000 {
		t.Errorf("nostro = %d, want 200000", got)
	}
}
