package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/ledger"
	"github.com/openclearing/settlement-service/internal/store"
)

type archiveKey struct {
	bic string
	id  uint64
}

// memRepo is an in-memory stand-in for the Postgres archive.
type memRepo struct {
	mu        sync.Mutex
	transfers map[archiveKey]domain.Transfer
	events    []store.JournalEntry
	failNext  error
}

func newMemRepo() *memRepo {
	return &memRepo{transfers: make(map[archiveKey]domain.Transfer)}
}

func (r *memRepo) ArchiveTransfer(ctx context.Context, bankBIC string, t *domain.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.transfers[archiveKey{bankBIC, t.ID}] = *t
	return nil
}

func (r *memRepo) FindTransfer(ctx context.Context, bankBIC string, id uint64) (*domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[archiveKey{bankBIC, id}]
	if !ok {
		return nil, store.ErrTransferNotArchived
	}
	return &t, nil
}

func (r *memRepo) ListTransfersBySender(ctx context.Context, sender domain.Address, limit int) ([]domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transfer
	for _, t := range r.transfers {
		if t.Sender == sender {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) AppendEvent(ctx context.Context, bank domain.Address, name string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, store.JournalEntry{
		ID:      int64(len(r.events) + 1),
		Bank:    bank,
		Name:    name,
		Payload: payload,
	})
	return nil
}

func (r *memRepo) ListEvents(ctx context.Context, bank domain.Address, limit int) ([]store.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.JournalEntry
	for _, e := range r.events {
		if e.Bank == bank {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) eventCount(bank domain.Address) int {
	entries, _ := r.ListEvents(context.Background(), bank, 0)
	return len(entries)
}

// memPublisher records published ledger events.
type memPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *memPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	return nil
}

func (p *memPublisher) PublishLedgerEvent(ctx context.Context, bank domain.Address, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.Name())
	return nil
}

func (p *memPublisher) Close() {}

func (p *memPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

const testOperator = domain.Identity("bo-test")

func newTestService(t *testing.T, repo store.Repository, sink ledger.EventSink) (*Service, domain.Address) {
	t.Helper()
	l := ledger.New(nil, sink)
	bank, err := l.RegisterBank(ledger.BankSpec{
		BIC:        "AGRIFRPPXXX",
		BankCode:   "30002",
		BranchCode: "05728",
		Currency:   "EUR",
		Decimals:   2,
		Operator:   testOperator,
	})
	if err != nil {
		t.Fatalf("RegisterBank: %v", err)
	}
	return NewService(l, repo), bank
}

func TestCreditArchivesTransfer(t *testing.T) {
	repo := newMemRepo()
	svc, bank := newTestService(t, repo, nil)
	ctx := context.Background()

	acct, err := svc.RegisterAccount(testOperator, bank, "Alice", "alice")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	tr, err := svc.Credit(ctx, testOperator, acct.Address, 500000, "initial funding")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}

	archived, err := repo.FindTransfer(ctx, "AGRIFRPPXXX", tr.ID)
	if err != nil {
		t.Fatalf("FindTransfer: %v", err)
	}
	if archived.Amount != 500000 || archived.Status != domain.StatusCompleted {
		t.Fatalf("archived transfer = %+v", archived)
	}
}

func TestArchiveFailureDoesNotFailOperation(t *testing.T) {
	repo := newMemRepo()
	repo.failNext = errors.New("connection refused")
	svc, bank := newTestService(t, repo, nil)
	ctx := context.Background()

	acct, err := svc.RegisterAccount(testOperator, bank, "Alice", "alice")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	if _, err := svc.Credit(ctx, testOperator, acct.Address, 100, "funding"); err != nil {
		t.Fatalf("Credit should survive archive failure, got %v", err)
	}
}

func TestPendingDecisionReArchivesSameRecord(t *testing.T) {
	repo := newMemRepo()
	svc, bank := newTestService(t, repo, nil)
	ctx := context.Background()

	alice, err := svc.RegisterAccount(testOperator, bank, "Alice", "alice")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	bob, err := svc.RegisterAccount(testOperator, bank, "Bob", "bob")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	if _, err := svc.Credit(ctx, testOperator, alice.Address, 500000, "funding"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := svc.ToggleAccountActive(testOperator, bob.Address); err != nil {
		t.Fatalf("ToggleAccountActive: %v", err)
	}

	tr, err := svc.Transfer(ctx, testOperator, alice.Address, domain.RecipientRef{Account: bob.Address}, 100000, "invoice")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tr.Status != domain.StatusPending {
		t.Fatalf("status = %v, want Pending", tr.Status)
	}

	decided, err := svc.DecidePendingTransfer(ctx, testOperator, bank, tr.ID, domain.StatusCompleted, "reviewed")
	if err != nil {
		t.Fatalf("DecidePendingTransfer: %v", err)
	}
	if decided.Status != domain.StatusCompleted {
		t.Fatalf("decided status = %v, want Completed", decided.Status)
	}

	archived, err := repo.FindTransfer(ctx, "AGRIFRPPXXX", tr.ID)
	if err != nil {
		t.Fatalf("FindTransfer: %v", err)
	}
	if archived.Status != domain.StatusCompleted || archived.Reason != "reviewed" {
		t.Fatalf("archived record not upserted: %+v", archived)
	}
	if len(repo.transfers) != 2 {
		t.Fatalf("archive rows = %d, want 2", len(repo.transfers))
	}
}

func TestTransferInfoFallsBackToArchive(t *testing.T) {
	repo := newMemRepo()
	svc, bank := newTestService(t, repo, nil)
	ctx := context.Background()

	archived := domain.Transfer{
		ID:        42,
		Bank:      bank,
		Type:      domain.TransferTypeCredit,
		Status:    domain.StatusCompleted,
		Amount:    777,
		Currency:  "EUR",
		CreatedAt: time.Now(),
	}
	if err := repo.ArchiveTransfer(ctx, "AGRIFRPPXXX", &archived); err != nil {
		t.Fatalf("ArchiveTransfer: %v", err)
	}

	got, err := svc.TransferInfo(ctx, bank, 42)
	if err != nil {
		t.Fatalf("TransferInfo: %v", err)
	}
	if got.Amount != 777 {
		t.Fatalf("amount = %d, want 777", got.Amount)
	}

	if _, err := svc.TransferInfo(ctx, bank, 43); !errors.Is(err, domain.ErrTransferNotFound) {
		t.Fatalf("err = %v, want ErrTransferNotFound", err)
	}
}

func TestEventFanoutJournalsAndPublishes(t *testing.T) {
	repo := newMemRepo()
	pub := &memPublisher{}
	fanout := NewEventFanout(repo, pub)
	svc, bank := newTestService(t, repo, fanout)
	ctx := context.Background()

	acct, err := svc.RegisterAccount(testOperator, bank, "Alice", "alice")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	if _, err := svc.Credit(ctx, testOperator, acct.Address, 1000, "funding"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	fanout.Close()

	names := pub.names()
	if len(names) == 0 {
		t.Fatal("no events published")
	}
	var sawTransfer bool
	for _, n := range names {
		if n == "Transfer" {
			sawTransfer = true
		}
	}
	if !sawTransfer {
		t.Fatalf("published events %v lack Transfer", names)
	}
	if repo.eventCount(bank) != len(names) {
		t.Fatalf("journal entries = %d, published = %d", repo.eventCount(bank), len(names))
	}
}

func TestSweepExpiredPaymentsRestoresLockedFunds(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := ledger.New(clock, nil)
	bank, err := l.RegisterBank(ledger.BankSpec{
		BIC: "AGRIFRPPXXX", BankCode: "30002", BranchCode: "05728",
		Currency: "EUR", Decimals: 2, Operator: testOperator,
	})
	if err != nil {
		t.Fatalf("RegisterBank: %v", err)
	}
	svc := NewService(l, nil)

	acct, err := svc.RegisterAccount(testOperator, bank, "Alice", "alice")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.Credit(ctx, testOperator, acct.Address, 1000, "funding"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	_, err = svc.HTLCLock(testOperator, acct.Address, domain.RecipientRef{}, 500,
		now.Add(-time.Minute), ledger.HashSecret("s"), ledger.HashSecret("c"), "")
	if err != nil {
		t.Fatalf("HTLCLock: %v", err)
	}

	if n := svc.SweepExpiredHTLCs(); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	view, err := svc.AccountInfo(acct.Address)
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if view.UnlockedBalance != 1000 {
		t.Fatalf("unlocked = %d, want 1000", view.UnlockedBalance)
	}
}
