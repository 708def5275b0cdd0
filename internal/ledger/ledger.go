/**
 * @description
 * The settlement network: a set of bank ledgers sharing one serialized
 * execution runtime. Every public method runs as a single atomic unit under
 * the runtime mutex, re-validating its guards inside the same critical
 * section that performs the mutation.
 *
 * Cross-bank legs of an interbank settlement are booked as separate transfer
 * records on each involved bank inside the same call; the correspondent
 * mirror (lastNostroBalance) is refreshed explicitly after every settlement
 * touching a nostro/loro pair and is never used to authorize a debit.
 *
 * @dependencies
 * - github.com/google/uuid: bank and account addresses
 */

package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclearing/settlement-service/internal/domain"
)

// Clock supplies the current time to deadline checks. Injected so HTLC expiry
// is testable with simulated time.
type Clock func() time.Time

// EventSink receives every event the ledger emits, tagged with the bank that
// produced it. Implementations must not call back into the ledger.
type EventSink interface {
	Emit(bank domain.Address, event domain.Event)
}

// Ledger is the serialized settlement core holding all bank ledgers of the
// deployment.
type Ledger struct {
	mu    sync.Mutex
	clock Clock
	sink  EventSink

	banks    map[domain.Address]*Bank
	byBIC    map[string]domain.Address
	accounts map[domain.Address]domain.Address // account address -> owning bank
}

// New creates an empty network. A nil clock defaults to time.Now and a nil
// sink discards events.
func New(clock Clock, sink EventSink) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &Ledger{
		clock:    clock,
		sink:     sink,
		banks:    make(map[domain.Address]*Bank),
		byBIC:    make(map[string]domain.Address),
		accounts: make(map[domain.Address]domain.Address),
	}
}

type discardSink struct{}

func (discardSink) Emit(domain.Address, domain.Event) {}

func newAddress() domain.Address {
	return domain.Address(uuid.NewString())
}

// emit forwards an event to the sink. Called with the runtime lock held.
func (l *Ledger) emit(bank domain.Address, ev domain.Event) {
	l.sink.Emit(bank, ev)
}

// bank returns the ledger of a bank address.
func (l *Ledger) bank(addr domain.Address) (*Bank, error) {
	b, ok := l.banks[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBankNotFound, addr)
	}
	return b, nil
}

// bankByBIC returns the ledger of a registered BIC.
func (l *Ledger) bankByBIC(bic string) (*Bank, error) {
	addr, ok := l.byBIC[bic]
	if !ok {
		return nil, fmt.Errorf("%w: bic %s", domain.ErrBankNotFound, bic)
	}
	return l.banks[addr], nil
}

// account resolves an account address to its owning bank ledger and state.
func (l *Ledger) account(addr domain.Address) (*Bank, *domain.Account, error) {
	bankAddr, ok := l.accounts[addr]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, addr)
	}
	b := l.banks[bankAddr]
	a, ok := b.accounts[addr]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, addr)
	}
	return b, a, nil
}

// canOperate reports whether an identity may move funds on an account: the
// owning bank's operator, the account owner, or a whitelisted identity.
func canOperate(b *Bank, a *domain.Account, caller domain.Identity) bool {
	return caller == b.Operator || caller == a.Owner || a.IsWhitelisted(caller)
}

// BankByBIC returns the address of a registered bank.
func (l *Ledger) BankByBIC(bic string) (domain.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.bankByBIC(bic)
	if err != nil {
		return "", err
	}
	return b.Address, nil
}

// Now samples the injected clock.
func (l *Ledger) Now() time.Time { return l.clock() }
