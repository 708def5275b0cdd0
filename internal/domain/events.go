/**
 * @description
 * Event payloads published by the ledger. Every mutating operation emits one
 * or more of these on the configured sink (RabbitMQ in production, an
 * in-memory recorder in tests). Field names follow the historical wire
 * format, including the TransfertStateChanged spelling.
 */

package domain

import "time"

// Event is any payload the ledger publishes. Name is used as the routing key
// suffix on the message broker.
type Event interface {
	Name() string
}

// TransferEvent signals a settled balance movement between two accounts.
type TransferEvent struct {
	From  Address `json:"from"`
	To    Address `json:"to"`
	Value int64   `json:"value"`
}

func (TransferEvent) Name() string { return "Transfer" }

// TransferExEvent is the extended movement event carrying the bank-scoped
// transfer id and the free-form details string.
type TransferExEvent struct {
	ID      uint64  `json:"id"`
	From    Address `json:"from"`
	To      Address `json:"to"`
	Value   int64   `json:"value"`
	Details string  `json:"details"`
}

func (TransferExEvent) Name() string { return "TransferEx" }

// TransferStateChangedEvent signals a transfer status transition, including
// the initial Pending parking and the back-office decision.
type TransferStateChangedEvent struct {
	ID     uint64         `json:"id"`
	Status TransferStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

func (TransferStateChangedEvent) Name() string { return "TransfertStateChanged" }

// AccountRegistrationEvent signals an account joining or leaving its bank.
type AccountRegistrationEvent struct {
	Account    Address `json:"account"`
	Registered bool    `json:"registered"`
}

func (AccountRegistrationEvent) Name() string { return "AccountRegistration" }

// BankRegistrationEvent signals a bank joining or leaving the network.
type BankRegistrationEvent struct {
	Bank       Address `json:"bank"`
	Registered bool    `json:"registered"`
}

func (BankRegistrationEvent) Name() string { return "BankRegistration" }

// HTLCPaymentCreatedEvent carries the public hashlock so a counterpart can
// prepare a matching lock on another ledger.
type HTLCPaymentCreatedEvent struct {
	ID           uint64    `json:"id"`
	Account      Address   `json:"account"`
	HashlockPaid string    `json:"hashlockPaid"`
	Amount       int64     `json:"amount"`
	Deadline     time.Time `json:"deadline"`
	Opaque       string    `json:"opaque,omitempty"`
}

func (HTLCPaymentCreatedEvent) Name() string { return "HTLCPaymentCreated" }

// HTLCPaymentRemovedEvent signals the resolution of a hashed-timelock
// payment. Cancelled is true for unlocks, false for settlements; UsingSecret
// is false only for timeout cancellations.
type HTLCPaymentRemovedEvent struct {
	ID          uint64  `json:"id"`
	Account     Address `json:"account"`
	Cancelled   bool    `json:"cancelled"`
	UsingSecret bool    `json:"usingSecret"`
}

func (HTLCPaymentRemovedEvent) Name() string { return "HTLCPaymentRemoved" }

// ApprovalEvent signals a third-party spend authorization change. Value is
// the remaining allowance after the change, not the delta.
type ApprovalEvent struct {
	Owner   Address  `json:"owner"`
	Spender Identity `json:"spender"`
	Value   int64    `json:"value"`
}

func (ApprovalEvent) Name() string { return "Approval" }
