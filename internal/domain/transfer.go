/**
 * @description
 * Transfer records and the transfer state machine constants. A transfer is
 * the ledger-side record of any funds movement: interbank payments, direct
 * credits and debits entered by a back office, and HTLC settlements all
 * produce one.
 */

package domain

import "time"

// TransferStatus is the lifecycle state of a transfer record.
type TransferStatus int

// Transfer lifecycle. A transfer is created Initiated or Pending; Pending
// transfers are decided by the processing bank's back office into Rejected or
// Completed. Rejected and Completed are terminal.
const (
	StatusInitiated TransferStatus = 1
	StatusPending   TransferStatus = 2
	StatusRejected  TransferStatus = 3
	StatusCompleted TransferStatus = 4
)

// String renders the status the way it appears in event payloads.
func (s TransferStatus) String() string {
	switch s {
	case StatusInitiated:
		return "initiated"
	case StatusPending:
		return "pending"
	case StatusRejected:
		return "rejected"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transition.
func (s TransferStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// TransferType categorises the movement a transfer represents.
type TransferType string

const (
	TransferTypeTransfer TransferType = "transfer"
	TransferTypeCredit   TransferType = "credit"
	TransferTypeDebit    TransferType = "debit"
	TransferTypeHTLC     TransferType = "htlc"
	TransferTypeNetting  TransferType = "netting"
)

// Transfer is the per-bank record of a funds movement. IDs are sequential and
// scoped to the bank that created the record; the same logical interbank
// payment gets one record at each involved bank.
type Transfer struct {
	ID        uint64
	Bank      Address
	Type      TransferType
	Status    TransferStatus
	Sender    Address
	Recipient RecipientRef
	Amount    int64
	Currency  string
	Details   string
	Reason    string
	CreatedAt time.Time
	DecidedAt time.Time

	// Spender is set on allowance spends. A rejected pending spend restores
	// the consumed allowance to this identity.
	Spender Identity

	// Deferred movement for pending transfers: the accounts to debit and
	// credit once the back office accepts. Either side may be unset when the
	// movement leg happens at another bank.
	DebitAccount  Address
	CreditAccount Address

	// Interbank continuation: the leg to book on the counterpart ledger once
	// this record settles. ForwardDebit is the nostro account consumed on the
	// nostro path, zero on the loro path.
	ForwardBank   Address
	ForwardDebit  Address
	ForwardCredit Address
}

// HTLCPayment is a hashed-timelock reservation on a sender account. The
// locked funds move to the recipient when the payment secret is presented, or
// return to the sender on cancellation.
type HTLCPayment struct {
	ID        uint64
	Account   Address
	Recipient RecipientRef
	Amount    int64

	// Hex-encoded sha256 digests of the two secrets.
	HashlockPaid   string
	HashlockCancel string

	// Absolute expiry. At or after the deadline any secret cancels.
	Deadline time.Time

	Opaque string
}
