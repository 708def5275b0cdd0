/**
 * @description
 * This file defines the `Repository` interface for the settlement archive: the
 * durable record of transfer bookings and emitted events. The in-memory ledger
 * is the source of truth for live balances; the archive exists so historical
 * records survive account and correspondent unregistration and process
 * restarts.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/openclearing/settlement-service/internal/domain"
)

// JournalEntry is one archived event envelope.
type JournalEntry struct {
	ID         int64
	Bank       domain.Address
	Name       string
	Payload    []byte
	RecordedAt time.Time
}

// Repository defines the set of methods for interacting with the archive.
type Repository interface {
	// Transfer archive. ArchiveTransfer upserts by (bank, transfer id) so a
	// pending record can be re-archived after its decision.
	ArchiveTransfer(ctx context.Context, bankBIC string, t *domain.Transfer) error
	FindTransfer(ctx context.Context, bankBIC string, id uint64) (*domain.Transfer, error)
	ListTransfersBySender(ctx context.Context, sender domain.Address, limit int) ([]domain.Transfer, error)

	// Event journal, append-only.
	AppendEvent(ctx context.Context, bank domain.Address, name string, payload []byte) error
	ListEvents(ctx context.Context, bank domain.Address, limit int) ([]JournalEntry, error)
}
