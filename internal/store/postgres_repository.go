/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface: the transfer archive and the append-only event journal.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclearing/settlement-service/internal/domain"
)

var ErrTransferNotArchived = errors.New("transfer not archived")

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ArchiveTransfer upserts a transfer record keyed by bank and bank-scoped id.
func (r *PostgresRepository) ArchiveTransfer(ctx context.Context, bankBIC string, t *domain.Transfer) error {
	query := `
		INSERT INTO transfers (
			bank_bic, transfer_id, type, status, sender,
			recipient_account, recipient_bic, recipient_iban,
			amount, currency, details, reason, created_at, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bank_bic, transfer_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			decided_at = EXCLUDED.decided_at`
	_, err := r.db.Exec(ctx, query,
		bankBIC, t.ID, string(t.Type), int(t.Status), string(t.Sender),
		string(t.Recipient.Account), t.Recipient.BIC, t.Recipient.IBAN,
		t.Amount, t.Currency, t.Details, t.Reason, t.CreatedAt, nullableTime(t.DecidedAt))
	return err
}

// FindTransfer retrieves an archived transfer record.
func (r *PostgresRepository) FindTransfer(ctx context.Context, bankBIC string, id uint64) (*domain.Transfer, error) {
	query := `
		SELECT transfer_id, type, status, sender,
		       recipient_account, recipient_bic, recipient_iban,
		       amount, currency, details, reason, created_at, COALESCE(decided_at, 'epoch'::timestamptz)
		FROM transfers WHERE bank_bic = $1 AND transfer_id = $2`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, bankBIC, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotArchived
		}
		return nil, err
	}
	return t, nil
}

// ListTransfersBySender lists archived transfers debited from an account,
// newest first.
func (r *PostgresRepository) ListTransfersBySender(ctx context.Context, sender domain.Address, limit int) ([]domain.Transfer, error) {
	query := `
		SELECT transfer_id, type, status, sender,
		       recipient_account, recipient_bic, recipient_iban,
		       amount, currency, details, reason, created_at, COALESCE(decided_at, 'epoch'::timestamptz)
		FROM transfers WHERE sender = $1
		ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, string(sender), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// AppendEvent records an emitted event in the journal.
func (r *PostgresRepository) AppendEvent(ctx context.Context, bank domain.Address, name string, payload []byte) error {
	query := `INSERT INTO event_journal (bank, name, payload, recorded_at) VALUES ($1, $2, $3, now())`
	_, err := r.db.Exec(ctx, query, string(bank), name, payload)
	return err
}

// ListEvents returns the most recent journal entries for a bank.
func (r *PostgresRepository) ListEvents(ctx context.Context, bank domain.Address, limit int) ([]JournalEntry, error) {
	query := `
		SELECT id, bank, name, payload, recorded_at
		FROM event_journal WHERE bank = $1
		ORDER BY id DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, string(bank), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var bank string
		if err := rows.Scan(&e.ID, &bank, &e.Name, &e.Payload, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Bank = domain.Address(bank)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var (
		t           domain.Transfer
		typ, sender string
		status      int
		rcptAcct    string
	)
	err := row.Scan(&t.ID, &typ, &status, &sender,
		&rcptAcct, &t.Recipient.BIC, &t.Recipient.IBAN,
		&t.Amount, &t.Currency, &t.Details, &t.Reason, &t.CreatedAt, &t.DecidedAt)
	if err != nil {
		return nil, err
	}
	t.Type = domain.TransferType(typ)
	t.Status = domain.TransferStatus(status)
	t.Sender = domain.Address(sender)
	t.Recipient.Account = domain.Address(rcptAcct)
	return &t, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
