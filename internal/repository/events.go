package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepo is the durable record of provider event ids already handled.
// It backs the outer idempotency guard of the webhook ingress; the
// session-level guard lives in PaymentRepo.ReconcileAndCredit.
type EventRepo struct {
	db *pgxpool.Pool
}

func NewEventRepo(db *pgxpool.Pool) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	return exists, nil
}

// MarkProcessed records an event id. Inserting a duplicate fails with
// ErrEventAlreadyProcessed and has no side effects.
func (r *EventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO processed_events (event_id) VALUES ($1)`, eventID)
	if isUniqueViolation(err) {
		return ErrEventAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("mark event: %w", err)
	}
	return nil
}

// RecordLedgerEntry writes the audit row for one applied credit. Keyed by
// checkout id, so redelivered bus events collapse into a single row.
func (r *EventRepo) RecordLedgerEntry(ctx context.Context, checkoutID string, accountID, credits, newBalance int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ledger_entries (checkout_id, account_id, credits, new_balance)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (checkout_id) DO NOTHING`,
		checkoutID, accountID, credits, newBalance)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// GetLedgerEntry is used by tests and operational tooling.
func (r *EventRepo) GetLedgerEntry(ctx context.Context, checkoutID string) (credits, newBalance int64, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT credits, new_balance FROM ledger_entries WHERE checkout_id = $1`,
		checkoutID).Scan(&credits, &newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrPaymentNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get ledger entry: %w", err)
	}
	return credits, newBalance, nil
}
