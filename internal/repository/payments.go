package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"scrivo/internal/model"
)

// PaymentRepo owns the payments table and the claim-then-credit protocol.
// The conditional status update (or conflict-guarded insert) is the single
// license to touch accounts.balance: at most one of N concurrent attempts
// for the same checkout wins the claim, every loser observes
// AlreadyCompleted.
type PaymentRepo struct {
	db                 *pgxpool.Pool
	bus                MessageBus
	log                *zap.Logger
	defaultChargeCents int64
}

func NewPaymentRepo(db *pgxpool.Pool, bus MessageBus, log *zap.Logger, defaultChargeCents int64) *PaymentRepo {
	return &PaymentRepo{
		db:                 db,
		bus:                bus,
		log:                log,
		defaultChargeCents: defaultChargeCents,
	}
}

const paymentCols = "id, checkout_id, account_id, amount_cents, credits, status, metadata, created_at, completed_at"

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var metadata []byte
	err := row.Scan(&p.ID, &p.CheckoutID, &p.AccountID, &p.AmountCents, &p.Credits,
		&p.Status, &metadata, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	p.Metadata = json.RawMessage(metadata)
	return &p, nil
}

// CreatePending registers a checkout attempt before the provider confirms it.
func (r *PaymentRepo) CreatePending(ctx context.Context, checkoutID string, accountID, amountCents, credits int64) (*model.Payment, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO payments (checkout_id, account_id, amount_cents, credits, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+paymentCols,
		checkoutID, accountID, amountCents, credits, model.PaymentStatusPending)

	p, err := scanPayment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCheckout
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Payment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE checkout_id = $1`, checkoutID)

	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ReconcileAndCredit finalizes one checkout and credits the account exactly
// once, no matter how many times or how concurrently it is invoked for the
// same checkout id. The whole sequence runs in one transaction:
//
//  1. read the payment's status
//  2. already completed -> AlreadyCompleted, no writes
//  3. found pending -> conditional UPDATE keyed on the status just read;
//     zero rows affected means a concurrent attempt won the claim
//  4. not found -> INSERT directly as completed; a unique violation on
//     checkout_id means a concurrent attempt inserted first
//  5. only a successful claim credits the balance, in the same transaction
//
// Losing the race is mapped to AlreadyCompleted, never surfaced as failure.
// A missing account rolls the claim back with ErrAccountNotFound.
func (r *PaymentRepo) ReconcileAndCredit(ctx context.Context, checkoutID string, accountID, credits int64) (*model.CreditResult, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM payments WHERE checkout_id = $1`, checkoutID).Scan(&status)

	switch {
	case err == nil:
		if status == model.PaymentStatusCompleted {
			return &model.CreditResult{AlreadyCompleted: true}, nil
		}
		// Claim via compare-and-swap on the status column. Under read
		// committed a concurrent claimant's committed UPDATE makes the
		// WHERE re-evaluate to zero rows here.
		tag, err := tx.Exec(ctx,
			`UPDATE payments
			 SET status = $3, completed_at = now(), updated_at = now()
			 WHERE checkout_id = $1 AND status = $2`,
			checkoutID, status, model.PaymentStatusCompleted)
		if err != nil {
			return nil, fmt.Errorf("reconcile: claim update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &model.CreditResult{AlreadyCompleted: true}, nil
		}

	case errors.Is(err, pgx.ErrNoRows):
		// Webhook-first delivery: no checkout row yet. Insert directly as
		// completed; the unique constraint on checkout_id arbitrates
		// concurrent inserts. Credits come from the event payload, only
		// the charge amount falls back to the configured default.
		_, err := tx.Exec(ctx,
			`INSERT INTO payments (checkout_id, account_id, amount_cents, credits, status, metadata, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())`,
			checkoutID, accountID, r.defaultChargeCents, credits,
			model.PaymentStatusCompleted, []byte(`{"webhook_created":true}`))
		if isUniqueViolation(err) {
			return &model.CreditResult{AlreadyCompleted: true}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reconcile: claim insert: %w", err)
		}

	default:
		return nil, fmt.Errorf("reconcile: lookup: %w", err)
	}

	// The claim succeeded; this attempt is the one that credits.
	var newBalance int64
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2 WHERE id = $1 RETURNING balance`,
		accountID, credits).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile: credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("reconcile: commit: %w", err)
	}

	r.publishCreditApplied(checkoutID, accountID, credits, newBalance)

	return &model.CreditResult{AlreadyCompleted: false, NewBalance: newBalance}, nil
}

// publishCreditApplied emits the audit event after commit. Best effort: the
// credit is already durable, a publish failure only delays the audit row.
func (r *PaymentRepo) publishCreditApplied(checkoutID string, accountID, credits, newBalance int64) {
	if r.bus == nil {
		return
	}
	event := model.CreditAppliedEvent{
		CheckoutID: checkoutID,
		AccountID:  accountID,
		Credits:    credits,
		NewBalance: newBalance,
		CreatedAt:  time.Now().UTC(),
	}
	data, _ := json.Marshal(event)
	if err := r.bus.Publish(TopicCreditsApplied, data); err != nil {
		r.log.Warn("failed to publish credit event",
			zap.String("checkout_id", checkoutID), zap.Error(err))
	}
}
