package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scrivo/internal/model"
)

// AccountRepo manages account rows. Balances are read-only here: the only
// write path for accounts.balance is the reconciler transaction in
// PaymentRepo.ReconcileAndCredit.
type AccountRepo struct {
	db *pgxpool.Pool
}

func NewAccountRepo(db *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Create(ctx context.Context, handle, passwordHash string) (*model.Account, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO accounts (handle, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, handle, balance, created_at`,
		handle, passwordHash)

	var acc model.Account
	if err := row.Scan(&acc.ID, &acc.Handle, &acc.Balance, &acc.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &acc, nil
}

func (r *AccountRepo) GetByHandle(ctx context.Context, handle string) (*model.Account, string, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, handle, password_hash, balance, created_at FROM accounts WHERE handle = $1`,
		handle)

	var acc model.Account
	var hash string
	err := row.Scan(&acc.ID, &acc.Handle, &hash, &acc.Balance, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrAccountNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get account: %w", err)
	}
	return &acc, hash, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, handle, balance, created_at FROM accounts WHERE id = $1`,
		id)

	var acc model.Account
	err := row.Scan(&acc.ID, &acc.Handle, &acc.Balance, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

// Balance returns the account's current spendable credits.
func (r *AccountRepo) Balance(ctx context.Context, id int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}
