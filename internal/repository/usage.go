package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepo tracks per-session daily token consumption for free-tier
// limiting. It never touches accounts.balance.
type UsageRepo struct {
	db *pgxpool.Pool
}

func NewUsageRepo(db *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{db: db}
}

// AddDailyUsage accumulates tokens for (session, date) in a single upsert.
func (r *UsageRepo) AddDailyUsage(ctx context.Context, sessionID, date string, tokens int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO daily_usage (session_id, date, total_tokens)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, date)
		 DO UPDATE SET total_tokens = daily_usage.total_tokens + EXCLUDED.total_tokens`,
		sessionID, date, tokens)
	if err != nil {
		return fmt.Errorf("add daily usage: %w", err)
	}
	return nil
}

// DailyUsage returns the tokens consumed by a session on a date, zero when
// nothing was recorded.
func (r *UsageRepo) DailyUsage(ctx context.Context, sessionID, date string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT total_tokens FROM daily_usage WHERE session_id = $1 AND date = $2`,
		sessionID, date).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily usage: %w", err)
	}
	return total, nil
}
