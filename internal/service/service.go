package service

import (
	"context"
	"encoding/json"

	"scrivo/internal/model"
	"scrivo/internal/tenant"
)

// Transport layers depend on these interfaces, not on the concrete repos.

// ResourceService is the tenant-scoped CRUD surface plus session migration.
type ResourceService interface {
	Create(ctx context.Context, owner tenant.Owner, kind, title string, payload json.RawMessage) (*model.Resource, error)
	Get(ctx context.Context, id int64, owner tenant.Owner) (*model.Resource, error)
	List(ctx context.Context, owner tenant.Owner) ([]model.Resource, error)
	Update(ctx context.Context, id int64, owner tenant.Owner, patch model.ResourcePatch) (*model.Resource, error)
	Delete(ctx context.Context, id int64, owner tenant.Owner) error
	DeleteAll(ctx context.Context, owner tenant.Owner) error
	MigrateSession(ctx context.Context, sessionID string, accountID int64) ([]model.Resource, error)
}

// PaymentService drives checkouts through the idempotent claim-then-credit
// protocol.
type PaymentService interface {
	CreatePending(ctx context.Context, checkoutID string, accountID, amountCents, credits int64) (*model.Payment, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Payment, error)
	ReconcileAndCredit(ctx context.Context, checkoutID string, accountID, credits int64) (*model.CreditResult, error)
}

type AccountService interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	Balance(ctx context.Context, id int64) (int64, error)
}

// DedupService is the outer idempotency guard for provider event envelopes.
type DedupService interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// AuditService records applied credits; consumed by the bus worker.
type AuditService interface {
	RecordLedgerEntry(ctx context.Context, checkoutID string, accountID, credits, newBalance int64) error
}

type UsageService interface {
	AddDailyUsage(ctx context.Context, sessionID, date string, tokens int64) error
	DailyUsage(ctx context.Context, sessionID, date string) (int64, error)
}
