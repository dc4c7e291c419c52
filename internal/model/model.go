package model

import (
	"encoding/json"
	"time"
)

// Account is a durable identity with a spendable credit balance.
// The balance is mutated only by the payment reconciler transaction.
type Account struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// Resource kinds. Assignments and reference documents share one table and
// one isolation rule.
const (
	ResourceKindAssignment = "assignment"
	ResourceKindReference  = "reference_document"
)

// Resource is a tenant-scoped row. Exactly one of AccountID / SessionID is
// set at all times.
type Resource struct {
	ID        int64           `json:"id"`
	AccountID *int64          `json:"account_id,omitempty"`
	SessionID *string         `json:"session_id,omitempty"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResourcePatch carries the mutable fields of an update. Nil fields are
// left untouched.
type ResourcePatch struct {
	Title   *string         `json:"title,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payment statuses. The only legal transition is pending -> completed;
// completed is terminal.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment represents one checkout attempt at the provider.
// CompletedAt is non-nil iff Status == completed.
type Payment struct {
	ID          int64           `json:"id"`
	CheckoutID  string          `json:"checkout_id"`
	AccountID   int64           `json:"account_id"`
	AmountCents int64           `json:"amount_cents"`
	Credits     int64           `json:"credits"`
	Status      string          `json:"status"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CreditResult is the outcome of one reconciliation attempt.
// AlreadyCompleted is the normal idempotent outcome, not an error.
type CreditResult struct {
	AlreadyCompleted bool  `json:"already_completed"`
	NewBalance       int64 `json:"new_balance,omitempty"`
}

// WebhookEvent is what the payment provider delivers, over the redirect
// confirmation path or the server-side webhook, at least once each.
type WebhookEvent struct {
	EventID    string `json:"event_id"`
	CheckoutID string `json:"checkout_id"`
	AccountID  int64  `json:"account_id"`
	Credits    int64  `json:"credits"`
}

// CreditAppliedEvent is published on the bus after a successful credit and
// consumed by the audit worker.
type CreditAppliedEvent struct {
	CheckoutID string    `json:"checkout_id"`
	AccountID  int64     `json:"account_id"`
	Credits    int64     `json:"credits"`
	NewBalance int64     `json:"new_balance"`
	CreatedAt  time.Time `json:"created_at"`
}
