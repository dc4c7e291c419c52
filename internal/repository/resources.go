package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scrivo/internal/model"
	"scrivo/internal/tenant"
)

// ResourceRepo is the tenant-scoped CRUD engine over the resources table.
// Every query carries the ownership clause produced by tenant.Owner.Predicate;
// an invalid owner short-circuits before the store is touched.
type ResourceRepo struct {
	db *pgxpool.Pool
}

func NewResourceRepo(db *pgxpool.Pool) *ResourceRepo {
	return &ResourceRepo{db: db}
}

const resourceCols = "id, account_id, session_id, kind, title, payload, created_at"

func scanResource(row pgx.Row) (*model.Resource, error) {
	var res model.Resource
	var payload []byte
	err := row.Scan(&res.ID, &res.AccountID, &res.SessionID, &res.Kind, &res.Title, &payload, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	res.Payload = json.RawMessage(payload)
	return &res, nil
}

func (r *ResourceRepo) Create(ctx context.Context, owner tenant.Owner, kind, title string, payload json.RawMessage) (*model.Resource, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	var accountID *int64
	var sessionID *string
	if id, ok := owner.AccountID(); ok {
		accountID = &id
	}
	if sid, ok := owner.SessionID(); ok {
		sessionID = &sid
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO resources (account_id, session_id, kind, title, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+resourceCols,
		accountID, sessionID, kind, title, payload)

	res, err := scanResource(row)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func (r *ResourceRepo) Get(ctx context.Context, id int64, owner tenant.Owner) (*model.Resource, error) {
	clause, args, ok := owner.Predicate(2)
	if !ok {
		return nil, ErrResourceNotFound
	}

	row := r.db.QueryRow(ctx,
		`SELECT `+resourceCols+` FROM resources WHERE id = $1 AND `+clause,
		append([]any{id}, args...)...)

	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return res, nil
}

// List returns the owner's resources ordered by creation time, oldest first.
func (r *ResourceRepo) List(ctx context.Context, owner tenant.Owner) ([]model.Resource, error) {
	clause, args, ok := owner.Predicate(1)
	if !ok {
		return []model.Resource{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+resourceCols+` FROM resources WHERE `+clause+` ORDER BY created_at`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	resources := []model.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("list resources: %w", err)
		}
		resources = append(resources, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

func (r *ResourceRepo) Update(ctx context.Context, id int64, owner tenant.Owner, patch model.ResourcePatch) (*model.Resource, error) {
	clause, args, ok := owner.Predicate(4)
	if !ok {
		return nil, ErrResourceNotFound
	}

	var payload []byte
	if patch.Payload != nil {
		payload = patch.Payload
	}

	row := r.db.QueryRow(ctx,
		`UPDATE resources
		 SET title = COALESCE($2, title), payload = COALESCE($3, payload)
		 WHERE id = $1 AND `+clause+`
		 RETURNING `+resourceCols,
		append([]any{id, patch.Title, payload}, args...)...)

	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update resource: %w", err)
	}
	return res, nil
}

// Delete removes at most one resource. A miss (absent row or foreign tenant)
// is not an error.
func (r *ResourceRepo) Delete(ctx context.Context, id int64, owner tenant.Owner) error {
	clause, args, ok := owner.Predicate(2)
	if !ok {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`DELETE FROM resources WHERE id = $1 AND `+clause,
		append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

func (r *ResourceRepo) DeleteAll(ctx context.Context, owner tenant.Owner) error {
	clause, args, ok := owner.Predicate(1)
	if !ok {
		return nil
	}

	_, err := r.db.Exec(ctx, `DELETE FROM resources WHERE `+clause, args...)
	if err != nil {
		return fmt.Errorf("delete all resources: %w", err)
	}
	return nil
}

// MigrateSession reassigns every resource of an anonymous session to the
// given account in one bulk UPDATE, so anonymous writes racing the migration
// are either fully carried over or untouched, never half-moved. Migrating an
// empty or already-drained session is a no-op.
func (r *ResourceRepo) MigrateSession(ctx context.Context, sessionID string, accountID int64) ([]model.Resource, error) {
	if sessionID == "" {
		return []model.Resource{}, nil
	}

	rows, err := r.db.Query(ctx,
		`UPDATE resources
		 SET account_id = $2, session_id = NULL
		 WHERE session_id = $1 AND account_id IS NULL
		 RETURNING `+resourceCols,
		sessionID, accountID)
	if err != nil {
		return nil, fmt.Errorf("migrate session: %w", err)
	}
	defer rows.Close()

	migrated := []model.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("migrate session: %w", err)
		}
		migrated = append(migrated, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate session: %w", err)
	}
	return migrated, nil
}
