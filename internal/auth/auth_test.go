package auth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"scrivo/internal/model"
	"scrivo/internal/repository"
	"scrivo/internal/tenant"
)

type mockAccounts struct {
	created  *model.Account
	existing *model.Account
	hash     string
}

func (m *mockAccounts) Create(ctx context.Context, handle, passwordHash string) (*model.Account, error) {
	if m.existing != nil && m.existing.Handle == handle {
		return nil, repository.ErrHandleTaken
	}
	m.created = &model.Account{ID: 42, Handle: handle}
	m.hash = passwordHash
	return m.created, nil
}

func (m *mockAccounts) GetByHandle(ctx context.Context, handle string) (*model.Account, string, error) {
	if m.existing == nil || m.existing.Handle != handle {
		return nil, "", repository.ErrAccountNotFound
	}
	return m.existing, m.hash, nil
}

type mockResources struct {
	migratedSession string
	migratedAccount int64
}

func (m *mockResources) Create(ctx context.Context, owner tenant.Owner, kind, title string, payload json.RawMessage) (*model.Resource, error) {
	return nil, nil
}
func (m *mockResources) Get(ctx context.Context, id int64, owner tenant.Owner) (*model.Resource, error) {
	return nil, repository.ErrResourceNotFound
}
func (m *mockResources) List(ctx context.Context, owner tenant.Owner) ([]model.Resource, error) {
	return nil, nil
}
func (m *mockResources) Update(ctx context.Context, id int64, owner tenant.Owner, patch model.ResourcePatch) (*model.Resource, error) {
	return nil, repository.ErrResourceNotFound
}
func (m *mockResources) Delete(ctx context.Context, id int64, owner tenant.Owner) error    { return nil }
func (m *mockResources) DeleteAll(ctx context.Context, owner tenant.Owner) error           { return nil }
func (m *mockResources) MigrateSession(ctx context.Context, sessionID string, accountID int64) ([]model.Resource, error) {
	m.migratedSession = sessionID
	m.migratedAccount = accountID
	return []model.Resource{{ID: 1}}, nil
}

func newTestService(accounts *mockAccounts, resources *mockResources) *Service {
	return NewService(accounts, resources, "test-secret", zap.NewNop())
}

func TestRegisterIssuesTokenAndAdoptsSession(t *testing.T) {
	accounts := &mockAccounts{}
	resources := &mockResources{}
	svc := newTestService(accounts, resources)

	acc, token, err := svc.Register(context.Background(), "alice", "hunter22", "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, int64(42), acc.ID)

	// the password never reaches the store in the clear
	require.NotEqual(t, "hunter22", accounts.hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(accounts.hash), []byte("hunter22")))

	require.Equal(t, "sess-1", resources.migratedSession)
	require.Equal(t, int64(42), resources.migratedAccount)

	accountID, err := svc.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), accountID)
}

func TestRegisterHandleTaken(t *testing.T) {
	accounts := &mockAccounts{existing: &model.Account{ID: 1, Handle: "alice"}}
	svc := newTestService(accounts, &mockResources{})

	_, _, err := svc.Register(context.Background(), "alice", "pw", "")
	require.ErrorIs(t, err, repository.ErrHandleTaken)
}

func TestRegisterWithoutSessionSkipsMigration(t *testing.T) {
	accounts := &mockAccounts{}
	resources := &mockResources{}
	svc := newTestService(accounts, resources)

	_, _, err := svc.Register(context.Background(), "bob", "pw", "")
	require.NoError(t, err)
	require.Empty(t, resources.migratedSession)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts := &mockAccounts{
		existing: &model.Account{ID: 7, Handle: "carol"},
		hash:     string(hash),
	}
	resources := &mockResources{}
	svc := newTestService(accounts, resources)

	acc, token, err := svc.Login(context.Background(), "carol", "secret", "sess-9")
	require.NoError(t, err)
	require.Equal(t, int64(7), acc.ID)
	require.NotEmpty(t, token)
	require.Equal(t, "sess-9", resources.migratedSession)
	require.Equal(t, int64(7), resources.migratedAccount)
}

func TestLoginWrongPasswordAndUnknownHandleLookAlike(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts := &mockAccounts{
		existing: &model.Account{ID: 7, Handle: "carol"},
		hash:     string(hash),
	}
	svc := newTestService(accounts, &mockResources{})

	_, _, errWrongPw := svc.Login(context.Background(), "carol", "nope", "")
	_, _, errUnknown := svc.Login(context.Background(), "mallory", "nope", "")
	require.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(&mockAccounts{}, &mockResources{})

	_, err := svc.ParseToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	svc := newTestService(&mockAccounts{}, &mockResources{})
	other := NewService(&mockAccounts{}, &mockResources{}, "other-secret", zap.NewNop())

	token, err := other.IssueToken(42)
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
