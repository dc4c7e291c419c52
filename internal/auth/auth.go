// Package auth issues and verifies account identities. Signup and login are
// also the moment an anonymous session's work is adopted by the account, so
// both run the session migration after the identity check succeeds.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"scrivo/internal/model"
	"scrivo/internal/repository"
	"scrivo/internal/service"
)

const tokenTTL = 30 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrHandleTaken        = repository.ErrHandleTaken
	ErrInvalidToken       = errors.New("invalid token")
)

// AccountStore is the slice of the account repository auth needs.
type AccountStore interface {
	Create(ctx context.Context, handle, passwordHash string) (*model.Account, error)
	GetByHandle(ctx context.Context, handle string) (*model.Account, string, error)
}

type Service struct {
	accounts  AccountStore
	resources service.ResourceService
	secret    []byte
	log       *zap.Logger
}

func NewService(accounts AccountStore, resources service.ResourceService, secret string, log *zap.Logger) *Service {
	return &Service{
		accounts:  accounts,
		resources: resources,
		secret:    []byte(secret),
		log:       log,
	}
}

// Register creates an account and adopts the caller's anonymous session, if
// any. Returns the account and a signed token.
func (s *Service) Register(ctx context.Context, handle, password, sessionID string) (*model.Account, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	acc, err := s.accounts.Create(ctx, handle, string(hash))
	if err != nil {
		return nil, "", err
	}

	s.adoptSession(ctx, sessionID, acc.ID)

	token, err := s.IssueToken(acc.ID)
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

// Login verifies credentials and adopts the caller's anonymous session.
// A missing account and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, handle, password, sessionID string) (*model.Account, string, error) {
	acc, hash, err := s.accounts.GetByHandle(ctx, handle)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	s.adoptSession(ctx, sessionID, acc.ID)

	token, err := s.IssueToken(acc.ID)
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

// adoptSession migrates anonymous resources to the account. Migration
// failure doesn't fail the login: the session's work stays where it is and
// the next login retries.
func (s *Service) adoptSession(ctx context.Context, sessionID string, accountID int64) {
	if sessionID == "" {
		return
	}
	migrated, err := s.resources.MigrateSession(ctx, sessionID, accountID)
	if err != nil {
		s.log.Error("session migration failed",
			zap.String("session_id", sessionID),
			zap.Int64("account_id", accountID),
			zap.Error(err))
		return
	}
	if len(migrated) > 0 {
		s.log.Info("migrated anonymous resources",
			zap.Int("count", len(migrated)),
			zap.Int64("account_id", accountID))
	}
}

func (s *Service) IssueToken(accountID int64) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", accountID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken returns the account id carried by a signed token.
func (s *Service) ParseToken(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	var accountID int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &accountID); err != nil || accountID <= 0 {
		return 0, ErrInvalidToken
	}
	return accountID, nil
}
