package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrResourceNotFound covers both a missing row and a row owned by a
	// different tenant. Callers cannot tell the two apart.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrInvalidOwner means the caller's identity carries no authority
	// (anonymous with an empty session id). Reads return it as not-found,
	// writes refuse with it.
	ErrInvalidOwner = errors.New("invalid owner identity")

	ErrAccountNotFound       = errors.New("account not found")
	ErrHandleTaken           = errors.New("handle already taken")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrDuplicateCheckout     = errors.New("checkout already registered")
	ErrEventAlreadyProcessed = errors.New("event already processed")
	ErrInvalidAmount         = errors.New("credit amount must be positive")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
