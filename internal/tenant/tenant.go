// Package tenant models the unit of data isolation: an authenticated
// account or an anonymous browser session. Every storage operation takes an
// Owner and derives its isolation predicate from it in exactly one place,
// so no code path can forget the tenant filter.
package tenant

import "fmt"

type ownerKind int

const (
	ownerInvalid ownerKind = iota
	ownerAccount
	ownerSession
)

// Owner is a tagged variant: Account(id) | Session(id). The zero value is
// invalid and authorizes nothing.
type Owner struct {
	kind      ownerKind
	accountID int64
	sessionID string
}

func AccountOwner(accountID int64) Owner {
	return Owner{kind: ownerAccount, accountID: accountID}
}

// SessionOwner builds an anonymous identity. An empty session id yields an
// invalid Owner: callers get empty results and no-op writes, never an
// unscoped view.
func SessionOwner(sessionID string) Owner {
	if sessionID == "" {
		return Owner{}
	}
	return Owner{kind: ownerSession, sessionID: sessionID}
}

func (o Owner) Valid() bool { return o.kind != ownerInvalid }

func (o Owner) IsAccount() bool { return o.kind == ownerAccount }

// AccountID returns the account id and whether the owner is authenticated.
func (o Owner) AccountID() (int64, bool) {
	return o.accountID, o.kind == ownerAccount
}

// SessionID returns the session id and whether the owner is anonymous.
func (o Owner) SessionID() (string, bool) {
	return o.sessionID, o.kind == ownerSession
}

// Predicate renders the ownership clause for a SQL WHERE conjunction.
// argPos is the 1-based index of the first positional parameter the clause
// may use. ok is false for an invalid owner: the predicate is unsatisfiable
// and the caller must short-circuit without querying the store.
func (o Owner) Predicate(argPos int) (clause string, args []any, ok bool) {
	switch o.kind {
	case ownerAccount:
		return fmt.Sprintf("account_id = $%d", argPos), []any{o.accountID}, true
	case ownerSession:
		return fmt.Sprintf("account_id IS NULL AND session_id = $%d", argPos), []any{o.sessionID}, true
	default:
		return "", nil, false
	}
}

func (o Owner) String() string {
	switch o.kind {
	case ownerAccount:
		return fmt.Sprintf("account:%d", o.accountID)
	case ownerSession:
		return fmt.Sprintf("session:%s", o.sessionID)
	default:
		return "invalid"
	}
}
