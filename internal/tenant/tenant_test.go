package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountOwnerPredicate(t *testing.T) {
	owner := AccountOwner(42)
	require.True(t, owner.Valid())
	require.True(t, owner.IsAccount())

	clause, args, ok := owner.Predicate(3)
	require.True(t, ok)
	require.Equal(t, "account_id = $3", clause)
	require.Equal(t, []any{int64(42)}, args)
}

func TestSessionOwnerPredicate(t *testing.T) {
	owner := SessionOwner("s1")
	require.True(t, owner.Valid())
	require.False(t, owner.IsAccount())

	clause, args, ok := owner.Predicate(1)
	require.True(t, ok)
	require.Equal(t, "account_id IS NULL AND session_id = $1", clause)
	require.Equal(t, []any{"s1"}, args)
}

func TestEmptySessionIsInvalid(t *testing.T) {
	owner := SessionOwner("")
	require.False(t, owner.Valid())

	// the predicate must be unsatisfiable, not absent
	_, _, ok := owner.Predicate(1)
	require.False(t, ok)
}

func TestZeroOwnerIsInvalid(t *testing.T) {
	var owner Owner
	require.False(t, owner.Valid())

	_, _, ok := owner.Predicate(1)
	require.False(t, ok)

	_, isAccount := owner.AccountID()
	require.False(t, isAccount)
	_, isSession := owner.SessionID()
	require.False(t, isSession)
}

func TestOwnerAccessors(t *testing.T) {
	id, ok := AccountOwner(7).AccountID()
	require.True(t, ok)
	require.Equal(t, int64(7), id)

	sid, ok := SessionOwner("abc").SessionID()
	require.True(t, ok)
	require.Equal(t, "abc", sid)

	_, ok = AccountOwner(7).SessionID()
	require.False(t, ok)
}
