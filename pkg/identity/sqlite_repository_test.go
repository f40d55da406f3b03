package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "identity.db")
	store, err := OpenSQLiteStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return newSQLiteStore(t)
	})
}

func TestSQLiteStore_RoundTripsTimestamps(t *testing.T) {
	store := newSQLiteStore(t)
	user := newTestUser("joe", "joe@test.com")
	commitUser(t, store, user)

	got, err := beginSession(t, store).Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, user.CreatedAt.Equal(got.CreatedAt), "want %s got %s", user.CreatedAt, got.CreatedAt)
}

func TestWithPragmas(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"file:a.db", "file:a.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"},
		{"file:a.db?mode=rwc", "file:a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"},
		{"file:a.db?_pragma=foreign_keys(1)", "file:a.db?_pragma=foreign_keys(1)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withPragmas(tt.dsn))
	}
}

func TestMapSQLiteError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"constraint failed: UNIQUE constraint failed: index 'ux_users_email' (2067)", ErrDuplicateEmail},
		{"constraint failed: UNIQUE constraint failed: index 'ux_roles_name' (2067)", ErrDuplicateRoleName},
		{"constraint failed: UNIQUE constraint failed: users.email_key (2067)", ErrDuplicateEmail},
		{"constraint failed: UNIQUE constraint failed: roles.name_key (2067)", ErrDuplicateRoleName},
		{"constraint failed: UNIQUE constraint failed: user_roles.user_id, user_roles.role_id (1555)", ErrDuplicateUserRole},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, mapSQLiteError(errors.New(tt.msg)), tt.want)
	}

	other := errors.New("disk I/O error")
	assert.Equal(t, other, mapSQLiteError(other))
}

func TestSQLiteTime_Scan(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	inputs := []interface{}{
		want,
		formatSQLiteTime(want),
		[]byte(formatSQLiteTime(want)),
		want.Format(time.RFC3339Nano),
	}
	for _, in := range inputs {
		var st sqliteTime
		require.NoError(t, st.Scan(in))
		assert.True(t, want.Equal(st.Time), "input %v", in)
	}

	var st sqliteTime
	assert.Error(t, st.Scan(3.14))
	assert.Error(t, st.Scan("yesterday"))
}
