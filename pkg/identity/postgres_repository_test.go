package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("userperm_db"),
		postgres.WithUsername("userperm"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			slog.Error("Failed to terminate container", "err", err)
		}
	}
	return connString, cleanup
}

func TestPostgresStore(t *testing.T) {
	connString, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	store, err := OpenPostgresStore(ctx, connString, true)
	require.NoError(t, err)
	defer store.Close()

	runStoreContract(t, func(t *testing.T) Store {
		_, err := store.db.Exec(ctx, `TRUNCATE user_roles, roles, users`)
		require.NoError(t, err)
		return store
	})
}

func TestPostgresStore_MigrationsAreIdempotent(t *testing.T) {
	connString, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	first, err := OpenPostgresStore(ctx, connString, true)
	require.NoError(t, err)
	first.Close()

	second, err := OpenPostgresStore(ctx, connString, true)
	require.NoError(t, err)
	defer second.Close()

	user := newTestUser("joe", "joe@test.com")
	commitUser(t, second, user)

	got, err := beginSession(t, second).Users().GetByEmail(ctx, "JOE@TEST.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestPostgresStore_UserAndRolesShareSnapshot(t *testing.T) {
	connString, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	store, err := OpenPostgresStore(ctx, connString, true)
	require.NoError(t, err)
	defer store.Close()

	// The user row is read inside a read-only transaction.
	_, err = store.loadUser(ctx,
		`INSERT INTO roles (id, name, name_key) VALUES ($1, 'x', 'x') RETURNING id, name, name, name, created_at`, uuid.New())
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "25006", pgErr.Code)

	user := newTestUser("joe", "joe@test.com")
	commitUser(t, store, user)

	const roleCount = 20
	roles := make([]Role, roleCount)
	for i := range roles {
		roles[i] = newTestRole(fmt.Sprintf("role-%02d", i))
		commitRole(t, store, roles[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, role := range roles {
			sess, err := store.Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, sess.Users().AddRole(ctx, user.ID, role))
			assert.NoError(t, sess.Users().Commit(ctx))
			sess.Close()
		}
	}()

	seen := 0
	for {
		finished := false
		select {
		case <-done:
			finished = true
		default:
		}

		got, err := beginSession(t, store).Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(got.Roles), seen, "role list never shrinks")
		for i, role := range got.Roles {
			require.Equal(t, roles[i].Name, role.Name, "roles come back in assignment order")
		}
		seen = len(got.Roles)

		if finished {
			assert.Equal(t, roleCount, seen)
			return
		}
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestMapPgError(t *testing.T) {
	tests := []struct {
		code       string
		constraint string
		want       error
	}{
		{pgUniqueViolation, "ux_users_email", ErrDuplicateEmail},
		{pgUniqueViolation, "ux_roles_name", ErrDuplicateRoleName},
		{pgUniqueViolation, "user_roles_pkey", ErrDuplicateUserRole},
		{pgForeignKeyViolation, "user_roles_user_id_fkey", ErrUserNotFound},
		{pgForeignKeyViolation, "user_roles_role_id_fkey", ErrRoleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code, ConstraintName: tt.constraint})
			assert.ErrorIs(t, mapPgError(err), tt.want)
		})
	}

	other := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_pkey"}
	assert.Equal(t, error(other), mapPgError(other))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapPgError(plain))
}
