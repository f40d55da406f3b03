package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(name, email string) User {
	return User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: "digest-" + name,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func newTestRole(name string) Role {
	return Role{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func beginSession(t *testing.T, store Store) Session {
	t.Helper()
	sess, err := store.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func commitUser(t *testing.T, store Store, user User) {
	t.Helper()
	ctx := context.Background()
	sess := beginSession(t, store)
	require.NoError(t, sess.Users().Add(ctx, user))
	require.NoError(t, sess.Users().Commit(ctx))
}

func commitRole(t *testing.T, store Store, role Role) {
	t.Helper()
	ctx := context.Background()
	sess := beginSession(t, store)
	require.NoError(t, sess.Roles().Add(ctx, role))
	require.NoError(t, sess.Roles().Commit(ctx))
}

func roleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

// runStoreContract exercises the behaviour every Store implementation must
// share. newStore returns an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("staged user is invisible until commit", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("joe", "joe@test.com")

		sess := beginSession(t, store)
		require.NoError(t, sess.Users().Add(ctx, user))

		_, err := sess.Users().GetByID(ctx, user.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = sess.Users().GetByEmail(ctx, user.Email)
		assert.ErrorIs(t, err, ErrUserNotFound)

		other := beginSession(t, store)
		_, err = other.Users().GetByID(ctx, user.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)

		require.NoError(t, sess.Users().Commit(ctx))

		got, err := sess.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
		assert.Equal(t, user.PasswordHash, got.PasswordHash)
		assert.Empty(t, got.Roles)

		got, err = other.Users().GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("staged role is invisible until commit", func(t *testing.T) {
		store := newStore(t)
		role := newTestRole("admin")

		sess := beginSession(t, store)
		require.NoError(t, sess.Roles().Add(ctx, role))

		_, err := sess.Roles().GetByName(ctx, "admin")
		assert.ErrorIs(t, err, ErrRoleNotFound)

		require.NoError(t, sess.Roles().Commit(ctx))

		got, err := sess.Roles().GetByName(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, role.ID, got.ID)
	})

	t.Run("close discards staged changes", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("joe", "joe@test.com")

		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Users().Add(ctx, user))
		require.NoError(t, sess.Close())

		assert.ErrorIs(t, sess.Users().Commit(ctx), ErrSessionClosed)

		_, err = beginSession(t, store).Users().GetByID(ctx, user.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("lookups ignore case", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("joe", "Joe@Test.com")
		commitUser(t, store, user)
		commitRole(t, store, newTestRole("Admin"))

		sess := beginSession(t, store)
		got, err := sess.Users().GetByEmail(ctx, "JOE@test.COM")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "Joe@Test.com", got.Email)

		role, err := sess.Roles().GetByName(ctx, "ADMIN")
		require.NoError(t, err)
		assert.Equal(t, "Admin", role.Name)
	})

	t.Run("non-ASCII letters fold like ASCII", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("émile", "ÉMILE@test.com")
		commitUser(t, store, user)
		commitRole(t, store, newTestRole("ÉDITEUR"))

		sess := beginSession(t, store)
		got, err := sess.Users().GetByEmail(ctx, "émile@test.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "ÉMILE@test.com", got.Email)

		role, err := sess.Roles().GetByName(ctx, "éditeur")
		require.NoError(t, err)
		assert.Equal(t, "ÉDITEUR", role.Name)

		dup := beginSession(t, store)
		require.NoError(t, dup.Users().Add(ctx, newTestUser("emile2", "émile@test.com")))
		assert.ErrorIs(t, dup.Users().Commit(ctx), ErrDuplicateEmail)

		dup = beginSession(t, store)
		require.NoError(t, dup.Roles().Add(ctx, newTestRole("Éditeur")))
		assert.ErrorIs(t, dup.Roles().Commit(ctx), ErrDuplicateRoleName)

		// Unaccented spellings are different keys.
		commitUser(t, store, newTestUser("emile", "emile@test.com"))
	})

	t.Run("duplicate email is rejected at commit", func(t *testing.T) {
		store := newStore(t)
		commitUser(t, store, newTestUser("joe", "joe@test.com"))

		sess := beginSession(t, store)
		require.NoError(t, sess.Users().Add(ctx, newTestUser("joe2", "JOE@test.com")))
		assert.ErrorIs(t, sess.Users().Commit(ctx), ErrDuplicateEmail)
	})

	t.Run("duplicate role name is rejected at commit", func(t *testing.T) {
		store := newStore(t)
		commitRole(t, store, newTestRole("admin"))

		sess := beginSession(t, store)
		require.NoError(t, sess.Roles().Add(ctx, newTestRole("Admin")))
		assert.ErrorIs(t, sess.Roles().Commit(ctx), ErrDuplicateRoleName)
	})

	t.Run("assigned roles are loaded with the user", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("joe", "joe@test.com")
		admin := newTestRole("admin")
		editor := newTestRole("editor")
		commitUser(t, store, user)
		commitRole(t, store, admin)
		commitRole(t, store, editor)

		sess := beginSession(t, store)
		require.NoError(t, sess.Users().AddRole(ctx, user.ID, admin))
		require.NoError(t, sess.Users().AddRole(ctx, user.ID, editor))

		got, err := sess.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Roles, "associations are staged until commit")

		require.NoError(t, sess.Users().Commit(ctx))

		got, err = sess.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"admin", "editor"}, roleNames(got.Roles))

		got, err = sess.Users().GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"admin", "editor"}, roleNames(got.Roles))
	})

	t.Run("duplicate association is rejected at commit", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("joe", "joe@test.com")
		admin := newTestRole("admin")
		commitUser(t, store, user)
		commitRole(t, store, admin)

		sess := beginSession(t, store)
		require.NoError(t, sess.Users().AddRole(ctx, user.ID, admin))
		require.NoError(t, sess.Users().Commit(ctx))

		require.NoError(t, sess.Users().AddRole(ctx, user.ID, admin))
		assert.ErrorIs(t, sess.Users().Commit(ctx), ErrDuplicateUserRole)

		got, err := sess.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, roleNames(got.Roles))
	})

	t.Run("association to unknown user is rejected", func(t *testing.T) {
		store := newStore(t)
		admin := newTestRole("admin")
		commitRole(t, store, admin)

		sess := beginSession(t, store)
		require.NoError(t, sess.Users().AddRole(ctx, uuid.New(), admin))
		assert.ErrorIs(t, sess.Users().Commit(ctx), ErrUserNotFound)
	})

	t.Run("one change set spans both repositories", func(t *testing.T) {
		store := newStore(t)
		user := newTestUser("joe", "joe@test.com")
		admin := newTestRole("admin")

		sess := beginSession(t, store)
		require.NoError(t, sess.Users().Add(ctx, user))
		require.NoError(t, sess.Roles().Add(ctx, admin))
		require.NoError(t, sess.Users().AddRole(ctx, user.ID, admin))
		require.NoError(t, sess.Roles().Commit(ctx))

		got, err := sess.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, roleNames(got.Roles))
	})

	t.Run("failed commit applies nothing", func(t *testing.T) {
		store := newStore(t)
		commitUser(t, store, newTestUser("joe", "joe@test.com"))

		fresh := newTestUser("ann", "ann@test.com")
		sess := beginSession(t, store)
		require.NoError(t, sess.Users().Add(ctx, fresh))
		require.NoError(t, sess.Users().Add(ctx, newTestUser("joe2", "joe@test.com")))
		assert.ErrorIs(t, sess.Users().Commit(ctx), ErrDuplicateEmail)

		_, err := sess.Users().GetByID(ctx, fresh.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)

		// The failed change set is not retried by a later commit
		assert.NoError(t, sess.Users().Commit(ctx))
		_, err = sess.Users().GetByID(ctx, fresh.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := newStore(t)
		sess := beginSession(t, store)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := sess.Users().GetByEmail(cctx, "joe@test.com")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, sess.Users().Add(cctx, newTestUser("joe", "joe@test.com")), context.Canceled)

		_, err = store.Begin(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
