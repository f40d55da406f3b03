// Package identity registers users, authenticates them by email and
// password, assigns named roles and looks users up by id.
//
// # Overview
//
// Service holds the business rules. It talks to persistence only through a
// Store, which hands out one Session per operation. A session stages records
// and makes them visible to lookups only when Commit is called:
//
//	sess, _ := store.Begin(ctx)
//	defer sess.Close()
//	_ = sess.Users().Add(ctx, user)   // not visible yet
//	_ = sess.Users().Commit(ctx)      // now visible
//
// Uniqueness (email, role name, user/role pair) is enforced by the store at
// commit time, which is what arbitrates concurrent registrations and role
// creation.
//
// # Basic Usage
//
//	store, err := identity.NewStore(ctx, "sqlite", identity.StoreConfig{SQLiteDSN: "file:userperm.db"})
//	svc := identity.NewService(store)
//
//	joe, err := svc.Register(ctx, identity.RegisterParams{Name: "Joe", Email: "joe@test.com", Password: "secret1"})
//	view, ok, err := svc.Authenticate(ctx, "joe@test.com", "secret1")
//	err = svc.AssignRole(ctx, joe.ID, "admin")
//	view, ok, err = svc.GetByID(ctx, joe.ID)
//
// # Stores
//
//   - InMemoryStore: maps behind a RWMutex
//   - FileStore: a JSON document rewritten on every commit
//   - SQLiteStore: modernc.org/sqlite
//   - PostgresStore: pgx connection pool
package identity
