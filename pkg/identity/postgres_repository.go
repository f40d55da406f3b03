package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tendant/user-permission/migrations"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is the subset of pgx shared by pools, connections and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(db *pgxpool.Pool) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresStore{db: db}, nil
}

// OpenPostgresStore connects to connString and, when migrate is set, brings
// the schema up to date before returning.
func OpenPostgresStore(ctx context.Context, connString string, migrate bool) (*PostgresStore, error) {
	if migrate {
		if err := migratePostgres(ctx, connString); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	slog.Info("Postgres store opened", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return &PostgresStore{db: pool}, nil
}

func migratePostgres(ctx context.Context, connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open postgres for migrations: %w", err)
	}
	defer db.Close()

	return migrations.Up(ctx, db, migrations.DialectPostgres)
}

func (s *PostgresStore) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSession(s), nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

const pgUserColumns = `id, name, email, password_hash, created_at`

func (s *PostgresStore) userByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.loadUser(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) userByEmail(ctx context.Context, email string) (User, error) {
	return s.loadUser(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email_key = $1`, foldKey(email))
}

// loadUser reads the user row and its roles in one read-only repeatable read
// transaction so both come from the same snapshot.
func (s *PostgresStore) loadUser(ctx context.Context, query string, arg interface{}) (User, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return User{}, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := scanPgUser(ctx, tx, tx.QueryRow(ctx, query, arg))
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("failed to end read transaction: %w", err)
	}
	return user, nil
}

func scanPgUser(ctx context.Context, db DBTX, row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := pgUserRoles(ctx, db, user.ID)
	if err != nil {
		return User{}, err
	}
	user.Roles = roles
	return user, nil
}

func pgUserRoles(ctx context.Context, db DBTX, userID uuid.UUID) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.assigned_at, r.name
	`
	rows, err := db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user roles: %w", err)
	}
	return roles, nil
}

func (s *PostgresStore) roleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := s.db.QueryRow(ctx, `SELECT id, name, created_at FROM roles WHERE name_key = $1`, foldKey(name)).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) apply(ctx context.Context, changes changeSet) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range changes.users {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, name, email, email_key, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, u.Name, u.Email, foldKey(u.Email), u.PasswordHash, createdAtOrNow(u.CreatedAt))
		if err != nil {
			return mapPgError(err)
		}
	}
	for _, r := range changes.roles {
		_, err := tx.Exec(ctx,
			`INSERT INTO roles (id, name, name_key, created_at) VALUES ($1, $2, $3, $4)`,
			r.ID, r.Name, foldKey(r.Name), createdAtOrNow(r.CreatedAt))
		if err != nil {
			return mapPgError(err)
		}
	}
	for _, ur := range changes.userRoles {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
			ur.UserID, ur.RoleID)
		if err != nil {
			return mapPgError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPgError(err))
	}
	return nil
}

// mapPgError translates constraint violations into the store's sentinel errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "ux_users_email":
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, pgErr.Detail)
		case "ux_roles_name":
			return fmt.Errorf("%w: %s", ErrDuplicateRoleName, pgErr.Detail)
		case "user_roles_pkey":
			return fmt.Errorf("%w: %s", ErrDuplicateUserRole, pgErr.Detail)
		}
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case "user_roles_user_id_fkey":
			return fmt.Errorf("%w: %s", ErrUserNotFound, pgErr.Detail)
		case "user_roles_role_id_fkey":
			return fmt.Errorf("%w: %s", ErrRoleNotFound, pgErr.Detail)
		}
	}
	return err
}

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
