package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tendant/user-permission/migrations"
)

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// SQLiteStore implements Store using SQLite through modernc.org/sqlite
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at dsn, e.g.
// "file:userperm.db", and applies the schema migrations.
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY between
	// a commit and concurrent lookups.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("SQLite store opened", "dsn", dsn)
	return &SQLiteStore{db: db}, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *SQLiteStore) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSession(s), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUserColumns = `id, name, email, password_hash, created_at`

func (s *SQLiteStore) userByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.loadUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id.String())
}

func (s *SQLiteStore) userByEmail(ctx context.Context, email string) (User, error) {
	return s.loadUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email_key = ?`, foldKey(email))
}

// loadUser reads the user row and its roles inside one transaction so both
// come from the same snapshot.
func (s *SQLiteStore) loadUser(ctx context.Context, query string, arg interface{}) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := scanSQLiteUser(ctx, tx, tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("failed to end read transaction: %w", err)
	}
	return user, nil
}

func scanSQLiteUser(ctx context.Context, tx *sql.Tx, row *sql.Row) (User, error) {
	var user User
	var createdAt sqliteTime
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = createdAt.Time

	rows, err := tx.QueryContext(ctx, `
		SELECT r.id, r.name, r.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY ur.rowid`, user.ID.String())
	if err != nil {
		return User{}, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	user.Roles = []Role{}
	for rows.Next() {
		var role Role
		var roleCreatedAt sqliteTime
		if err := rows.Scan(&role.ID, &role.Name, &roleCreatedAt); err != nil {
			return User{}, fmt.Errorf("failed to scan role: %w", err)
		}
		role.CreatedAt = roleCreatedAt.Time
		user.Roles = append(user.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return User{}, fmt.Errorf("failed to read user roles: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) roleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	var createdAt sqliteTime
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM roles WHERE name_key = ?`, foldKey(name)).
		Scan(&role.ID, &role.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("failed to get role: %w", err)
	}
	role.CreatedAt = createdAt.Time
	return role, nil
}

func (s *SQLiteStore) apply(ctx context.Context, changes changeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, u := range changes.users {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, email, email_key, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID.String(), u.Name, u.Email, foldKey(u.Email), u.PasswordHash, formatSQLiteTime(createdAtOrNow(u.CreatedAt)))
		if err != nil {
			return mapSQLiteError(err)
		}
	}
	for _, r := range changes.roles {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, name, name_key, created_at) VALUES (?, ?, ?, ?)`,
			r.ID.String(), r.Name, foldKey(r.Name), formatSQLiteTime(createdAtOrNow(r.CreatedAt)))
		if err != nil {
			return mapSQLiteError(err)
		}
	}
	for _, ur := range changes.userRoles {
		// The driver reports foreign key failures without naming the
		// constraint, so check references explicitly.
		if err := sqliteExists(ctx, tx, `SELECT 1 FROM users WHERE id = ?`, ur.UserID, ErrUserNotFound); err != nil {
			return err
		}
		if err := sqliteExists(ctx, tx, `SELECT 1 FROM roles WHERE id = ?`, ur.RoleID, ErrRoleNotFound); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)`,
			ur.UserID.String(), ur.RoleID.String())
		if err != nil {
			return mapSQLiteError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func sqliteExists(ctx context.Context, tx *sql.Tx, query string, id uuid.UUID, notFound error) error {
	var one int
	err := tx.QueryRowContext(ctx, query, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check reference %s: %w", id, err)
	}
	return nil
}

// mapSQLiteError translates constraint violations into the store's sentinel
// errors by the index or columns SQLite names in the message.
func mapSQLiteError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "users.email_key"), strings.Contains(msg, "ux_users_email"):
		return fmt.Errorf("%w: %v", ErrDuplicateEmail, err)
	case strings.Contains(msg, "roles.name_key"), strings.Contains(msg, "ux_roles_name"):
		return fmt.Errorf("%w: %v", ErrDuplicateRoleName, err)
	case strings.Contains(msg, "user_roles.user_id"):
		return fmt.Errorf("%w: %v", ErrDuplicateUserRole, err)
	}
	return err
}

const sqliteTimeLayout = "2006-01-02 15:04:05.999999999Z07:00"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// sqliteTime scans timestamps whether the driver hands back time.Time or text.
type sqliteTime struct {
	Time time.Time
}

func (t *sqliteTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *sqliteTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
