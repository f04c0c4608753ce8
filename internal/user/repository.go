package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for user and permission persistence.
type Repository interface {
	// GetByID retrieves a user by ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByCardUID retrieves the user a card is enrolled to.
	// Returns ErrUserNotFound if no user holds the card.
	GetByCardUID(ctx context.Context, uid string) (*User, error)

	// List retrieves all users ordered by name.
	List(ctx context.Context) ([]User, error)

	// Create inserts a new user, generating an ID if empty.
	// Returns ErrUIDConflict if the card UID is already enrolled.
	Create(ctx context.Context, user *User) error

	// Update modifies an existing user.
	// Returns ErrUserNotFound if the user does not exist and
	// ErrUIDConflict if the card UID belongs to someone else.
	Update(ctx context.Context, user *User) error

	// Delete removes a user and their permissions.
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, id string) error

	// SetPermission creates or updates a per-device access class override.
	SetPermission(ctx context.Context, perm *Permission) error

	// DeletePermission removes an override.
	// Returns ErrPermissionNotFound if no row exists.
	DeletePermission(ctx context.Context, userID, hostname string) error

	// ListPermissions retrieves all overrides for a user.
	ListPermissions(ctx context.Context, userID string) ([]Permission, error)

	// ListPermissionsByDevice retrieves all overrides targeting a device.
	ListPermissionsByDevice(ctx context.Context, hostname string) ([]Permission, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const userColumns = `id, name, card_uid, access_class, valid_since, valid_until, created_at, updated_at`

// GetByID retrieves a user by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return u, nil
}

// GetByCardUID retrieves the user a card is enrolled to.
func (r *SQLiteRepository) GetByCardUID(ctx context.Context, uid string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE card_uid = ?`

	row := r.db.QueryRowContext(ctx, query, uid)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by card uid: %w", err)
	}
	return u, nil
}

// List retrieves all users ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}

// Create inserts a new user.
func (r *SQLiteRepository) Create(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, name, card_uid, access_class, valid_since, valid_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		nullableString(user.CardUID),
		int(user.AccessClass),
		nullableTime(user.ValidSince),
		nullableTime(user.ValidUntil),
		user.CreatedAt.Format(time.RFC3339),
		user.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrUIDConflict, deref(user.CardUID))
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// Update modifies an existing user.
func (r *SQLiteRepository) Update(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}

	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users SET
			name = ?, card_uid = ?, access_class = ?,
			valid_since = ?, valid_until = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		nullableString(user.CardUID),
		int(user.AccessClass),
		nullableTime(user.ValidSince),
		nullableTime(user.ValidUntil),
		user.UpdatedAt.Format(time.RFC3339),
		user.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrUIDConflict, deref(user.CardUID))
		}
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Delete removes a user. Permissions cascade via the foreign key.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetPermission creates or updates a per-device access class override.
func (r *SQLiteRepository) SetPermission(ctx context.Context, perm *Permission) error {
	if !perm.AccessClass.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAccessClass, perm.AccessClass)
	}

	now := time.Now().UTC()
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = now
	}
	perm.UpdatedAt = now

	query := `
		INSERT INTO permissions (user_id, device_hostname, access_class, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, device_hostname) DO UPDATE SET
			access_class = excluded.access_class,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		perm.UserID,
		perm.DeviceHostname,
		int(perm.AccessClass),
		perm.CreatedAt.Format(time.RFC3339),
		perm.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving permission: %w", err)
	}

	return nil
}

// DeletePermission removes an override.
func (r *SQLiteRepository) DeletePermission(ctx context.Context, userID, hostname string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM permissions WHERE user_id = ? AND device_hostname = ?",
		userID, hostname,
	)
	if err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPermissionNotFound
	}

	return nil
}

// ListPermissions retrieves all overrides for a user.
func (r *SQLiteRepository) ListPermissions(ctx context.Context, userID string) ([]Permission, error) {
	query := `
		SELECT user_id, device_hostname, access_class, created_at, updated_at
		FROM permissions
		WHERE user_id = ?
		ORDER BY device_hostname`

	return r.queryPermissions(ctx, query, userID)
}

// ListPermissionsByDevice retrieves all overrides targeting a device.
func (r *SQLiteRepository) ListPermissionsByDevice(ctx context.Context, hostname string) ([]Permission, error) {
	query := `
		SELECT user_id, device_hostname, access_class, created_at, updated_at
		FROM permissions
		WHERE device_hostname = ?
		ORDER BY user_id`

	return r.queryPermissions(ctx, query, hostname)
}

// queryPermissions executes a query and returns a slice of permissions.
func (r *SQLiteRepository) queryPermissions(ctx context.Context, query string, args ...any) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		var class int
		var createdAt, updatedAt string

		if err := rows.Scan(&p.UserID, &p.DeviceHostname, &class, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		p.AccessClass = AccessClass(class)

		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		perms = append(perms, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}

	return perms, nil
}

// validateUser checks the fields shared by Create and Update.
func validateUser(u *User) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if !u.AccessClass.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAccessClass, u.AccessClass)
	}
	if u.CardUID != nil && *u.CardUID == "" {
		return fmt.Errorf("%w: card uid cannot be empty string, use null", ErrInvalidUser)
	}
	if u.ValidSince != nil && u.ValidUntil != nil && u.ValidUntil.Before(*u.ValidSince) {
		return fmt.Errorf("%w: valid_until precedes valid_since", ErrInvalidUser)
	}
	return nil
}

// scanUser scans a row or rows result into a User.
func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	var cardUID sql.NullString
	var class int
	var validSince, validUntil sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&u.ID,
		&u.Name,
		&cardUID,
		&class,
		&validSince,
		&validUntil,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.AccessClass = AccessClass(class)

	if cardUID.Valid {
		u.CardUID = &cardUID.String
	}
	if validSince.Valid {
		if t, err := time.Parse(time.RFC3339, validSince.String); err == nil {
			u.ValidSince = &t
		}
	}
	if validUntil.Valid {
		if t, err := time.Parse(time.RFC3339, validUntil.String); err == nil {
			u.ValidUntil = &t
		}
	}

	var parseErr error
	if u.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if u.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &u, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// deref returns the pointed-to string or "" for nil.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
