package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByHostname retrieves a device by its hostname.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByHostname(ctx context.Context, hostname string) (*Device, error)

	// List retrieves all devices ordered by hostname.
	List(ctx context.Context) ([]Device, error)

	// Save inserts or updates a device record keyed by hostname.
	Save(ctx context.Context, device *Device) error

	// Delete removes a device by hostname.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, hostname string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `hostname, ip_address, status, last_seen, offline_count,
		uptime, firmware, door_names, created_at, updated_at`

// GetByHostname retrieves a device by its hostname.
func (r *SQLiteRepository) GetByHostname(ctx context.Context, hostname string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE hostname = ?`

	row := r.db.QueryRowContext(ctx, query, hostname)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by hostname: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by hostname.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY hostname`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Save inserts or updates a device record keyed by hostname.
func (r *SQLiteRepository) Save(ctx context.Context, device *Device) error {
	doorNamesJSON, err := json.Marshal(device.DoorNames)
	if err != nil {
		return fmt.Errorf("marshalling door_names: %w", err)
	}
	if device.DoorNames == nil {
		doorNamesJSON = []byte("[]")
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			hostname, ip_address, status, last_seen, offline_count,
			uptime, firmware, door_names, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hostname) DO UPDATE SET
			ip_address = excluded.ip_address,
			status = excluded.status,
			last_seen = excluded.last_seen,
			offline_count = excluded.offline_count,
			uptime = excluded.uptime,
			firmware = excluded.firmware,
			door_names = excluded.door_names,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		device.Hostname,
		device.IPAddress,
		string(device.Status),
		nullableTime(device.LastSeen),
		device.OfflineCount,
		device.Uptime,
		device.Firmware,
		string(doorNamesJSON),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}

	return nil
}

// Delete removes a device by hostname.
func (r *SQLiteRepository) Delete(ctx context.Context, hostname string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE hostname = ?", hostname)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var status string
	var lastSeen sql.NullString
	var doorNamesJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.Hostname,
		&d.IPAddress,
		&status,
		&lastSeen,
		&d.OfflineCount,
		&d.Uptime,
		&d.Firmware,
		&doorNamesJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if doorNamesJSON != "" {
		if err := json.Unmarshal([]byte(doorNamesJSON), &d.DoorNames); err != nil {
			return nil, fmt.Errorf("unmarshalling door_names: %w", err)
		}
	}

	return &d, nil
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
