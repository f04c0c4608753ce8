package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for access log persistence.
// The log is append-only: entries are never updated or deleted by the
// application.
type Repository interface {
	// Append stores a new entry and fills in its ID.
	Append(ctx context.Context, entry *Entry) error

	// List retrieves entries newest-first, narrowed by the filter.
	List(ctx context.Context, filter Filter) ([]Entry, error)

	// CountByDevice returns the number of logged events per hostname.
	CountByDevice(ctx context.Context) (map[string]int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append stores a new entry and fills in its ID.
func (r *SQLiteRepository) Append(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO access_logs (
			hostname, door_name, username, card_uid, granted, known_card,
			event_time, source_topic, raw_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		entry.Hostname,
		entry.DoorName,
		entry.Username,
		entry.CardUID,
		boolToInt(entry.Granted),
		boolToInt(entry.KnownCard),
		entry.EventTime.UTC().Format(time.RFC3339),
		entry.SourceTopic,
		entry.RawPayload,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting access log entry: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}

	return nil
}

// List retrieves entries newest-first, narrowed by the filter.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, hostname, door_name, username, card_uid, granted, known_card,
			event_time, source_topic, raw_payload, created_at
		FROM access_logs`

	var conditions []string
	var args []any

	if filter.Hostname != "" {
		conditions = append(conditions, "hostname = ?")
		args = append(args, filter.Hostname)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "event_time >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += " ORDER BY event_time DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access log entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access logs: %w", err)
	}

	return entries, nil
}

// CountByDevice returns the number of logged events per hostname.
func (r *SQLiteRepository) CountByDevice(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT hostname, COUNT(*) FROM access_logs GROUP BY hostname",
	)
	if err != nil {
		return nil, fmt.Errorf("counting access logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var hostname string
		var count int64
		if err := rows.Scan(&hostname, &count); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[hostname] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}

	return counts, nil
}

// scanEntry scans a rows result into an Entry.
func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var granted, knownCard int
	var eventTime, createdAt string

	err := rows.Scan(
		&e.ID,
		&e.Hostname,
		&e.DoorName,
		&e.Username,
		&e.CardUID,
		&granted,
		&knownCard,
		&eventTime,
		&e.SourceTopic,
		&e.RawPayload,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.Granted = granted != 0
	e.KnownCard = knownCard != 0

	if e.EventTime, err = time.Parse(time.RFC3339, eventTime); err != nil {
		return nil, fmt.Errorf("parsing event_time: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &e, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
