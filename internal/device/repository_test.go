package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Create devices table matching the schema
	schema := `
		CREATE TABLE devices (
			hostname TEXT PRIMARY KEY,
			ip_address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'unknown',
			last_seen TEXT,
			offline_count INTEGER NOT NULL DEFAULT 0,
			uptime INTEGER NOT NULL DEFAULT 0,
			firmware TEXT NOT NULL DEFAULT '',
			door_names TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX idx_devices_status ON devices(status);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDevice creates a device for testing.
func testDevice(hostname string) *Device {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Device{
		Hostname:  hostname,
		IPAddress: "192.168.1.50",
		Status:    StatusOnline,
		LastSeen:  &seen,
		Uptime:    3600,
		Firmware:  "1.3.4",
		DoorNames: []string{"Front Door"},
	}
}

func TestSQLiteRepository_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	want := testDevice("front-door")
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.GetByHostname(ctx, "front-door")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}

	if got.Hostname != want.Hostname {
		t.Errorf("Hostname = %q, want %q", got.Hostname, want.Hostname)
	}
	if got.IPAddress != want.IPAddress {
		t.Errorf("IPAddress = %q, want %q", got.IPAddress, want.IPAddress)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(*want.LastSeen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, want.LastSeen)
	}
	if got.Uptime != 3600 {
		t.Errorf("Uptime = %d, want 3600", got.Uptime)
	}
	if len(got.DoorNames) != 1 || got.DoorNames[0] != "Front Door" {
		t.Errorf("DoorNames = %v, want [Front Door]", got.DoorNames)
	}
}

func TestSQLiteRepository_SaveUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("front-door")
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	d.IPAddress = "192.168.1.99"
	d.OfflineCount = 2
	d.Status = StatusOffline
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save() second call error = %v", err)
	}

	got, err := repo.GetByHostname(ctx, "front-door")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if got.IPAddress != "192.168.1.99" {
		t.Errorf("IPAddress = %q, want 192.168.1.99", got.IPAddress)
	}
	if got.OfflineCount != 2 {
		t.Errorf("OfflineCount = %d, want 2", got.OfflineCount)
	}
	if got.Status != StatusOffline {
		t.Errorf("Status = %q, want offline", got.Status)
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("List() returned %d devices, want 1", len(devices))
	}
}

func TestSQLiteRepository_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.GetByHostname(context.Background(), "missing")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByHostname() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_List_OrderedByHostname(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, hostname := range []string{"workshop", "front-door", "garage"} {
		if err := repo.Save(ctx, testDevice(hostname)); err != nil {
			t.Fatalf("Save(%s) error = %v", hostname, err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"front-door", "garage", "workshop"}
	if len(devices) != len(want) {
		t.Fatalf("List() returned %d devices, want %d", len(devices), len(want))
	}
	for i, hostname := range want {
		if devices[i].Hostname != hostname {
			t.Errorf("devices[%d].Hostname = %q, want %q", i, devices[i].Hostname, hostname)
		}
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Save(ctx, testDevice("front-door")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.Delete(ctx, "front-door"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.GetByHostname(ctx, "front-door"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByHostname() after delete error = %v, want ErrDeviceNotFound", err)
	}

	if err := repo.Delete(ctx, "front-door"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() on missing device error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_NilLastSeen(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := &Device{Hostname: "front-door", Status: StatusUnknown}
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.GetByHostname(ctx, "front-door")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if got.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", got.LastSeen)
	}
}
