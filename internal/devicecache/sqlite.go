package devicecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// SQLiteStore is the reference Store implementation, persisting each Device
// as a JSON blob keyed by its identity tuple in a single-table SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening device cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging device cache: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 serializes writers; avoid pool contention

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS devices (
		identity_key TEXT PRIMARY KEY,
		last_seen    DATETIME NOT NULL,
		payload      TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrating device cache: %w", err)
	}
	return nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, device upnpmodel.Device) error {
	k := key(upnpmodel.IdentityOf(device))

	existing, found, err := s.getByKey(ctx, k)
	if err != nil {
		return err
	}
	if found {
		device = upnpmodel.Merge(existing, device)
	}

	payload, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("marshaling device %s: %w", k, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO devices (identity_key, last_seen, payload) VALUES (?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET last_seen = excluded.last_seen, payload = excluded.payload`,
		k, device.LastSeen, string(payload),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", k, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, identity upnpmodel.Identity) (upnpmodel.Device, bool, error) {
	return s.getByKey(ctx, key(identity))
}

func (s *SQLiteStore) getByKey(ctx context.Context, k string) (upnpmodel.Device, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM devices WHERE identity_key = ?`, k).Scan(&payload)
	if err == sql.ErrNoRows {
		return upnpmodel.Device{}, false, nil
	}
	if err != nil {
		return upnpmodel.Device{}, false, fmt.Errorf("querying device %s: %w", k, err)
	}
	var device upnpmodel.Device
	if err := json.Unmarshal([]byte(payload), &device); err != nil {
		return upnpmodel.Device{}, false, fmt.Errorf("unmarshaling device %s: %w", k, err)
	}
	return device, true, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, maxAge time.Duration) ([]upnpmodel.Device, error) {
	query := `SELECT payload FROM devices`
	args := []any{}
	if maxAge > 0 {
		query += ` WHERE last_seen >= ?`
		args = append(args, time.Now().Add(-maxAge))
	}
	query += ` ORDER BY identity_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []upnpmodel.Device
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		var device upnpmodel.Device
		if err := json.Unmarshal([]byte(payload), &device); err != nil {
			return nil, fmt.Errorf("unmarshaling device row: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
