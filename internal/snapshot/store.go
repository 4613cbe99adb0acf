// Package snapshot provides persistent history of resolved roster rows.
// Each resolution pass is recorded append-only with its rows, so the
// API can serve the latest view without re-polling Home Assistant and
// old passes can be pruned on a retention cap.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/netroster/internal/roster"
)

// Pass identifies one recorded resolution pass.
type Pass struct {
	ID          string
	Timestamp   time.Time
	InstanceID  string
	Integration string
	RowCount    int
}

// Store is an append-only SQLite store of resolution passes. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// Open creates a snapshot store at the given database path using the
// cgo SQLite driver with WAL journaling.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an already-open database. The schema is created
// automatically. Tests pass an in-memory pure-Go SQLite here.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate snapshot schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passes (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		instance_id TEXT,
		integration TEXT,
		row_count   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_passes_timestamp ON passes(timestamp);

	CREATE TABLE IF NOT EXISTS rows (
		pass_id         TEXT NOT NULL REFERENCES passes(id) ON DELETE CASCADE,
		entity_id       TEXT NOT NULL,
		name            TEXT,
		mac             TEXT,
		online          INTEGER NOT NULL,
		connection_type TEXT,
		band_type       TEXT,
		ip              TEXT,
		down_mbps       REAL,
		up_mbps         REAL,
		signal_dbm      REAL,
		traffic_bytes   REAL,
		online_time     TEXT,
		device_key      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_rows_pass ON rows(pass_id);
	CREATE INDEX IF NOT EXISTS idx_rows_mac ON rows(mac);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordPass persists one resolution pass with its rows and returns the
// generated pass ID (UUIDv7, so IDs sort by creation time).
func (s *Store) RecordPass(ctx context.Context, opts roster.Options, rows []roster.CanonicalRow) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate pass ID: %w", err)
	}

	ts := opts.Now
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin pass transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO passes (id, timestamp, instance_id, integration, row_count)
		 VALUES (?, ?, ?, ?, ?)`,
		id.String(),
		ts.UTC().Format(time.RFC3339),
		opts.InstanceID,
		string(opts.Integration),
		len(rows),
	)
	if err != nil {
		return "", fmt.Errorf("insert pass: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rows
			(pass_id, entity_id, name, mac, online, connection_type, band_type,
			 ip, down_mbps, up_mbps, signal_dbm, traffic_bytes, online_time, device_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			id.String(),
			r.EntityID,
			r.NameDisplay,
			r.MACNormalized,
			r.Online,
			string(r.ConnectionType),
			string(r.BandType),
			r.IP,
			nullable(r.DownSpeedMbps),
			nullable(r.UpSpeedMbps),
			nullable(r.SignalDbm),
			nullable(r.TrafficUsageBytes),
			r.OnlineTime,
			r.DeviceKey,
		)
		if err != nil {
			return "", fmt.Errorf("insert row %s: %w", r.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit pass: %w", err)
	}
	return id.String(), nil
}

// StoredRow is one persisted roster row, as read back from the store.
type StoredRow struct {
	EntityID       string
	Name           string
	MAC            string
	Online         bool
	ConnectionType string
	BandType       string
	IP             string
	DownMbps       *float64
	UpMbps         *float64
	SignalDbm      *float64
	TrafficBytes   *float64
	OnlineTime     string
	DeviceKey      string
}

// LatestPass returns the most recent pass and its rows. Returns
// sql.ErrNoRows (wrapped) when the store is empty.
func (s *Store) LatestPass(ctx context.Context) (*Pass, []StoredRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, instance_id, integration, row_count
		 FROM passes ORDER BY timestamp DESC, id DESC LIMIT 1`)

	var p Pass
	var ts string
	if err := row.Scan(&p.ID, &ts, &p.InstanceID, &p.Integration, &p.RowCount); err != nil {
		return nil, nil, fmt.Errorf("query latest pass: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, nil, fmt.Errorf("parse pass timestamp %q: %w", ts, err)
	}
	p.Timestamp = t

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, name, mac, online, connection_type, band_type,
		        ip, down_mbps, up_mbps, signal_dbm, traffic_bytes, online_time, device_key
		 FROM rows WHERE pass_id = ? ORDER BY entity_id`,
		p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("query pass rows: %w", err)
	}
	defer rows.Close()

	var out []StoredRow
	for rows.Next() {
		var r StoredRow
		var down, up, sig, traffic sql.NullFloat64
		if err := rows.Scan(&r.EntityID, &r.Name, &r.MAC, &r.Online, &r.ConnectionType,
			&r.BandType, &r.IP, &down, &up, &sig, &traffic, &r.OnlineTime, &r.DeviceKey); err != nil {
			return nil, nil, fmt.Errorf("scan pass row: %w", err)
		}
		r.DownMbps = fromNull(down)
		r.UpMbps = fromNull(up)
		r.SignalDbm = fromNull(sig)
		r.TrafficBytes = fromNull(traffic)
		out = append(out, r)
	}
	return &p, out, rows.Err()
}

// Prune deletes all but the newest keep passes, along with their rows.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prune transaction: %w", err)
	}
	defer tx.Rollback()

	// Foreign keys may be off depending on driver defaults, so delete
	// rows explicitly rather than relying on ON DELETE CASCADE.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM rows WHERE pass_id NOT IN
			(SELECT id FROM passes ORDER BY timestamp DESC, id DESC LIMIT ?)`,
		keep)
	if err != nil {
		return fmt.Errorf("prune rows: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM passes WHERE id NOT IN
			(SELECT id FROM passes ORDER BY timestamp DESC, id DESC LIMIT ?)`,
		keep)
	if err != nil {
		return fmt.Errorf("prune passes: %w", err)
	}

	return tx.Commit()
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func fromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
