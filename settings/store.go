package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/hazyhaar/imgveil/dbopen"
)

// Schema is the settings table DDL, suitable for dbopen.WithSchema.
// The record is a per-area key/value store; imgveil only reads and writes
// AreaLocal, but foreign areas may coexist in the same file.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	area       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (area, key)
);
`

// Store persists settings in SQLite. Values are stored as text and
// normalized on every load, so a corrupt or hand-edited row can never
// surface as an invalid Settings.
type Store struct {
	db   *sql.DB
	area string
}

// NewStore creates a Store bound to AreaLocal.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, area: AreaLocal}
}

// Init creates the settings table.
func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("settings: init schema: %w", err)
	}
	return nil
}

// Load reads the persisted record and normalizes it against the defaults.
// A missing table row (or an entirely empty store) yields the defaults.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE area = ?`, s.area)
	if err != nil {
		return Defaults(), fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Defaults(), fmt.Errorf("settings: scan: %w", err)
		}
		raw[k] = v
	}
	if err := rows.Err(); err != nil {
		return Defaults(), fmt.Errorf("settings: rows: %w", err)
	}

	return Normalize(Defaults(), raw), nil
}

// Save upserts the normalized record. The shared updated_at column is the
// change token the bridge polls.
func (s *Store) Save(ctx context.Context, st Settings) error {
	st = Normalize(st, nil)
	now := time.Now().UnixMilli()

	pairs := []struct{ key, value string }{
		{KeyNoiseType, string(st.NoiseType)},
		{KeyIntensity, strconv.FormatFloat(st.Intensity, 'f', -1, 64)},
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range pairs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (area, key, value, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (area, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				s.area, p.key, p.value, now)
			if err != nil {
				return fmt.Errorf("settings: save %s: %w", p.key, err)
			}
		}
		return nil
	})
	return err
}

// Version returns the change token: the newest updated_at in the local area.
// Two different values mean the record changed in between.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(updated_at), 0) FROM settings WHERE area = ?`, s.area).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("settings: version: %w", err)
	}
	return v, nil
}
