// Package sightings provides SQLite-backed persistence for the community
// feed and the campus map: user-posted cat sightings and the seeded
// locations of known cats.
package sightings

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sightings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	cat_name       TEXT NOT NULL DEFAULT '',
	user_name      TEXT NOT NULL DEFAULT '',
	caption        TEXT NOT NULL DEFAULT '',
	lat            REAL,
	lng            REAL,
	confidence     REAL,
	image_checksum TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sightings_cat ON sightings(cat_name);
CREATE INDEX IF NOT EXISTS idx_sightings_created ON sightings(created_at);

CREATE TABLE IF NOT EXISTS locations (
	name        TEXT PRIMARY KEY,
	lat         REAL NOT NULL,
	lng         REAL NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);
`

// Sighting is one feed post: an optional known-cat attribution, a caption,
// and optional coordinates from the poster's device.
type Sighting struct {
	ID            int64     `json:"id"`
	CatName       string    `json:"catName,omitempty"`
	UserName      string    `json:"userName,omitempty"`
	Caption       string    `json:"caption"`
	Lat           *float64  `json:"lat,omitempty"`
	Lng           *float64  `json:"lng,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
	ImageChecksum string    `json:"imageChecksum,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Location is one pin on the campus map.
type Location struct {
	Name        string     `json:"name"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Description string     `json:"description,omitempty"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

// Store wraps a sql.DB with sighting-specific operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sightings: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sightings: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sightings: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Add inserts a sighting and returns it with ID and timestamp populated.
func (s *Store) Add(sg Sighting) (*Sighting, error) {
	now := time.Now().UTC()
	res, err := s.conn.Exec(`
		INSERT INTO sightings (cat_name, user_name, caption, lat, lng, confidence, image_checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sg.CatName, sg.UserName, sg.Caption, sg.Lat, sg.Lng, sg.Confidence, sg.ImageChecksum, now)
	if err != nil {
		return nil, fmt.Errorf("sightings: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sightings: last insert id: %w", err)
	}
	sg.ID = id
	sg.CreatedAt = now
	return &sg, nil
}

// List returns sightings newest first with the total count for pagination.
func (s *Store) List(limit, offset int) ([]Sighting, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM sightings`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sightings: count: %w", err)
	}

	rows, err := s.conn.Query(`
		SELECT id, cat_name, user_name, caption, lat, lng, confidence, image_checksum, created_at
		FROM sightings
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("sightings: list: %w", err)
	}
	defer rows.Close()

	out := make([]Sighting, 0, limit)
	for rows.Next() {
		var sg Sighting
		if err := rows.Scan(&sg.ID, &sg.CatName, &sg.UserName, &sg.Caption, &sg.Lat, &sg.Lng, &sg.Confidence, &sg.ImageChecksum, &sg.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, sg)
	}
	return out, total, rows.Err()
}

// SeedLocations inserts the given locations, keeping any existing rows.
func (s *Store) SeedLocations(locs []Location) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("sightings: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO locations (name, lat, lng, description) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sightings: prepare seed: %w", err)
	}
	defer stmt.Close()
	for _, l := range locs {
		if _, err := stmt.Exec(l.Name, l.Lat, l.Lng, l.Description); err != nil {
			return fmt.Errorf("sightings: seed %s: %w", l.Name, err)
		}
	}
	return tx.Commit()
}

// Locations returns the campus map pins: the seeded locations, each
// refreshed with the coordinates and time of the most recent sighting of
// that cat that carried coordinates.
func (s *Store) Locations() ([]Location, error) {
	rows, err := s.conn.Query(`SELECT name, lat, lng, description FROM locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sightings: locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.Name, &l.Lat, &l.Lng, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		var lat, lng float64
		var seen time.Time
		err := s.conn.QueryRow(`
			SELECT lat, lng, created_at FROM sightings
			WHERE cat_name = ? AND lat IS NOT NULL AND lng IS NOT NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, out[i].Name).Scan(&lat, &lng, &seen)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sightings: latest for %s: %w", out[i].Name, err)
		}
		out[i].Lat = lat
		out[i].Lng = lng
		out[i].LastSeen = &seen
	}
	return out, nil
}
