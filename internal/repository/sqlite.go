package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under
	// concurrent dispatch writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			localized TEXT,
			center_lat REAL,
			center_lng REAL,
			radius_km REAL NOT NULL DEFAULT 0,
			polygon TEXT,
			location_ids TEXT,
			channels TEXT NOT NULL,
			expires_at DATETIME,
			created_at DATETIME NOT NULL,
			issued_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS subscribers (
			id TEXT PRIMARY KEY,
			lat REAL,
			lng REAL,
			location_ids TEXT,
			phone TEXT NOT NULL DEFAULT '',
			push_token TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'rw',
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			subscriber_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			attempt_count INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			sent_at DATETIME,
			delivered_at DATETIME,
			read_at DATETIME,
			UNIQUE (alert_id, subscriber_id, channel),
			FOREIGN KEY (alert_id) REFERENCES alerts(id)
		);

		CREATE TABLE IF NOT EXISTS web_feed (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			type TEXT NOT NULL,
			published_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_deliveries_alert_status ON deliveries(alert_id, status);
		CREATE INDEX IF NOT EXISTS idx_deliveries_alert_channel ON deliveries(alert_id, channel);
		CREATE INDEX IF NOT EXISTS idx_web_feed_published ON web_feed(published_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
