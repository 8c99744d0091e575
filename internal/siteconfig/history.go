package siteconfig

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// OpenHistoryDB opens (creating if absent) the epoch-install audit trail:
// a durable local record of (epoch_id, installed_at, source) for
// diagnosing "which config was active when" after the fact.
func OpenHistoryDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("siteconfig: open history db: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer; this table sees one install at a time

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("siteconfig: ping history db: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS config_epochs (
		epoch_id    INTEGER PRIMARY KEY,
		installed_at TEXT NOT NULL,
		source      TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("siteconfig: create history table: %w", err)
	}

	return db, nil
}

func recordHistory(ctx context.Context, db *sql.DB, epoch uint64, source string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO config_epochs (epoch_id, installed_at, source) VALUES (?, ?, ?)`,
		epoch, time.Now().UTC().Format(time.RFC3339), source)
	return err
}

// History returns the most recent install records, newest first, for
// diagnostics tooling.
func History(ctx context.Context, db *sql.DB, limit int) ([]EpochRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT epoch_id, installed_at, source FROM config_epochs ORDER BY epoch_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("siteconfig: query history: %w", err)
	}
	defer rows.Close()

	var out []EpochRecord
	for rows.Next() {
		var rec EpochRecord
		if err := rows.Scan(&rec.EpochID, &rec.InstalledAt, &rec.Source); err != nil {
			return nil, fmt.Errorf("siteconfig: scan history row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EpochRecord is one row of the install-history audit trail.
type EpochRecord struct {
	EpochID     uint64
	InstalledAt string
	Source      string
}
