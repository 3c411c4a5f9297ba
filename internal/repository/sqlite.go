package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/olekzaw/traffic-watch/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the snapshot store. The default path is ":memory:";
// MaxOpenConns must stay at 1 so every connection sees the same in-memory
// database and the replace transaction is the only writer.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			location_approximate INTEGER NOT NULL DEFAULT 0,
			severity TEXT,
			status TEXT,
			reported_time DATETIME NOT NULL,
			last_updated DATETIME NOT NULL,
			reliability INTEGER,
			reporter TEXT,
			rating INTEGER,
			confidence INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_incidents_type ON incidents(type);
		CREATE INDEX IF NOT EXISTS idx_incidents_reported_time ON incidents(reported_time);
  	`

	_, err := s.db.Exec(schema)
	return err
}

// ReplaceAll swaps the stored snapshot for the given set in one
// transaction, so readers never observe a half-replaced store.
func (s *SQLiteDB) ReplaceAll(ctx context.Context, incidents []models.Incident) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM incidents`); err != nil {
		return fmt.Errorf("error clearing incidents: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incidents (
			id, type, title, description, latitude, longitude,
			location_approximate, severity, status, reported_time,
			last_updated, reliability, reporter, rating, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, inc := range incidents {
		_, err := stmt.ExecContext(ctx,
			inc.ID, string(inc.Category), inc.Title, inc.Description,
			inc.Latitude, inc.Longitude, inc.LocationApproximate,
			string(inc.Severity), string(inc.Status), inc.ReportedTime,
			inc.LastUpdated, inc.Reliability, inc.Reporter, inc.Rating,
			inc.Confidence,
		)
		if err != nil {
			return fmt.Errorf("error inserting incident %s: %w", inc.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteDB) ListAll(ctx context.Context) ([]models.Incident, error) {
	return s.list(ctx, `SELECT id, type, title, description, latitude, longitude,
		location_approximate, severity, status, reported_time, last_updated,
		reliability, reporter, rating, confidence
		FROM incidents ORDER BY reported_time DESC`)
}

func (s *SQLiteDB) ListByCategory(ctx context.Context, cat models.Category) ([]models.Incident, error) {
	return s.list(ctx, `SELECT id, type, title, description, latitude, longitude,
		location_approximate, severity, status, reported_time, last_updated,
		reliability, reporter, rating, confidence
		FROM incidents WHERE type = ? ORDER BY reported_time DESC`, string(cat))
}

func (s *SQLiteDB) list(ctx context.Context, query string, args ...any) ([]models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0)
	for rows.Next() {
		var (
			inc                           models.Incident
			category, severity, status    string
			description, reporter         sql.NullString
			reliability, rating, confScan sql.NullInt64
		)
		err := rows.Scan(
			&inc.ID, &category, &inc.Title, &description, &inc.Latitude,
			&inc.Longitude, &inc.LocationApproximate, &severity, &status,
			&inc.ReportedTime, &inc.LastUpdated, &reliability, &reporter,
			&rating, &confScan,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning incident row: %w", err)
		}
		inc.Category = models.Category(category)
		inc.Severity = models.Severity(severity)
		inc.Status = models.Status(status)
		inc.Description = description.String
		inc.Reporter = reporter.String
		inc.Reliability = int(reliability.Int64)
		inc.Rating = int(rating.Int64)
		inc.Confidence = int(confScan.Int64)
		incidents = append(incidents, inc)
	}

	return incidents, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
