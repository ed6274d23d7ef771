package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/stats"
)

// SQLiteDB keeps one row per accepted submission in SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path. ":memory:" gives a throwaway database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path == "" {
		path = "coindle.db"
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writers serialized and ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the submissions table and its index.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			day TEXT NOT NULL,
			score INTEGER NOT NULL CHECK (score >= 0),
			received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_day_score ON submissions(day, score)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record inserts one submission row.
func (s *SQLiteDB) Record(ctx context.Context, day calendar.Day, score int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, day, score, received_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), day.ISO(), score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	return tx.Commit()
}

// Distribution counts day's submissions per score.
func (s *SQLiteDB) Distribution(ctx context.Context, day calendar.Day) ([]stats.Bucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT score, COUNT(*) FROM submissions WHERE day = ? GROUP BY score ORDER BY score`,
		day.ISO())
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	return scanBuckets(rows)
}

// Prune deletes every submission for a day before the given one.
func (s *SQLiteDB) Prune(ctx context.Context, before calendar.Day) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE day < ?`, before.ISO())
	if err != nil {
		return 0, fmt.Errorf("failed to prune submissions: %w", err)
	}
	return res.RowsAffected()
}

func scanBuckets(rows *sql.Rows) ([]stats.Bucket, error) {
	var buckets []stats.Bucket
	for rows.Next() {
		var b stats.Bucket
		if err := rows.Scan(&b.Score, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
