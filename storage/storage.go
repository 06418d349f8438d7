package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"feedback-radar/feedback"
	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

const defaultListLimit = 20

// StoredReport is a persisted report with its row metadata.
type StoredReport struct {
	ID        string
	Company   string
	CreatedAt time.Time
	Report    *synthesis.Report
}

// DB wraps the SQLite database connection and provides storage operations.
type DB struct {
	conn           *sql.DB
	classifyMaxAge time.Duration
	now            func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClassificationMaxAge makes cached classifications older than d count as misses.
// Zero keeps them forever.
func WithClassificationMaxAge(d time.Duration) Option {
	return func(db *DB) {
		db.classifyMaxAge = d
	}
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(path string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_company_created ON snapshots(company, created_at);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		health_score INTEGER,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_company_created ON reports(company, created_at);

	CREATE TABLE IF NOT EXISTS classifications (
		post_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		classified_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot inserts or replaces a snapshot.
func (db *DB) SaveSnapshot(ctx context.Context, s trend.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
	INSERT INTO snapshots (id, company, created_at, payload)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		company = excluded.company,
		created_at = excluded.created_at,
		payload = excluded.payload
	`
	_, err = db.conn.ExecContext(ctx, query, s.ID, s.CompanyName, s.CreatedAt.UnixNano(), string(payload))
	return err
}

// LatestSnapshot returns the most recent snapshot for a company.
// An empty company matches any.
func (db *DB) LatestSnapshot(ctx context.Context, company string) (*trend.Snapshot, error) {
	snaps, err := db.ListSnapshots(ctx, company, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return &snaps[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (db *DB) ListSnapshots(ctx context.Context, company string, limit int) ([]trend.Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
	SELECT payload FROM snapshots
	WHERE (? = '' OR company = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, company, company, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []trend.Snapshot{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var s trend.Snapshot
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// SaveReport stores a report under id.
func (db *DB) SaveReport(ctx context.Context, id string, report *synthesis.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	created := db.now()
	if t, err := time.Parse(time.RFC3339, report.Metadata.AnalysisDate); err == nil {
		created = t
	}

	var health sql.NullInt64
	if report.Comparison.Trends != nil {
		health = sql.NullInt64{Int64: int64(report.Comparison.Trends.HealthScore), Valid: true}
	}

	query := `
	INSERT INTO reports (id, company, created_at, health_score, payload)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		company = excluded.company,
		created_at = excluded.created_at,
		health_score = excluded.health_score,
		payload = excluded.payload
	`
	_, err = db.conn.ExecContext(ctx, query, id, report.CompanyName, created.UnixNano(), health, string(payload))
	return err
}

// LatestReport returns the most recent report for a company.
// An empty company matches any.
func (db *DB) LatestReport(ctx context.Context, company string) (*StoredReport, error) {
	query := `
	SELECT id, company, created_at, payload FROM reports
	WHERE (? = '' OR company = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT 1
	`
	var (
		sr      StoredReport
		created int64
		payload string
	)
	err := db.conn.QueryRowContext(ctx, query, company, company).Scan(&sr.ID, &sr.Company, &created, &payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sr.CreatedAt = time.Unix(0, created).UTC()
	sr.Report = &synthesis.Report{}
	if err := json.Unmarshal([]byte(payload), sr.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &sr, nil
}

// HealthHistory returns the recorded health scores for a company, newest first.
// Reports from first runs have no score and are skipped.
func (db *DB) HealthHistory(ctx context.Context, company string, limit int) ([]int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
	SELECT health_score FROM reports
	WHERE company = ? AND health_score IS NOT NULL
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, company, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// Lookup returns a cached classification for a post.
func (db *DB) Lookup(ctx context.Context, postID string) (*feedback.ClassifiedItem, bool, error) {
	query := `SELECT payload, classified_at FROM classifications WHERE post_id = ?`
	var (
		payload string
		at      int64
	)
	err := db.conn.QueryRowContext(ctx, query, postID).Scan(&payload, &at)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if db.classifyMaxAge > 0 && db.now().Sub(time.Unix(0, at)) > db.classifyMaxAge {
		return nil, false, nil
	}

	var item feedback.ClassifiedItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, false, fmt.Errorf("unmarshal classification: %w", err)
	}
	return &item, true, nil
}

// Store caches a classification, replacing any previous one for the post.
func (db *DB) Store(ctx context.Context, item feedback.ClassifiedItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	query := `
	INSERT INTO classifications (post_id, payload, classified_at) VALUES (?, ?, ?)
	ON CONFLICT(post_id) DO UPDATE SET
		payload = excluded.payload,
		classified_at = excluded.classified_at
	`
	_, err = db.conn.ExecContext(ctx, query, item.ID, string(payload), db.now().UnixNano())
	return err
}

// PruneClassifications deletes cached classifications older than the cutoff.
func (db *DB) PruneClassifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := db.now().Add(-olderThan).UnixNano()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM classifications WHERE classified_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetSetting retrieves a setting value by key.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM settings WHERE key = ?`
	var value string
	err := db.conn.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting stores or updates a setting.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := db.conn.ExecContext(ctx, query, key, value)
	return err
}
