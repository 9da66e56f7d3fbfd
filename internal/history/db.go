// internal/history/db.go
package history

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown analysis id
var ErrNotFound = errors.New("analysis not found")

// Record is the stored outcome of one pipeline run
type Record struct {
	ID           string    `json:"analysis_id"`
	Timestamp    time.Time `json:"timestamp"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage,omitempty"`
	Code         string    `json:"code,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	TotalLogs    int       `json:"total_logs"`
	Findings     int       `json:"findings"`
	DocumentPath string    `json:"document_path,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DB wraps SQLite connection
type DB struct {
	db *sql.DB
}

// NewDB opens or creates the SQLite database
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT,
		code TEXT,
		attempts INTEGER DEFAULT 0,
		total_logs INTEGER DEFAULT 0,
		findings INTEGER DEFAULT 0,
		document_path TEXT,
		summary TEXT,
		error TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the connection is usable
func (d *DB) Ping() error {
	return d.db.Ping()
}

// Save stores r, replacing any earlier record with the same id
func (d *DB) Save(r *Record) error {
	_, err := d.db.Exec(`
		INSERT INTO runs (id, timestamp, mode, status, stage, code, attempts, total_logs, findings, document_path, summary, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			stage = excluded.stage,
			code = excluded.code,
			attempts = excluded.attempts,
			total_logs = excluded.total_logs,
			findings = excluded.findings,
			document_path = excluded.document_path,
			summary = excluded.summary,
			error = excluded.error
	`, r.ID, r.Timestamp.UTC().Format(time.RFC3339), r.Mode, r.Status, r.Stage, r.Code, r.Attempts,
		r.TotalLogs, r.Findings, r.DocumentPath, r.Summary, r.Error)

	return err
}

// Get returns the record for id
func (d *DB) Get(id string) (*Record, error) {
	rows, err := d.db.Query(`
		SELECT id, timestamp, mode, status, stage, code, attempts, total_logs, findings, document_path, summary, error, created_at
		FROM runs
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// Recent returns the newest records first
func (d *DB) Recent(limit int) ([]Record, error) {
	rows, err := d.db.Query(`
		SELECT id, timestamp, mode, status, stage, code, attempts, total_logs, findings, document_path, summary, error, created_at
		FROM runs
		ORDER BY timestamp DESC, created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// StatusCounts returns count of runs by status
func (d *DB) StatusCounts() (map[string]int, error) {
	rows, err := d.db.Query(`
		SELECT status, COUNT(*) FROM runs GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var r Record
		var tsStr, createdStr string
		var stage, code, path, summary, errMsg sql.NullString

		err := rows.Scan(&r.ID, &tsStr, &r.Mode, &r.Status, &stage, &code, &r.Attempts,
			&r.TotalLogs, &r.Findings, &path, &summary, &errMsg, &createdStr)
		if err != nil {
			return nil, err
		}

		r.Timestamp, _ = time.Parse(time.RFC3339, tsStr)
		r.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdStr)
		r.Stage = stage.String
		r.Code = code.String
		r.DocumentPath = path.String
		r.Summary = summary.String
		r.Error = errMsg.String

		records = append(records, r)
	}
	return records, rows.Err()
}
