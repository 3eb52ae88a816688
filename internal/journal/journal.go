// Package journal persists drained command outcomes in a local sqlite
// database so history survives backend restarts and outages.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aquadeck/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	id           TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	action       TEXT NOT NULL,
	args         TEXT,
	status       TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	result       TEXT,
	error        TEXT,
	error_code   TEXT,
	created_at   REAL NOT NULL,
	started_at   REAL,
	completed_at REAL,
	timeout      REAL,
	recorded_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commands_address ON commands(address, created_at);
`

const defaultHistoryLimit = 50

// Journal wraps the sqlite handle. Use ":memory:" as the path for an
// ephemeral journal.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// sqlite allows a single writer; one connection keeps the drain loop
	// from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record upserts one command outcome. Re-recording an id replaces the row,
// so a re-dispatched command keeps a single entry with its latest outcome.
func (j *Journal) Record(rec *model.CommandRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot record nil command")
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO commands
		(id, address, action, args, status, attempts, result, error, error_code, created_at, started_at, completed_at, timeout, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Address, rec.Action, marshalJSON(rec.Args), string(rec.Status), rec.Attempts,
		marshalJSON(rec.Result), nullString(rec.Error), nullString(rec.ErrorCode),
		rec.CreatedAt, nullFloat(rec.StartedAt), nullFloat(rec.CompletedAt), rec.Timeout,
		time.Now().Format(time.RFC3339))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("record command %s: %w", rec.ID, err)
	}
	return tx.Commit()
}

// History returns the most recent commands for a device, newest first. A
// limit of zero or less applies the default.
func (j *Journal) History(address string, limit int) ([]model.CommandRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := j.db.Query(`SELECT id, address, action, args, status, attempts, result, error, error_code, created_at, started_at, completed_at, timeout
		FROM commands WHERE address = ? ORDER BY created_at DESC LIMIT ?`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", address, err)
	}
	defer rows.Close()

	var recs []model.CommandRecord
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Outcomes counts journaled commands by status. An empty address counts
// across all devices.
func (j *Journal) Outcomes(address string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM commands GROUP BY status`
	args := []any{}
	if address != "" {
		query = `SELECT status, COUNT(*) FROM commands WHERE address = ? GROUP BY status`
		args = append(args, address)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanCommand(rows *sql.Rows) (model.CommandRecord, error) {
	var rec model.CommandRecord
	var args, result sql.NullString
	var errMsg, errCode sql.NullString
	var status string
	var startedAt, completedAt sql.NullFloat64

	err := rows.Scan(&rec.ID, &rec.Address, &rec.Action, &args, &status, &rec.Attempts,
		&result, &errMsg, &errCode, &rec.CreatedAt, &startedAt, &completedAt, &rec.Timeout)
	if err != nil {
		return rec, fmt.Errorf("failed to scan command: %w", err)
	}

	rec.Status = model.CommandStatus(status)
	if args.Valid && args.String != "" {
		json.Unmarshal([]byte(args.String), &rec.Args)
	}
	if result.Valid && result.String != "" {
		json.Unmarshal([]byte(result.String), &rec.Result)
	}
	rec.Error = errMsg.String
	rec.ErrorCode = errCode.String
	if startedAt.Valid {
		rec.StartedAt = &startedAt.Float64
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Float64
	}
	return rec, nil
}

func marshalJSON(v map[string]any) any {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
