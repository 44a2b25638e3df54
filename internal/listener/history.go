package listener

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// RunRecord is the stored summary of one finished run.
type RunRecord struct {
	ID         string
	Flow       string
	StartedAt  time.Time
	FinishedAt time.Time
	StopReason string
	Outputs    []OutputRecord
}

// OutputRecord is one stored output row.
type OutputRecord struct {
	NodeID   string
	NodeName string
	Values   map[string]any
}

// History records finished runs in a SQLite database.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// OpenHistory opens (or creates) the SQLite database at dsn and prepares its
// schema. Use ":memory:" for a throwaway store.
func OpenHistory(dsn string) (*History, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	h, err := NewHistory(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// NewHistory initializes the schema in db and returns a History using it.
func NewHistory(db *sql.DB) (*History, error) {
	h := &History{db: db, now: time.Now}
	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	if _, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			stop_reason TEXT NOT NULL DEFAULT ''
		);`,
	); err != nil {
		return err
	}
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_outputs (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			node_name TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
	)
	return err
}

// Close releases the database.
func (h *History) Close() error {
	return h.db.Close()
}

// BeforeStart inserts the run row.
func (h *History) BeforeStart(ctx context.Context, rc *runctx.Context) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO runs (id, flow_name, started_at)
		VALUES (?, ?, ?)`,
		rc.ID(),
		rc.FlowName(),
		rc.StartedAt().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// AfterEnd completes the run row and stores every output in one transaction.
func (h *History) AfterEnd(ctx context.Context, rc *runctx.Context) error {
	// The run context may already be cancelled; the write must still land.
	ctx = context.WithoutCancel(ctx)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, stop_reason = ? WHERE id = ?`,
		h.now().UnixNano(),
		rc.StopReason(),
		rc.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s was never recorded as started", rc.ID())
	}

	for i, out := range rc.Outputs() {
		payload, err := json.Marshal(out.Map())
		if err != nil {
			return fmt.Errorf("failed to encode output of node %s: %w", out.NodeID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_outputs (run_id, seq, node_id, node_name, payload)
			VALUES (?, ?, ?, ?, ?)`,
			rc.ID(), i, out.NodeID, out.NodeName, string(payload),
		); err != nil {
			return fmt.Errorf("failed to record output: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit finished runs, newest first, with their outputs.
func (h *History) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, flow_name, started_at, finished_at, stop_reason
		FROM runs
		WHERE finished_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec               RunRecord
			started, finished int64
		)
		if err := rows.Scan(&rec.ID, &rec.Flow, &started, &finished, &rec.StopReason); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(0, started)
		rec.FinishedAt = time.Unix(0, finished)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		outs, err := h.outputs(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Outputs = outs
	}
	return records, nil
}

func (h *History) outputs(ctx context.Context, runID string) ([]OutputRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT node_id, node_name, payload FROM run_outputs
		WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outs []OutputRecord
	for rows.Next() {
		var (
			rec     OutputRecord
			payload string
		)
		if err := rows.Scan(&rec.NodeID, &rec.NodeName, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Values); err != nil {
			return nil, fmt.Errorf("corrupt output payload for run %s: %w", runID, err)
		}
		outs = append(outs, rec)
	}
	return outs, rows.Err()
}
