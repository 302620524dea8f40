package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Batch run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// Per-date statuses within a run
const (
	DateStatusSuccess = "success"
	DateStatusPartial = "partial"
	DateStatusFailed  = "failed"
	DateStatusSkipped = "skipped"
)

// BatchRun is the durable record of one orchestrator invocation
type BatchRun struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	TargetDate   string          `json:"target_date"`
	LookbackDays int             `json:"lookback_days"`
	Force        bool            `json:"force_recalculate"`
	TriggeredBy  string          `json:"triggered_by"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
}

// DateStatus is one calculation date's outcome within a run
type DateStatus struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BatchRunRepository persists run bookkeeping. Per-date rows are the resume
// backbone: planning skips dates that already have a success row.
type BatchRunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBatchRunRepository creates a new batch run repository
func NewBatchRunRepository(db *sql.DB, log zerolog.Logger) *BatchRunRepository {
	return &BatchRunRepository{
		db:  db,
		log: log.With().Str("repo", "batch_runs").Logger(),
	}
}

// Create inserts a new run in the running state
func (r *BatchRunRepository) Create(ctx context.Context, run *BatchRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_runs (id, status, target_date, lookback_days, force_recalculate, triggered_by, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, RunStatusRunning, run.TargetDate, run.LookbackDays, run.Force, run.TriggeredBy,
		run.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create batch run: %w", err)
	}
	return nil
}

// RecordDate upserts one date's outcome for a run
func (r *BatchRunRepository) RecordDate(ctx context.Context, runID, date, status, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_run_dates (run_id, date, status, error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, date) DO UPDATE SET status = excluded.status, error = excluded.error
	`, runID, date, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record date status: %w", err)
	}
	return nil
}

// Complete marks a run terminal and stores its report
func (r *BatchRunRepository) Complete(ctx context.Context, runID, status string, report interface{}) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE batch_runs
		SET status = ?, completed_at = ?, report = ?
		WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339), string(encoded), runID)
	if err != nil {
		return fmt.Errorf("failed to complete batch run: %w", err)
	}
	return nil
}

// SucceededDates returns every date at or after since that any run finished
// successfully, for planning.
func (r *BatchRunRepository) SucceededDates(ctx context.Context, since string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT date FROM batch_run_dates
		WHERE status = ? AND date >= ?
	`, DateStatusSuccess, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query succeeded dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates[d] = true
	}
	return dates, rows.Err()
}

// RecentRuns returns the newest runs, most recent first
func (r *BatchRunRepository) RecentRuns(ctx context.Context, limit int) ([]BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, target_date, lookback_days, force_recalculate, triggered_by, started_at, completed_at, report
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []BatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns one run and its per-date statuses, nil when absent
func (r *BatchRunRepository) GetRun(ctx context.Context, id string) (*BatchRun, []DateStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, target_date, lookback_days, force_recalculate, triggered_by, started_at, completed_at, report
		FROM batch_runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT date, status, error FROM batch_run_dates WHERE run_id = ? ORDER BY date
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query run dates: %w", err)
	}
	defer rows.Close()

	var dates []DateStatus
	for rows.Next() {
		var d DateStatus
		if err := rows.Scan(&d.Date, &d.Status, &d.Error); err != nil {
			return nil, nil, fmt.Errorf("failed to scan run date: %w", err)
		}
		dates = append(dates, d)
	}
	return run, dates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*BatchRun, error) {
	var run BatchRun
	var startedAt string
	var completedAt, report sql.NullString

	err := row.Scan(&run.ID, &run.Status, &run.TargetDate, &run.LookbackDays, &run.Force,
		&run.TriggeredBy, &startedAt, &completedAt, &report)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch run: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			run.CompletedAt = &t
		}
	}
	if report.Valid {
		run.Report = json.RawMessage(report.String)
	}
	return &run, nil
}
