package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for run persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// CreateRun inserts a new run record.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Returns ErrRunNotFound if absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns retrieves all runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// UpdateRun replaces the mutable fields of a run record.
	UpdateRun(ctx context.Context, run *Run) error

	// AppendLog adds one log entry to a run's execution log.
	AppendLog(ctx context.Context, entry *LogEntry) error

	// ListLogs retrieves a run's log entries in insertion order.
	ListLogs(ctx context.Context, runID string) ([]LogEntry, error)

	// CreateCampaign inserts a new campaign record.
	CreateCampaign(ctx context.Context, c *Campaign) error

	// GetCampaign retrieves a campaign by ID. Returns ErrCampaignNotFound
	// if absent.
	GetCampaign(ctx context.Context, id string) (*Campaign, error)

	// UpdateCampaign replaces the mutable fields of a campaign record.
	UpdateCampaign(ctx context.Context, c *Campaign) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, device_id, workflow_name, iterations, status, iteration,
	step_index, failure_reason, failure_step, credential_key, campaign_id,
	created_at, started_at, completed_at`

// CreateRun inserts a new run record.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.DeviceID,
		run.WorkflowName,
		run.Iterations,
		string(run.Status),
		run.Iteration,
		run.StepIndex,
		nullString(run.FailureReason),
		nullInt(run.FailureStep),
		nullString(run.CredentialKey),
		nullString(run.CampaignID),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run by id: %w", err)
	}
	return run, nil
}

// ListRuns retrieves all runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run row: %w", scanErr)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// UpdateRun replaces the mutable fields of a run record.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs SET
			status = ?, iteration = ?, step_index = ?, failure_reason = ?,
			failure_step = ?, credential_key = ?, started_at = ?, completed_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(run.Status),
		run.Iteration,
		run.StepIndex,
		nullString(run.FailureReason),
		nullInt(run.FailureStep),
		nullString(run.CredentialKey),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return requireRunAffected(result, ErrRunNotFound)
}

// AppendLog adds one log entry to a run's execution log.
func (r *SQLiteRepository) AppendLog(ctx context.Context, entry *LogEntry) error {
	var detail any
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshalling log detail: %w", err)
		}
		detail = string(b)
	}

	query := `
		INSERT INTO run_logs (run_id, at, level, iteration, step_index, message, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.RunID,
		entry.At.UTC().Format(time.RFC3339Nano),
		entry.Level,
		entry.Iteration,
		entry.StepIndex,
		entry.Message,
		detail,
	)
	if err != nil {
		return fmt.Errorf("inserting run log: %w", err)
	}
	return nil
}

// ListLogs retrieves a run's log entries in insertion order.
func (r *SQLiteRepository) ListLogs(ctx context.Context, runID string) ([]LogEntry, error) {
	query := `
		SELECT id, run_id, at, level, iteration, step_index, message, detail
		FROM run_logs WHERE run_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e      LogEntry
			at     string
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &at, &e.Level, &e.Iteration, &e.StepIndex, &e.Message, &detail); err != nil {
			return nil, fmt.Errorf("scanning run log row: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parsing log timestamp: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshalling log detail: %w", err)
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run logs: %w", err)
	}
	return entries, nil
}

// CreateCampaign inserts a new campaign record.
func (r *SQLiteRepository) CreateCampaign(ctx context.Context, c *Campaign) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, status, created_at, completed_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Status),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullTime(c.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by ID. Run membership is resolved from
// the runs table.
func (r *SQLiteRepository) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, completed_at FROM campaigns WHERE id = ?`, id)

	var (
		c           Campaign
		status      string
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &status, &createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("querying campaign: %w", err)
	}

	c.Status = CampaignStatus(status)
	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		c.CompletedAt = &t
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE campaign_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("querying campaign runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("scanning campaign run id: %w", err)
		}
		c.RunIDs = append(c.RunIDs, runID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating campaign runs: %w", err)
	}

	return &c, nil
}

// UpdateCampaign replaces the mutable fields of a campaign record.
func (r *SQLiteRepository) UpdateCampaign(ctx context.Context, c *Campaign) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, completed_at = ? WHERE id = ?`,
		string(c.Status), nullTime(c.CompletedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating campaign: %w", err)
	}
	return requireRunAffected(result, ErrCampaignNotFound)
}

// runScanner abstracts sql.Row and sql.Rows for scanRun.
type runScanner interface {
	Scan(dest ...any) error
}

// scanRun scans one run row in runColumns order.
func scanRun(s runScanner) (*Run, error) {
	var (
		run           Run
		status        string
		failureReason sql.NullString
		failureStep   sql.NullInt64
		credentialKey sql.NullString
		campaignID    sql.NullString
		createdAt     string
		startedAt     sql.NullString
		completedAt   sql.NullString
	)

	if err := s.Scan(
		&run.ID, &run.DeviceID, &run.WorkflowName, &run.Iterations, &status,
		&run.Iteration, &run.StepIndex, &failureReason, &failureStep,
		&credentialKey, &campaignID, &createdAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.FailureReason = failureReason.String
	run.FailureStep = int(failureStep.Int64)
	run.CredentialKey = credentialKey.String
	run.CampaignID = campaignID.String

	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		run.CompletedAt = &t
	}

	return &run, nil
}

// requireRunAffected translates "no row touched" into the given sentinel.
func requireRunAffected(result sql.Result, sentinel error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return sentinel
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
