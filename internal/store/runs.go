package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// RunStatus is the status of one dispatcher run.
type RunStatus string

const (
	// RunRunning means the run is in flight.
	RunRunning RunStatus = "RUNNING"
	// RunCompleted means the run finished successfully.
	RunCompleted RunStatus = "COMPLETED"
	// RunFailed means the run failed.
	RunFailed RunStatus = "FAILED"
)

// Run is one dispatcher run row. Runs are the execution-side ledger linking
// a decision to what actually ran.
type Run struct {
	RunID      string
	DecisionID string
	Mode       string
	Goal       string
	Status     RunStatus
	CreatedAt  time.Time
}

// CreateRun registers a new run and returns its id.
func (s *Store) CreateRun(ctx context.Context, decisionID, mode, goal string) (string, error) {
	const op = "store.CreateRun"

	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs(run_id, decision_id, mode, goal, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, decisionID, mode, goal, string(RunRunning), formatTS(s.now()),
	)
	if err != nil {
		return "", gerrors.StoreWrap(err, op, "failed to insert run")
	}

	s.logger.Debug("run created", "run_id", runID, "decision_id", decisionID, "mode", mode)
	return runID, nil
}

// SetRunStatus updates a run's status.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status RunStatus) error {
	const op = "store.SetRunStatus"

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ? WHERE run_id = ?",
		string(status), runID,
	)
	if err != nil {
		return gerrors.StoreWrap(err, op, "failed to update run status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return gerrors.NotFound(op, fmt.Sprintf("run not found: %s", runID))
	}
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	const op = "store.GetRun"

	var (
		r          Run
		decisionID sql.NullString
		status     string
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT run_id, decision_id, mode, goal, status, created_at FROM runs WHERE run_id = ?",
		runID,
	).Scan(&r.RunID, &decisionID, &r.Mode, &r.Goal, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, gerrors.NotFound(op, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return Run{}, gerrors.StoreWrap(err, op, "failed to load run")
	}

	r.DecisionID = decisionID.String
	r.Status = RunStatus(status)
	r.CreatedAt, err = parseTS(createdAt)
	if err != nil {
		return Run{}, gerrors.StoreWrap(err, op, "failed to parse run timestamp")
	}
	return r, nil
}
