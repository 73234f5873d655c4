package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runStepColumns = `id, run_id, step, category, status, started_at, completed_at,
	duration_ms, error_message, parameters, created_at, updated_at`

func scanRunStep(row pgx.Row) (*RunStep, error) {
	var step RunStep
	var paramsJSON []byte
	err := row.Scan(&step.ID, &step.RunID, &step.Step, &step.Category, &step.Status,
		&step.StartedAt, &step.CompletedAt, &step.DurationMs, &step.ErrorMessage,
		&paramsJSON, &step.CreatedAt, &step.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &step.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
		}
	}
	return &step, nil
}

// CreateRunStep creates or replaces the step record for a stage of a run
func (db *DB) CreateRunStep(ctx context.Context, runID uuid.UUID, input *RunStepInput) (*RunStep, error) {
	var paramsJSON []byte
	if input.Parameters != nil {
		var err error
		paramsJSON, err = json.Marshal(input.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameters: %w", err)
		}
	}

	status := input.Status
	if status == "" {
		status = StepStatusPending
	}

	startedAt := input.StartedAt
	if startedAt == nil && status == StepStatusInProgress {
		now := time.Now()
		startedAt = &now
	}

	step, err := scanRunStep(db.pool.QueryRow(ctx,
		`INSERT INTO run_steps (run_id, step, category, status, started_at, parameters)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id, step) DO UPDATE SET
		   category = EXCLUDED.category,
		   status = EXCLUDED.status,
		   started_at = EXCLUDED.started_at,
		   parameters = EXCLUDED.parameters,
		   updated_at = NOW()
		 RETURNING `+runStepColumns,
		runID, input.Step, input.Category, status, startedAt, paramsJSON,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create run step: %w", err)
	}
	return step, nil
}

// GetRunStep retrieves a run step by run ID and step name
func (db *DB) GetRunStep(ctx context.Context, runID uuid.UUID, step string) (*RunStep, error) {
	rs, err := scanRunStep(db.pool.QueryRow(ctx,
		`SELECT `+runStepColumns+` FROM run_steps WHERE run_id = $1 AND step = $2`,
		runID, step,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run step: %w", err)
	}
	return rs, nil
}

// ListRunSteps retrieves all steps for a run in execution order
func (db *DB) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]RunStep, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runStepColumns+` FROM run_steps WHERE run_id = $1 ORDER BY started_at ASC NULLS LAST, created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		step, err := scanRunStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// UpdateRunStepStatus updates the status of a run step. Terminal states set
// completed_at and compute duration_ms from started_at.
func (db *DB) UpdateRunStepStatus(ctx context.Context, runID uuid.UUID, step, status string, errorMsg *string) error {
	var startedAt *time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT started_at FROM run_steps WHERE run_id = $1 AND step = $2`,
		runID, step,
	).Scan(&startedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("run step not found: %s", step)
		}
		return fmt.Errorf("failed to get run step: %w", err)
	}

	now := time.Now()
	var completedAt *time.Time
	var durationMs *int

	if status == StepStatusCompleted || status == StepStatusFailed {
		completedAt = &now
		if startedAt != nil {
			duration := int(now.Sub(*startedAt).Milliseconds())
			durationMs = &duration
		}
	}

	if status == StepStatusInProgress && startedAt == nil {
		startedAt = &now
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE run_steps
		 SET status = $1, started_at = $2, completed_at = $3, duration_ms = $4,
		     error_message = $5, updated_at = NOW()
		 WHERE run_id = $6 AND step = $7`,
		status, startedAt, completedAt, durationMs, errorMsg, runID, step,
	)
	if err != nil {
		return fmt.Errorf("failed to update run step status: %w", err)
	}
	return nil
}
