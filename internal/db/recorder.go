package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/pipeline/steps"
	"github.com/jonathan/ckd-assistant/internal/types"
)

var _ pipeline.Recorder = (*DB)(nil)

// StartRun creates a running assessment record.
func (db *DB) StartRun(ctx context.Context, info pipeline.RunInfo) (string, error) {
	id, err := db.CreateRun(ctx, RunInput{SessionID: info.SessionID, Provider: info.Provider, Model: info.Model})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RecordStage stores a finished stage as a completed step plus its output text.
func (db *DB) RecordStage(ctx context.Context, runID string, result types.StageResult) error {
	id, err := parseRunID(runID)
	if err != nil {
		return err
	}
	started := time.Now().Add(-result.Duration)
	category := steps.CategoryOf(result.StageName)
	_, err = db.CreateRunStep(ctx, id, &RunStepInput{
		Step:       result.StageName,
		Category:   category,
		Status:     StepStatusInProgress,
		StartedAt:  &started,
		Parameters: map[string]interface{}{"input_refs": result.InputRefs},
	})
	if err != nil {
		return err
	}
	if err := db.UpdateRunStepStatus(ctx, id, result.StageName, StepStatusCompleted, nil); err != nil {
		return err
	}
	return db.SaveTextArtifact(ctx, id, result.StageName, category, result.OutputText)
}

// CompleteRun stores the final report and marks the run completed.
func (db *DB) CompleteRun(ctx context.Context, runID string, rep *types.AssessmentReport) error {
	id, err := parseRunID(runID)
	if err != nil {
		return err
	}
	if err := db.SaveTextArtifact(ctx, id, ArtifactReport, steps.CategoryPresentation, rep.DisplayText); err != nil {
		return err
	}
	if err := db.SaveArtifact(ctx, id, ArtifactReportJSON, steps.CategoryPresentation, rep); err != nil {
		return err
	}
	return db.CompleteRunScores(ctx, id, rep.RiskPercent, rep.ConfidencePercent, rep.Elapsed)
}

// FailRun marks the failing stage and the run as failed.
func (db *DB) FailRun(ctx context.Context, runID string, genErr *pipeline.GenerationError) error {
	id, err := parseRunID(runID)
	if err != nil {
		return err
	}
	msg := genErr.Err.Error()
	if genErr.Stage != "" {
		_, err := db.CreateRunStep(ctx, id, &RunStepInput{
			Step:     genErr.Stage,
			Category: steps.CategoryOf(genErr.Stage),
			Status:   StepStatusInProgress,
		})
		if err != nil {
			return err
		}
		if err := db.UpdateRunStepStatus(ctx, id, genErr.Stage, StepStatusFailed, &msg); err != nil {
			return err
		}
	}
	return db.MarkRunFailed(ctx, id, genErr.Stage, msg, genErr.Elapsed)
}

func parseRunID(runID string) (uuid.UUID, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	return id, nil
}
