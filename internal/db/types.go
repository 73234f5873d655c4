package db

import (
	"time"

	"github.com/google/uuid"
)

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// StepStatus constants
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusFailed     = "failed"
)

// Artifact names beyond the per-stage outputs, which are stored under the stage name.
const (
	ArtifactReport     = "report"
	ArtifactReportJSON = "report_json"
	ArtifactAnswers    = "answers"
)

// Run represents an assessment run record
type Run struct {
	ID                uuid.UUID  `json:"id"`
	SessionID         string     `json:"session_id"`
	Provider          string     `json:"provider"`
	Model             string     `json:"model"`
	Status            string     `json:"status"`
	FailedStage       *string    `json:"failed_stage,omitempty"`
	RiskPercent       *int       `json:"risk_percent,omitempty"`
	ConfidencePercent *int       `json:"confidence_percent,omitempty"`
	ElapsedMs         *int64     `json:"elapsed_ms,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// RunInput holds the fields recorded when a run starts
type RunInput struct {
	SessionID string
	Provider  string
	Model     string
}

// RunStep represents a single stage execution for a run
type RunStep struct {
	ID           uuid.UUID              `json:"id"`
	RunID        uuid.UUID              `json:"run_id"`
	Step         string                 `json:"step"`
	Category     string                 `json:"category"`
	Status       string                 `json:"status"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	DurationMs   *int                   `json:"duration_ms,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// RunStepInput represents input for creating a run step
type RunStepInput struct {
	Step       string
	Category   string
	Status     string
	StartedAt  *time.Time
	Parameters map[string]interface{}
}

// ArtifactSummary is a lightweight view of an artifact for listing
type ArtifactSummary struct {
	ID        uuid.UUID `json:"id"`
	Step      string    `json:"step"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	HasJSON   bool      `json:"has_json"`
	HasText   bool      `json:"has_text"`
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	SessionID string
	Status    string
	Limit     int
}
