package types

import "time"

// StageResult is the output of one pipeline stage.
type StageResult struct {
	StageName  string        `json:"stage_name"`
	InputRefs  []string      `json:"input_refs"`
	OutputText string        `json:"output_text"`
	Duration   time.Duration `json:"duration_ns"`
}

// AssessmentReport is the final output of a successful assessment run.
type AssessmentReport struct {
	RunID             string              `json:"run_id,omitempty"`
	Text              string              `json:"text"`
	DisplayText       string              `json:"display_text"`
	RiskPercent       *int                `json:"risk_percent,omitempty"`
	RiskCategory      string              `json:"risk_category,omitempty"`
	ConfidencePercent *int                `json:"confidence_percent,omitempty"`
	Findings          []RiskFactorFinding `json:"findings,omitempty"`
	StageResults      []StageResult       `json:"stage_results"`
	Elapsed           time.Duration       `json:"elapsed_ns"`
}

// Evidence is one ranked passage returned by the knowledge store.
type Evidence struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}
