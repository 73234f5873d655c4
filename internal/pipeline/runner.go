package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/history"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/pipeline/steps"
	"github.com/jonathan/ckd-assistant/internal/report"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// DefaultStageTimeout bounds a single stage's model call.
const DefaultStageTimeout = 2 * time.Minute

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// HistorySource supplies the calibration cohorts.
type HistorySource interface {
	LoadCohorts(ctx context.Context) (past, present []types.HistoricalPatientRecord, err error)
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	SessionID string
	Provider  string
	Model     string
}

// Recorder receives the lifecycle of a run. Recording failures never fail the run.
type Recorder interface {
	StartRun(ctx context.Context, info RunInfo) (string, error)
	RecordStage(ctx context.Context, runID string, result types.StageResult) error
	CompleteRun(ctx context.Context, runID string, rep *types.AssessmentReport) error
	FailRun(ctx context.Context, runID string, genErr *GenerationError) error
}

// NopRecorder only assigns run ids.
type NopRecorder struct{}

// StartRun returns a fresh run id.
func (NopRecorder) StartRun(context.Context, RunInfo) (string, error) {
	return uuid.New().String(), nil
}

// RecordStage does nothing.
func (NopRecorder) RecordStage(context.Context, string, types.StageResult) error { return nil }

// CompleteRun does nothing.
func (NopRecorder) CompleteRun(context.Context, string, *types.AssessmentReport) error { return nil }

// FailRun does nothing.
func (NopRecorder) FailRun(context.Context, string, *GenerationError) error { return nil }

// GenerationError reports a stage that failed or timed out. No partial report is produced.
type GenerationError struct {
	RunID   string
	Stage   string
	Elapsed time.Duration
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("assessment failed at stage %s after %s: %v", e.Stage, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Input is one assessment request.
type Input struct {
	Answers   []types.Answer
	ImageRef  string
	SessionID string
}

// Runner executes the stages in order against one model client.
type Runner struct {
	Client       llm.Client
	Knowledge    knowledge.Store
	History      HistorySource
	Provider     string
	K            int
	StageTimeout time.Duration
	Recorder     Recorder
	OnProgress   ProgressCallback
	// Out receives "Stage N/5" progress lines when set.
	Out io.Writer
}

// WithProgress returns a copy of the runner that reports progress to cb.
func (r *Runner) WithProgress(cb ProgressCallback) *Runner {
	c := *r
	c.OnProgress = cb
	return &c
}

// Stages returns the pipeline stages in execution order.
func (r *Runner) Stages() []Stage {
	store := r.Knowledge
	if store == nil {
		store = knowledge.Empty{}
	}
	return []Stage{
		NewValidateStage(r.Client),
		NewDiagnoseStage(r.Client),
		NewResearchStage(r.Client, store, r.K),
		NewCritiqueStage(r.Client),
		NewPresentStage(r.Client),
	}
}

// Run assesses one completed answer set. Any stage failure aborts the run with a
// *GenerationError.
func (r *Runner) Run(ctx context.Context, in Input) (*types.AssessmentReport, error) {
	return r.RunStages(ctx, in, r.Stages())
}

// RunStages executes the given stages in order.
func (r *Runner) RunStages(ctx context.Context, in Input, stages []Stage) (*types.AssessmentReport, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("pipeline requires an LLM client")
	}
	start := time.Now()
	recorder := r.recorder()

	state := &State{
		Answers:  in.Answers,
		ImageRef: in.ImageRef,
		Outputs:  make(map[string]string, len(stages)),
	}
	state.PastCohort, state.PresentCohort = r.loadCohorts(ctx)

	runID, err := recorder.StartRun(ctx, RunInfo{
		SessionID: in.SessionID,
		Provider:  r.Provider,
		Model:     r.Client.GetModel(llm.TierAdvanced),
	})
	if err != nil {
		logging.New("pipeline").WarnContext(ctx, "failed to record run start", slog.String("error", err.Error()))
		runID = uuid.New().String()
	}
	ctx = logging.WithAttrs(ctx, slog.String("run_id", runID))
	logger := logging.New("pipeline")

	completed := make(map[string]bool, len(stages))
	results := make([]types.StageResult, 0, len(stages))

	for i, stage := range stages {
		name := stage.Name()
		if err := steps.ValidateDependencies(name, completed); err != nil {
			return nil, r.fail(ctx, recorder, runID, name, start, err)
		}

		if r.Out != nil {
			_, _ = fmt.Fprintf(r.Out, "Stage %d/%d: %s...\n", i+1, len(stages), name)
		}
		r.emit(runID, name, fmt.Sprintf("Starting %s", name), nil)

		stageStart := time.Now()
		out, err := r.execute(ctx, stage, state)
		if err != nil {
			logger.ErrorContext(ctx, "stage failed", slog.String("stage", name), slog.String("error", err.Error()))
			return nil, r.fail(ctx, recorder, runID, name, start, err)
		}

		state.Outputs[name] = out
		completed[name] = true
		result := types.StageResult{
			StageName:  name,
			InputRefs:  stage.InputRefs(),
			OutputText: out,
			Duration:   time.Since(stageStart),
		}
		results = append(results, result)
		if err := recorder.RecordStage(ctx, runID, result); err != nil {
			logger.WarnContext(ctx, "failed to record stage", slog.String("stage", name), slog.String("error", err.Error()))
		}
		logger.InfoContext(ctx, "stage completed", slog.String("stage", name), slog.Duration("duration", result.Duration))
		r.emit(runID, name, fmt.Sprintf("Completed %s in %s", name, result.Duration.Round(time.Millisecond)), nil)
	}

	rep := BuildReport(state, results)
	rep.RunID = runID
	rep.Elapsed = time.Since(start)

	if err := recorder.CompleteRun(ctx, runID, rep); err != nil {
		logger.WarnContext(ctx, "failed to record run completion", slog.String("error", err.Error()))
	}
	r.emit(runID, "complete", "Assessment complete", rep)
	return rep, nil
}

func (r *Runner) execute(ctx context.Context, stage Stage, state *State) (string, error) {
	timeout := r.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := stage.Execute(stageCtx, state)
	if err != nil {
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("stage timed out after %s: %w", timeout, err)
		}
		return "", err
	}
	return out, nil
}

func (r *Runner) fail(ctx context.Context, recorder Recorder, runID, stage string, start time.Time, err error) error {
	genErr := &GenerationError{RunID: runID, Stage: stage, Elapsed: time.Since(start), Err: err}
	if recErr := recorder.FailRun(ctx, runID, genErr); recErr != nil {
		logging.New("pipeline").WarnContext(ctx, "failed to record run failure", slog.String("error", recErr.Error()))
	}
	r.emit(runID, stage, genErr.Error(), nil)
	return genErr
}

func (r *Runner) loadCohorts(ctx context.Context) (past, present []types.HistoricalPatientRecord) {
	if r.History == nil {
		return nil, nil
	}
	past, present, err := r.History.LoadCohorts(ctx)
	if err != nil {
		logging.New("pipeline").WarnContext(ctx, "continuing without historical calibration", slog.String("error", err.Error()))
		return nil, nil
	}
	return history.Split(history.Join(past, present))
}

func (r *Runner) recorder() Recorder {
	if r.Recorder == nil {
		return NopRecorder{}
	}
	return r.Recorder
}

// emit calls the progress callback if configured
func (r *Runner) emit(runID, step, message string, content any) {
	if r.OnProgress != nil {
		r.OnProgress(ProgressEvent{
			Step:     step,
			Category: steps.CategoryOf(step),
			Message:  message,
			RunID:    runID,
			Content:  content,
		})
	}
}

// BuildReport assembles the final report from the present stage output.
// Values that cannot be extracted stay nil.
func BuildReport(state *State, results []types.StageResult) *types.AssessmentReport {
	text := state.Output(steps.StepPresent)
	rep := &types.AssessmentReport{
		Text:         text,
		DisplayText:  report.FormatForDisplay(text),
		StageResults: results,
	}

	if v, ok := report.ExtractRiskScore(text); ok {
		rep.RiskPercent = &v
	} else if state.Findings != nil && state.Findings.OverallRiskPercent != nil {
		v := *state.Findings.OverallRiskPercent
		rep.RiskPercent = &v
	}
	if rep.RiskPercent != nil {
		rep.RiskCategory = report.RiskCategoryFor(*rep.RiskPercent)
	}

	if v, ok := report.ExtractConfidence(text); ok {
		rep.ConfidencePercent = &v
	} else if v, ok := report.ExtractConfidence(state.Output(steps.StepCritique)); ok {
		rep.ConfidencePercent = &v
	}

	var findings []types.RiskFactorFinding
	if state.Findings != nil {
		findings = state.Findings.Findings
	} else {
		for _, fp := range report.ExtractRiskFactors(text) {
			findings = append(findings, types.RiskFactorFinding{
				Factor:   fp.Factor,
				Presence: types.PresencePresent,
				Percent:  fp.Percent,
			})
		}
		findings = EnforceAnsweredFactors(findings, state.Answers)
	}
	rep.Findings = report.ApplyImpact(findings)
	return rep
}
