// Package pipeline runs the five-stage CKD risk assessment over a completed interview.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/ckd-assistant/internal/history"
	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/pipeline/steps"
	"github.com/jonathan/ckd-assistant/internal/prompts"
	"github.com/jonathan/ckd-assistant/internal/report"
	"github.com/jonathan/ckd-assistant/internal/types"
)

const promptFile = "assessment.json"

// NoImageText is given to the diagnose stage when no image reference was supplied.
const NoImageText = "No diagnostic image was supplied."

// State is shared by the stages of one run. Stages read earlier outputs from it
// and the runner stores each stage's output after it succeeds.
type State struct {
	Answers       []types.Answer
	ImageRef      string
	PastCohort    []types.HistoricalPatientRecord
	PresentCohort []types.HistoricalPatientRecord
	Outputs       map[string]string
	Findings      *types.Findings
}

// Output returns the output of a completed stage.
func (s *State) Output(stage string) string {
	return s.Outputs[stage]
}

// Stage is one step of the assessment pipeline.
type Stage interface {
	Name() string
	Dependencies() []string
	InputRefs() []string
	Execute(ctx context.Context, s *State) (string, error)
}

// PromptStage renders a prompt template from state, sends it to the model and
// optionally post-processes the response.
type PromptStage struct {
	name      string
	key       string
	tier      llm.ModelTier
	inputRefs []string
	client    llm.Client
	inputs    func(ctx context.Context, s *State) (map[string]string, error)
	after     func(s *State, out string) string
}

// Name returns the stage name.
func (p *PromptStage) Name() string { return p.name }

// Dependencies returns the stages whose outputs this stage consumes.
func (p *PromptStage) Dependencies() []string {
	return steps.StepRegistry[p.name].Dependencies
}

// InputRefs names every input the stage reads, including non-stage inputs.
func (p *PromptStage) InputRefs() []string { return p.inputRefs }

// Execute renders the prompt and generates the stage output.
func (p *PromptStage) Execute(ctx context.Context, s *State) (string, error) {
	data, err := p.inputs(ctx, s)
	if err != nil {
		return "", fmt.Errorf("failed to build %s inputs: %w", p.name, err)
	}
	prompt, err := prompts.Render(promptFile, p.key, data)
	if err != nil {
		return "", err
	}

	out, err := p.client.GenerateContent(ctx, prompt, p.tier)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("model returned empty output")
	}
	if p.after != nil {
		out = p.after(s, out)
	}
	return out, nil
}

// NewValidateStage organizes the raw answers and flags missing or ambiguous ones.
func NewValidateStage(client llm.Client) *PromptStage {
	return &PromptStage{
		name:      steps.StepValidate,
		key:       "validate",
		tier:      llm.TierLite,
		inputRefs: []string{"answers"},
		client:    client,
		inputs: func(_ context.Context, s *State) (map[string]string, error) {
			answers, err := answersJSON(s.Answers)
			if err != nil {
				return nil, err
			}
			return map[string]string{"Answers": answers}, nil
		},
	}
}

// NewDiagnoseStage looks for clinical patterns in the validated answers and the optional image.
func NewDiagnoseStage(client llm.Client) *PromptStage {
	return &PromptStage{
		name:      steps.StepDiagnose,
		key:       "diagnose",
		tier:      llm.TierStandard,
		inputRefs: []string{steps.StepValidate, "image"},
		client:    client,
		inputs: func(_ context.Context, s *State) (map[string]string, error) {
			image := strings.TrimSpace(s.ImageRef)
			if image == "" {
				image = NoImageText
			}
			return map[string]string{
				"Validated": s.Output(steps.StepValidate),
				"Image":     image,
			}, nil
		},
	}
}

// NewResearchStage scores risk factors against guideline evidence and the
// historical cohorts. The structured findings it emits are checked against the
// answers before later stages see them.
func NewResearchStage(client llm.Client, store knowledge.Store, k int) *PromptStage {
	return &PromptStage{
		name:      steps.StepResearch,
		key:       "research",
		tier:      llm.TierAdvanced,
		inputRefs: []string{steps.StepValidate, steps.StepDiagnose, "knowledge", "history"},
		client:    client,
		inputs: func(ctx context.Context, s *State) (map[string]string, error) {
			evidence := knowledge.ErrorTolerantSearch(ctx, store, EvidenceQuery(s.Answers), k)
			return map[string]string{
				"PastCohort":    history.FormatCohort(s.PastCohort),
				"PresentCohort": history.FormatCohort(s.PresentCohort),
				"Validated":     s.Output(steps.StepValidate),
				"Diagnosis":     s.Output(steps.StepDiagnose),
				"Evidence":      evidence,
			}, nil
		},
		after: func(s *State, out string) string {
			findings, ok := ParseFindings(out)
			if !ok {
				return out
			}
			findings.Findings = EnforceAnsweredFactors(findings.Findings, s.Answers)
			s.Findings = findings
			block, err := json.MarshalIndent(findings, "", "  ")
			if err != nil {
				return out
			}
			return out + "\n\nVerified findings:\n```json\n" + string(block) + "\n```"
		},
	}
}

// NewCritiqueStage reviews the research output and guarantees a confidence token.
func NewCritiqueStage(client llm.Client) *PromptStage {
	return &PromptStage{
		name:      steps.StepCritique,
		key:       "critique",
		tier:      llm.TierStandard,
		inputRefs: []string{steps.StepResearch},
		client:    client,
		inputs: func(_ context.Context, s *State) (map[string]string, error) {
			return map[string]string{"Research": s.Output(steps.StepResearch)}, nil
		},
		after: func(s *State, out string) string {
			if _, ok := report.ExtractConfidence(out); ok {
				return out
			}
			return out + "\n\nConfidence: " + researchConfidence(s)
		},
	}
}

// NewPresentStage writes the patient-facing report.
func NewPresentStage(client llm.Client) *PromptStage {
	return &PromptStage{
		name:      steps.StepPresent,
		key:       "present",
		tier:      llm.TierStandard,
		inputRefs: []string{steps.StepCritique, "answers"},
		client:    client,
		inputs: func(_ context.Context, s *State) (map[string]string, error) {
			answers, err := answersJSON(s.Answers)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"Critique": s.Output(steps.StepCritique),
				"Answers":  answers,
			}, nil
		},
	}
}

// researchConfidence renders the research confidence as an "N% confidence" token or N/A.
func researchConfidence(s *State) string {
	if s.Findings != nil && s.Findings.ConfidencePercent != nil {
		return fmt.Sprintf("%d%% confidence", *s.Findings.ConfidencePercent)
	}
	if v, ok := report.ExtractConfidence(s.Output(steps.StepResearch)); ok {
		return fmt.Sprintf("%d%% confidence", v)
	}
	return report.NA
}

func answersJSON(answers []types.Answer) (string, error) {
	if len(answers) == 0 {
		return "[]", nil
	}
	data, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(data), nil
}
