// Package mcpserver exposes the interview, knowledge search and assessment as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
)

// Server wraps the MCP SDK server and the shared interview and assessment services.
type Server struct {
	MCPServer *sdkmcp.Server

	sessions  *interview.Manager
	knowledge knowledge.Store
	runner    *pipeline.Runner
	log       *slog.Logger
}

// NewServer creates an MCP server with the CKD assistant tools registered.
func NewServer(version string, sessions *interview.Manager, store knowledge.Store, runner *pipeline.Runner) *Server {
	if store == nil {
		store = knowledge.Empty{}
	}
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "ckd-assistant", Version: version}, nil),
		sessions:  sessions,
		knowledge: store,
		runner:    runner,
		log:       logging.New("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves the tools over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "starting MCP server over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_interview",
		Description: "Start a CKD risk interview. Returns the session ID and the first question.",
	}, s.handleStartInterview)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_prompt",
		Description: "Get the pending interview question. Returns done=true when every question is answered.",
	}, s.handleGetPrompt)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "submit_answer",
		Description: "Submit the patient's answer to the pending question. Blank answers are not accepted.",
	}, s.handleSubmitAnswer)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "reset_interview",
		Description: "Discard all answers and start the interview over.",
	}, s.handleResetInterview)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "search_medical_knowledge",
		Description: "Search the indexed kidney-disease guidelines and return the most relevant passages.",
	}, s.handleSearchKnowledge)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_assessment",
		Description: "Run the five-stage CKD risk assessment on a completed interview.",
	}, s.handleRunAssessment)
}

// --- Tool input/output types ---

type sessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_interview"`
}

type interviewOutput struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question,omitempty"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
}

type getPromptOutput struct {
	Done     bool   `json:"done"`
	Question string `json:"question,omitempty"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
}

type submitAnswerInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_interview"`
	Answer    string `json:"answer" jsonschema:"the patient's verbatim answer"`
}

type submitAnswerOutput struct {
	Accepted bool   `json:"accepted"`
	Next     string `json:"next,omitempty"`
	Done     bool   `json:"done"`
	Message  string `json:"message,omitempty"`
}

type searchInput struct {
	Query string `json:"query" jsonschema:"free-text search query"`
	K     int    `json:"k,omitempty" jsonschema:"number of passages to return (default 5)"`
}

type searchOutput struct {
	Results string `json:"results"`
	Count   int    `json:"count"`
}

type assessmentInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID of a completed interview"`
	ImageRef  string `json:"image_ref,omitempty" jsonschema:"optional reference to a diagnostic image"`
}

type assessmentOutput struct {
	RunID      string `json:"run_id"`
	Report     string `json:"report"`
	Risk       *int   `json:"risk,omitempty"`
	Confidence *int   `json:"confidence,omitempty"`
	Category   string `json:"risk_category,omitempty"`
}

// --- Tool handlers ---

func promptOf(snap interview.Snapshot) string {
	if snap.Question == nil {
		return ""
	}
	return snap.Question.Prompt()
}

func (s *Server) handleStartInterview(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, interviewOutput, error) {
	snap, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, interviewOutput{}, err
	}
	return nil, interviewOutput{SessionID: snap.ID, Question: promptOf(snap), Index: snap.Index, Total: snap.Total}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, _ *sdkmcp.CallToolRequest, input sessionInput) (*sdkmcp.CallToolResult, getPromptOutput, error) {
	snap, err := s.sessions.Prompt(ctx, input.SessionID)
	if err != nil {
		return nil, getPromptOutput{}, err
	}
	return nil, getPromptOutput{
		Done:     snap.Status == interview.StatusComplete,
		Question: promptOf(snap),
		Index:    snap.Index,
		Total:    snap.Total,
	}, nil
}

func (s *Server) handleSubmitAnswer(ctx context.Context, _ *sdkmcp.CallToolRequest, input submitAnswerInput) (*sdkmcp.CallToolResult, submitAnswerOutput, error) {
	snap, err := s.sessions.Submit(ctx, input.SessionID, input.Answer)
	if err != nil {
		var empty *interview.EmptyAnswerError
		if errors.As(err, &empty) {
			return nil, submitAnswerOutput{Accepted: false, Next: promptOf(snap), Message: err.Error()}, nil
		}
		return nil, submitAnswerOutput{}, err
	}
	return nil, submitAnswerOutput{
		Accepted: true,
		Next:     promptOf(snap),
		Done:     snap.Status == interview.StatusComplete,
	}, nil
}

func (s *Server) handleResetInterview(ctx context.Context, _ *sdkmcp.CallToolRequest, input sessionInput) (*sdkmcp.CallToolResult, interviewOutput, error) {
	snap, err := s.sessions.Reset(ctx, input.SessionID)
	if err != nil {
		return nil, interviewOutput{}, err
	}
	return nil, interviewOutput{SessionID: snap.ID, Question: promptOf(snap), Index: snap.Index, Total: snap.Total}, nil
}

func (s *Server) handleSearchKnowledge(ctx context.Context, _ *sdkmcp.CallToolRequest, input searchInput) (*sdkmcp.CallToolResult, searchOutput, error) {
	if input.Query == "" {
		return nil, searchOutput{}, fmt.Errorf("query is required")
	}
	k := input.K
	if k <= 0 {
		k = knowledge.DefaultK
	}
	results, err := s.knowledge.Search(ctx, input.Query, k)
	if err != nil {
		s.log.WarnContext(ctx, "knowledge search failed", slog.String("error", err.Error()))
		return nil, searchOutput{Results: knowledge.NoEvidenceText}, nil
	}
	return nil, searchOutput{Results: knowledge.FormatResults(results), Count: len(results)}, nil
}

func (s *Server) handleRunAssessment(ctx context.Context, _ *sdkmcp.CallToolRequest, input assessmentInput) (*sdkmcp.CallToolResult, assessmentOutput, error) {
	snap, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return nil, assessmentOutput{}, err
	}
	if snap.Status != interview.StatusComplete {
		return nil, assessmentOutput{}, &interview.InvalidStateError{Op: "run assessment", Status: snap.Status}
	}

	rep, err := s.runner.Run(ctx, pipeline.Input{
		Answers:   snap.Answers,
		ImageRef:  input.ImageRef,
		SessionID: input.SessionID,
	})
	if err != nil {
		return nil, assessmentOutput{}, err
	}
	return nil, assessmentOutput{
		RunID:      rep.RunID,
		Report:     rep.DisplayText,
		Risk:       rep.RiskPercent,
		Confidence: rep.ConfidencePercent,
		Category:   rep.RiskCategory,
	}, nil
}
