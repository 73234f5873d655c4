package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/config"
	"github.com/jonathan/ckd-assistant/internal/db"
	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/server/ratelimit"
	"github.com/jonathan/ckd-assistant/internal/types"
)

const cannedOutput = "Overall CKD Risk: 42% (Moderate), 80% confidence.\n\n30% - Type 2 Diabetes: present."

// fakeClient answers every stage with the same text, or fails when failing is set.
type fakeClient struct {
	mu      sync.Mutex
	failing bool
	calls   int
}

func (c *fakeClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failing {
		return "", errors.New("provider unavailable")
	}
	return cannedOutput, nil
}

func (c *fakeClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.GenerateContent(ctx, prompt, tier)
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }

func (c *fakeClient) Close() error { return nil }

type fakeStore struct{}

func (fakeStore) Search(_ context.Context, q string, k int) ([]types.Evidence, error) {
	return []types.Evidence{{Source: "kdigo.txt", Text: "about " + q, Score: 0.9}}[:min(k, 1)], nil
}

type fakeRuns struct {
	run *db.Run
}

func (f *fakeRuns) ListRuns(context.Context, db.RunFilters) ([]db.Run, error) {
	return []db.Run{*f.run}, nil
}

func (f *fakeRuns) GetRun(_ context.Context, id uuid.UUID) (*db.Run, error) {
	if id != f.run.ID {
		return nil, nil
	}
	return f.run, nil
}

func (f *fakeRuns) ListRunSteps(context.Context, uuid.UUID) ([]db.RunStep, error) {
	return []db.RunStep{{Step: "validate", Status: db.StepStatusCompleted}}, nil
}

func (f *fakeRuns) GetTextArtifact(context.Context, uuid.UUID, string) (string, error) {
	return "display report", nil
}

type testEnv struct {
	server *Server
	client *fakeClient
	http   *httptest.Server
}

func newTestEnv(t *testing.T, runs RunStore) *testEnv {
	t.Helper()
	questions := []types.Question{
		{Number: 1, Text: "Do you have Type 2 diabetes?", Hint: "yes/no/maybe", Domain: types.DomainBooleanTriState, Options: []string{"yes", "no", "maybe"}},
		{Number: 2, Text: "What is your current age?", Domain: types.DomainFreeText},
	}
	client := &fakeClient{}
	s, err := New(Config{
		Sessions:  interview.NewManager(catalog.Static{Catalog: catalog.New(questions)}, time.Hour),
		Runner:    &pipeline.Runner{Client: client, Knowledge: fakeStore{}},
		Knowledge: fakeStore{},
		Runs:      runs,
		JWT:       &config.JWTConfig{Secret: "test-secret", ExpirationHours: 1},
		RateLimit: &ratelimit.Config{Enabled: false},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: s, client: client, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (e *testEnv) createSession(t *testing.T) (id, token string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/sessions", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["session_id"].(string), body["token"].(string)
}

func (e *testEnv) completeSession(t *testing.T) (id, token string) {
	t.Helper()
	id, token = e.createSession(t)
	for _, answer := range []string{"yes", "58"} {
		resp, _ := e.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":"`+answer+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	return id, token
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["database"])
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/sessions", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["session_id"])
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "Do you have Type 2 diabetes? (yes/no/maybe)", body["prompt"])
	assert.Equal(t, string(interview.StatusAwaitingResponse), body["status"])
}

func TestSessionRoutesRequireMatchingToken(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.createSession(t)
	otherID, _ := env.createSession(t)

	resp, _ := env.do(t, http.MethodGet, "/sessions/"+id+"/prompt", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/sessions/"+otherID+"/prompt", token, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/sessions/"+id+"/prompt", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInterviewFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.createSession(t)

	resp, body := env.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "Answer")

	resp, _ = env.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":"yes"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "What is your current age?", body["prompt"])

	resp, body = env.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":"58"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["complete"])

	resp, body = env.do(t, http.MethodGet, "/sessions/"+id+"/prompt", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["complete"])

	resp, _ = env.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":"extra"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/sessions/"+id+"/answers", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answers := body["answers"].([]any)
	require.Len(t, answers, 2)
	assert.Equal(t, "yes", answers[0].(map[string]any)["answer"])

	resp, body = env.do(t, http.MethodPost, "/sessions/"+id+"/reset", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["index"])

	resp, _ = env.do(t, http.MethodDelete, "/sessions/"+id, token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/sessions/"+id+"/prompt", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssessment_IncompleteSession(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.createSession(t)

	resp, _ := env.do(t, http.MethodPost, "/sessions/"+id+"/assessment", token, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 0, env.client.callCount())
}

func TestAssessment_Report(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.completeSession(t)

	resp, body := env.do(t, http.MethodPost, "/sessions/"+id+"/assessment", token, `{"image_ref":"scan-1.png"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(42), body["risk_percent"])
	assert.Equal(t, float64(80), body["confidence_percent"])
	assert.Len(t, body["stage_results"], 5)
	assert.Equal(t, 5, env.client.callCount())
}

func TestAssessment_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.completeSession(t)
	env.client.mu.Lock()
	env.client.failing = true
	env.client.mu.Unlock()

	resp, body := env.do(t, http.MethodPost, "/sessions/"+id+"/assessment", token, "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "validate", body["stage"])
	assert.Contains(t, body["error"], "provider unavailable")
	assert.Contains(t, body, "elapsed_ms")
}

func TestAssessment_Stream(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.completeSession(t)

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/sessions/"+id+"/assessment/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, "progress", events[0])
	assert.Contains(t, events, "report")
	assert.Equal(t, "complete", events[len(events)-1])
}

func TestKnowledgeSearch(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/knowledge/search?q=diabetes&k=3", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "diabetes", body["query"])
	assert.Len(t, body["results"], 1)

	resp, _ = env.do(t, http.MethodGet, "/knowledge/search", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/knowledge/search?q=x&k=0", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/knowledge/search?q=edema&k=51", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunsRoutes(t *testing.T) {
	resp, _ := newTestEnv(t, nil).do(t, http.MethodGet, "/runs", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	run := &db.Run{ID: uuid.New(), SessionID: "s-1", Status: db.RunStatusCompleted}
	env := newTestEnv(t, &fakeRuns{run: run})

	resp, body := env.do(t, http.MethodGet, "/runs", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = env.do(t, http.MethodGet, "/runs/"+run.ID.String(), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "display report", body["report"])
	assert.Len(t, body["steps"], 1)

	resp, _ = env.do(t, http.MethodGet, "/runs/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/runs/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketInterview(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.createSession(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/sessions/" + id + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsQuestion, msg.Type)
	assert.Equal(t, "Do you have Type 2 diabetes? (yes/no/maybe)", msg.Prompt)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsAnswer, Answer: ""}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsError, msg.Type)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsQuestion, msg.Type)
	assert.Equal(t, 0, msg.Index)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsAnswer, Answer: "yes"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsQuestion, msg.Type)
	assert.Equal(t, "What is your current age?", msg.Prompt)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsAnswer, Answer: "58"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsComplete, msg.Type)
	require.Len(t, msg.Answers, 2)
	assert.Equal(t, "58", msg.Answers[1].Response)
}

func TestWebSocketInterview_OversizedMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.createSession(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/sessions/" + id + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsAnswer, Answer: strings.Repeat("a", maxMessageBytes+1)}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	assert.Error(t, conn.ReadJSON(&msg))

	snap, err := env.server.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, snap.Answers)
}

func TestOversizedBodies(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.completeSession(t)
	big := `{"image_ref":"` + strings.Repeat("x", maxBodyBytes) + `"}`

	resp, _ := env.do(t, http.MethodPost, "/sessions/"+id+"/assessment", token, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, 0, env.client.callCount())

	id, token = env.createSession(t)
	resp, _ = env.do(t, http.MethodPost, "/sessions/"+id+"/answers", token, `{"answer":"`+strings.Repeat("y", maxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRateLimit_SessionCreateTier(t *testing.T) {
	s, err := New(Config{
		Sessions:  interview.NewManager(catalog.Static{Catalog: catalog.MustLoad()}, time.Hour),
		Runner:    &pipeline.Runner{Client: &fakeClient{}},
		JWT:       &config.JWTConfig{Secret: "test-secret", ExpirationHours: 1},
		RateLimit: &ratelimit.Config{Enabled: true, Budgets: map[ratelimit.Tier]ratelimit.Budget{
			ratelimit.TierSessionCreate: {Limit: 1, Window: time.Hour},
		}},
	})
	require.NoError(t, err)

	first := httptest.NewRecorder()
	s.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "session_create", first.Header().Get("X-RateLimit-Tier"))

	second := httptest.NewRecorder()
	s.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	health := httptest.NewRecorder()
	s.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ErrValidation{Field: "answer", Message: "required"}, http.StatusBadRequest},
		{&interview.EmptyAnswerError{Question: "q"}, http.StatusBadRequest},
		{&interview.SessionNotFoundError{ID: "x"}, http.StatusNotFound},
		{&interview.InvalidStateError{Op: "submit", Status: interview.StatusComplete}, http.StatusConflict},
		{&pipeline.GenerationError{Stage: "research", Err: errors.New("boom")}, http.StatusBadGateway},
		{bodyError(&http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge},
		{bodyError(errors.New("unexpected EOF")), http.StatusBadRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "answer", Message: "required"}
	assert.Equal(t, "validation error: answer - required", err.Error())
}
