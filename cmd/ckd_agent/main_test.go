package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/config"
	"github.com/jonathan/ckd-assistant/internal/export"
	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// captureStdout redirects command output into a buffer for the test's duration.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func globalFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&providerFlag, "provider", "", "")
	cmd.Flags().StringVar(&modelFlag, "model", "", "")
	return cmd
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "interview", "assess", "index", "search", "scenario", "aggregate", "mcp"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestResolveConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := resolveConfig(globalFlagsCommand(), "")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestResolveConfig_FileAndFlagOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: gemini\nretrieval_k: 3\nstage_timeout: 30s\n"), 0o644))

	cmd := globalFlagsCommand()
	require.NoError(t, cmd.Flags().Set("provider", "openai"))
	require.NoError(t, cmd.Flags().Set("model", "gpt-4o"))

	cfg, err := resolveConfig(cmd, path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 3, cfg.RetrievalK)
	assert.Equal(t, "30s", cfg.StageTimeout.Std().String())
	assert.Equal(t, "postgres://env", cfg.DatabaseURL)
	assert.Equal(t, config.Defaults().HistoryDir, cfg.HistoryDir)
}

func TestResolveConfig_InvalidProvider(t *testing.T) {
	cmd := globalFlagsCommand()
	require.NoError(t, cmd.Flags().Set("provider", "llamafile"))

	_, err := resolveConfig(cmd, "")
	assert.Error(t, err)
}

func TestModelConfig(t *testing.T) {
	mc, err := modelConfig(config.Config{Provider: "openai", Models: map[string]string{"lite": "gpt-4.1-nano"}})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, mc.Provider)
	assert.Equal(t, "gpt-4.1-nano", mc.GetModel(llm.TierLite))
	assert.Equal(t, "gpt-4o", mc.GetModel(llm.TierStandard))

	mc, err = modelConfig(config.Config{Provider: "gemini", Model: "gemini-2.5-flash"})
	require.NoError(t, err)
	for _, tier := range []llm.ModelTier{llm.TierLite, llm.TierStandard, llm.TierAdvanced} {
		assert.Equal(t, "gemini-2.5-flash", mc.GetModel(tier))
	}

	_, err = modelConfig(config.Config{Provider: "unknown"})
	assert.Error(t, err)
}

func TestEmbeddingProvider(t *testing.T) {
	assert.Equal(t, llm.ProviderGemini, embeddingProvider(llm.ProviderGroq))
	assert.Equal(t, llm.ProviderOpenAI, embeddingProvider(llm.ProviderOpenAI))
	assert.Equal(t, llm.ProviderGemini, embeddingProvider(llm.ProviderGemini))
}

func TestCatalogSource(t *testing.T) {
	src, err := newApp(config.Defaults()).catalogSource()
	require.NoError(t, err)
	c, err := src.Current()
	require.NoError(t, err)
	assert.Greater(t, c.Len(), 0)

	path := filepath.Join(t.TempDir(), "questions.txt")
	require.NoError(t, os.WriteFile(path, []byte("1. What is your age?\n2. Do you smoke? (yes/no)\n"), 0o644))
	src, err = newApp(config.Config{QuestionsFile: path}).catalogSource()
	require.NoError(t, err)
	assert.IsType(t, catalog.FileSource{}, src)
	c, err = src.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = newApp(config.Config{QuestionsFile: filepath.Join(t.TempDir(), "missing.txt")}).catalogSource()
	assert.Error(t, err)
}

func TestRunner_NoDatabaseLeavesRecorderUnset(t *testing.T) {
	r := newApp(config.Defaults()).runner(nil)
	assert.Nil(t, r.Recorder)
	assert.Equal(t, config.Defaults().RetrievalK, r.K)
	assert.NotNil(t, r.History)
}

func twoQuestionSession() *interview.Session {
	return interview.NewSession("s1", catalog.New([]types.Question{
		{Number: 1, Text: "What is your age?"},
		{Number: 2, Text: "Do you have diabetes?", Hint: "yes/no"},
	}))
}

func TestCollectAnswers(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("58\n\nyes\n")

	answers, err := collectAnswers(in, &out, twoQuestionSession(), newPalette(&out))
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "58", answers[0].Response)
	assert.Equal(t, "yes", answers[1].Response)
	assert.Contains(t, out.String(), "Question 1/2: What is your age?")
	assert.Contains(t, out.String(), "(yes/no)")
	assert.Contains(t, out.String(), "Please provide an answer.")
}

func TestCollectAnswers_Reset(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("40\n/reset\n61\nno\n")

	answers, err := collectAnswers(in, &out, twoQuestionSession(), newPalette(&out))
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "61", answers[0].Response)
	assert.Contains(t, out.String(), "Interview restarted.")
}

func TestCollectAnswers_QuitAndEOF(t *testing.T) {
	var out bytes.Buffer

	_, err := collectAnswers(strings.NewReader("58\n/quit\n"), &out, twoQuestionSession(), newPalette(&out))
	assert.True(t, errors.Is(err, errInterviewAborted))

	_, err = collectAnswers(strings.NewReader("58\n"), &out, twoQuestionSession(), newPalette(&out))
	assert.True(t, errors.Is(err, errInterviewAborted))
}

func TestNewPalette_NoColorForBuffers(t *testing.T) {
	var out bytes.Buffer
	pal := newPalette(&out)
	_, _ = pal.question.Fprint(&out, "plain")
	assert.Equal(t, "plain", out.String())
}

func TestLoadAnswers(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "answers.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"question": "What is your current age?", "answer": "58"},
		{"question": "Do you have Type 2 diabetes?", "answer": "yes"}
	]`), 0o644))

	answers, err := loadAnswers(good)
	require.NoError(t, err)
	assert.Equal(t, []types.Answer{
		{Question: "What is your current age?", Response: "58"},
		{Question: "Do you have Type 2 diabetes?", Response: "yes"},
	}, answers)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"question": "Age?"}]`), 0o644))
	_, err = loadAnswers(bad)
	assert.Error(t, err)

	_, err = loadAnswers(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	risk := 42
	rep := &types.AssessmentReport{
		DisplayText:  "**Assessment Summary:** moderate risk",
		RiskPercent:  &risk,
		RiskCategory: "Moderate",
		StageResults: []types.StageResult{{StageName: "validate", OutputText: "validated"}},
	}

	printReport(&out, rep, false)
	assert.Contains(t, out.String(), "**Assessment Summary:** moderate risk")
	assert.NotContains(t, out.String(), "validated")

	out.Reset()
	printReport(&out, rep, true)
	assert.Contains(t, out.String(), "validated")
}

func TestPrintEvidence(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printEvidence(&out, nil, false))
	assert.Contains(t, out.String(), knowledge.NoResultsText)

	out.Reset()
	results := []types.Evidence{{Source: "kdigo.txt", Text: "Diabetes is the leading cause of CKD.", Score: 0.91}}
	require.NoError(t, printEvidence(&out, results, false))
	assert.Contains(t, out.String(), "Source 1 (kdigo.txt, score 0.910)")

	out.Reset()
	require.NoError(t, printEvidence(&out, results, true))
	assert.Contains(t, out.String(), `"source": "kdigo.txt"`)
}

func TestFetchDocuments(t *testing.T) {
	out := captureStdout(t)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>CKD Staging</title></head>
			<body><main><p>eGFR below 60 for three months indicates CKD.</p></main></body></html>`))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	docs := fetchDocuments(context.Background(), []string{good.URL, bad.URL}, false)
	require.Len(t, docs, 1)
	assert.Equal(t, good.URL, docs[0].Source)
	assert.Equal(t, "CKD Staging", docs[0].Title)
	assert.Contains(t, docs[0].Text, "eGFR below 60")
	assert.Contains(t, out.String(), "Skipping "+bad.URL)
}

func TestDiscoverGuidelines_RequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SEARCH_API_KEY", "")
	t.Setenv("GOOGLE_SEARCH_CX", "")

	_, err := discoverGuidelines(context.Background(), []string{"KDIGO"})
	assert.Error(t, err)
}

func TestExportSink(t *testing.T) {
	cfg := config.Config{ExportDir: t.TempDir()}

	sink, err := exportSink(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, export.DirSink{Dir: cfg.ExportDir}, sink)

	t.Setenv("S3_ENDPOINT", "")
	_, err = exportSink(cfg, true)
	assert.Error(t, err)

	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")
	t.Setenv("S3_BUCKET", "ckd-exports")
	sink, err = exportSink(cfg, true)
	require.NoError(t, err)
	assert.IsType(t, &export.S3Sink{}, sink)
}

func TestRunAggregate(t *testing.T) {
	out := captureStdout(t)
	path := filepath.Join(t.TempDir(), "batch_risk_scores.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"simulation,risk_score,confidence_percentage\n1,40,80\n2,N/A,70\n3,60,90\n"), 0o644))

	aggregateInput, aggregateMarkdown = path, true
	t.Cleanup(func() { aggregateInput, aggregateMarkdown = "", false })

	require.NoError(t, runAggregate(nil, nil))
	assert.Contains(t, out.String(), "| mean")
	assert.Contains(t, out.String(), "50.00")
	assert.Contains(t, out.String(), "80.00")
}

func TestRunAggregate_MissingFile(t *testing.T) {
	aggregateInput = filepath.Join(t.TempDir(), "missing.csv")
	t.Cleanup(func() { aggregateInput = "" })

	assert.Error(t, runAggregate(nil, nil))
}
