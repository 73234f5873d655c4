package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ckd-assistant/internal/types"
)

var fixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleRun() RunResult {
	return RunResult{
		Scenario:         "58-year-old male with diabetes",
		SimulationNumber: 1,
		StartedAt:        fixedTime,
		Elapsed:          12340 * time.Millisecond,
		Provider:         "groq",
		Model:            "llama-3.3-70b-versatile",
		Answers: []types.Answer{
			{Question: "What is your gender?", Response: "male"},
			{Question: strings.Repeat("q", 70), Response: strings.Repeat("a", 45)},
		},
		Report: &types.AssessmentReport{Text: "Overall risk 45% with 70% confidence.\n30% - Diabetes: present."},
	}
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "58_year_old_male_diabetic_hypertensive", CleanFilename("58-year-old male, diabetic & hypertensive!"))
	assert.Equal(t, "a", CleanFilename("  a  "))
	long := CleanFilename(strings.Repeat("word ", 20))
	assert.LessOrEqual(t, len(long), 50)
	assert.False(t, strings.HasSuffix(long, "_"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "ckd_assessment_young_adult_20250314_092653.md", FileName("young adult", fixedTime))
	assert.Equal(t, "ckd_assessment_young_adult_sim3_20250314_092653.md",
		RunFileName(RunResult{Scenario: "young adult", SimulationNumber: 3}, fixedTime))
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleRun())

	assert.True(t, strings.HasPrefix(md, "# CKD Assessment Report\n"))
	assert.Contains(t, md, "**Patient Description:** 58-year-old male with diabetes")
	assert.Contains(t, md, "**Processing Time:** 12.34 seconds")
	assert.Contains(t, md, "- **LLM Provider:** groq")
	assert.Contains(t, md, "- **Total Agents:** 5")
	assert.Contains(t, md, "| What is your gender? | male |")
	assert.Contains(t, md, "| "+strings.Repeat("q", 60)+"... | "+strings.Repeat("a", 40)+"... |")
	assert.Contains(t, md, "## Assessment Results\n\nOverall risk 45%")
	assert.Contains(t, md, "*Report generated by CKD Assessment Testing Script*")
}

func TestRenderMarkdown_Error(t *testing.T) {
	r := sampleRun()
	r.Report = nil
	r.Err = errors.New("assessment failed at stage research")

	md := RenderMarkdown(r)
	assert.True(t, strings.HasPrefix(md, "# CKD Assessment Report - ERROR\n"))
	assert.Contains(t, md, "## Error Details\n```\nassessment failed at stage research\n```")
	assert.NotContains(t, md, "## Configuration")
}

func TestExportRun_DirSink(t *testing.T) {
	dir := t.TempDir()
	sink := DirSink{Dir: dir}

	names, err := ExportRun(context.Background(), sink, sampleRun(), Options{HTML: true, Now: func() time.Time { return fixedTime }})
	require.NoError(t, err)
	require.Len(t, names, 2)

	md, err := os.ReadFile(sink.Path(names[0]))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# CKD Assessment Report")

	html, err := os.ReadFile(filepath.Join(dir, names[1]))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<table>")
}

func TestDirSink_RejectsPaths(t *testing.T) {
	err := DirSink{Dir: t.TempDir()}.Put(context.Background(), "../escape.md", []byte("x"))
	assert.Error(t, err)
}

func TestNewS3Sink_Validation(t *testing.T) {
	_, err := NewS3Sink(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Sink(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	s, err := NewS3Sink(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "reports"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
}
