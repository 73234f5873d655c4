package server

import (
	"errors"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/types"
)

type streamEvent struct {
	id   int
	name string
	data string
}

func parseStream(t *testing.T, body string) (events []streamEvent, heartbeats int) {
	t.Helper()
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if block == ": heartbeat" {
			heartbeats++
			continue
		}
		var e streamEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "id: "):
				id, err := strconv.Atoi(strings.TrimPrefix(line, "id: "))
				require.NoError(t, err)
				e.id = id
			case strings.HasPrefix(line, "event: "):
				e.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				e.data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, e)
	}
	return events, heartbeats
}

func TestAssessmentStream_ReportSequence(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := newAssessmentStream(rec, -1)
	require.NoError(t, err)

	stream.Stage(pipeline.ProgressEvent{Step: "research", RunID: "run-1"})
	stream.Stage(pipeline.ProgressEvent{Step: "critique", RunID: "run-1"})
	stream.Stage(pipeline.ProgressEvent{Step: "complete", RunID: "run-1"})
	stream.Report(&types.AssessmentReport{RunID: "run-1"})

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	events, heartbeats := parseStream(t, rec.Body.String())
	assert.Zero(t, heartbeats)

	var names []string
	for i, e := range events {
		names = append(names, e.name)
		assert.Equal(t, i+1, e.id, "ids increase by one per event")
	}
	assert.Equal(t, []string{"progress", "progress", "report", "complete"}, names)
	assert.Contains(t, events[3].data, `"status":"completed"`)
	assert.Contains(t, events[3].data, `"run_id":"run-1"`)
}

func TestAssessmentStream_FailureCarriesStage(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := newAssessmentStream(rec, -1)
	require.NoError(t, err)

	stream.Fail("", &pipeline.GenerationError{
		RunID:   "run-2",
		Stage:   "critique",
		Elapsed: 1500 * time.Millisecond,
		Err:     errors.New("model unavailable"),
	})

	events, _ := parseStream(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[0].name)
	assert.Contains(t, events[0].data, `"stage":"critique"`)
	assert.Equal(t, "complete", events[1].name)
	assert.Contains(t, events[1].data, `"run_id":"run-2"`)
	assert.Contains(t, events[1].data, `"status":"failed"`)
}

func TestAssessmentStream_Heartbeat(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := newAssessmentStream(rec, 5*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	stream.Fail("run-3", errors.New("cancelled"))

	events, heartbeats := parseStream(t, rec.Body.String())
	assert.Positive(t, heartbeats)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].id)
	assert.Equal(t, "complete", events[1].name)

	body := rec.Body.String()
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.NotContains(t, body[strings.LastIndex(body, "event: complete"):], "heartbeat", "no heartbeat after completion")
}
