package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// Assessment stream event names.
const (
	eventStage    = "progress"
	eventReport   = "report"
	eventError    = "error"
	eventComplete = "complete"
)

// heartbeatInterval keeps proxies from closing the stream while a slow stage
// (research on the advanced tier) is still generating.
const heartbeatInterval = 15 * time.Second

// assessmentStream writes one assessment run as Server-Sent Events. Stage
// events arrive from the runner while heartbeats arrive from a ticker, so
// writes are serialised. Every event carries an increasing id.
type assessmentStream struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	seq     int
	stop    chan struct{}
	done    sync.WaitGroup
}

// newAssessmentStream sends the stream headers and starts the heartbeat.
// heartbeat <= 0 disables it.
func newAssessmentStream(w http.ResponseWriter, heartbeat time.Duration) (*assessmentStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := &assessmentStream{w: w, flusher: flusher, stop: make(chan struct{})}
	if heartbeat > 0 {
		s.done.Add(1)
		go s.beat(heartbeat)
	}
	return s, nil
}

func (s *assessmentStream) beat(interval time.Duration) {
	defer s.done.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			_, err := io.WriteString(s.w, ": heartbeat\n\n")
			if err == nil {
				s.flusher.Flush()
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *assessmentStream) write(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stage forwards a runner progress event. The runner's own terminal event is
// dropped because Finish reports the outcome.
func (s *assessmentStream) Stage(e pipeline.ProgressEvent) {
	if e.Step == "complete" {
		return
	}
	_ = s.write(eventStage, e)
}

// Report sends the finished report and closes the stream.
func (s *assessmentStream) Report(rep *types.AssessmentReport) {
	_ = s.write(eventReport, rep)
	s.finish(rep.RunID, "completed")
}

// Fail sends the failure and closes the stream. Generation failures carry the
// stage that failed.
func (s *assessmentStream) Fail(runID string, err error) {
	if genErr, ok := err.(*pipeline.GenerationError); ok {
		_ = s.write(eventError, failureOf(genErr))
		runID = genErr.RunID
	} else {
		_ = s.write(eventError, map[string]string{"error": err.Error()})
	}
	s.finish(runID, "failed")
}

func (s *assessmentStream) finish(runID, status string) {
	close(s.stop)
	s.done.Wait()
	_ = s.write(eventComplete, map[string]string{"run_id": runID, "status": status})
}
