package scenario

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/ckd-assistant/internal/export"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// Assessor runs the assessment pipeline.
type Assessor interface {
	Run(ctx context.Context, in pipeline.Input) (*types.AssessmentReport, error)
}

// Outcome is the result of all simulations of one scenario.
type Outcome struct {
	Scenario Scenario
	Results  []export.RunResult
	Files    export.AggregateFiles
}

// Failed counts the simulations that produced no report.
func (o Outcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Batch runs simulations for many scenarios and exports every run.
type Batch struct {
	Generator    *Generator
	Assessor     Assessor
	Sink         export.Sink
	ResponseType string
	Concurrency  int
	Provider     string
	Model        string
	HTML         bool
	Now          func() time.Time
	// Out receives progress lines when set.
	Out io.Writer
}

// Run executes n simulations per scenario. A failed simulation is recorded as
// an error result and the batch continues.
func (b *Batch) Run(ctx context.Context, scenarios []Scenario, n int) ([]Outcome, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of simulations must be positive, got %d", n)
	}
	outcomes := make([]Outcome, 0, len(scenarios))
	for i, sc := range scenarios {
		if b.Out != nil {
			_, _ = fmt.Fprintf(b.Out, "Scenario %d/%d: %s\n", i+1, len(scenarios), sc.Description)
		}
		outcome, err := b.runScenario(ctx, sc, n)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (b *Batch) runScenario(ctx context.Context, sc Scenario, n int) (Outcome, error) {
	logger := logging.New("scenario")
	ctx = logging.WithAttrs(ctx, slog.String("scenario", sc.Description))

	limit := b.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	results := make([]export.RunResult, 0, n)

	for sim := 1; sim <= n; sim++ {
		sim := sim
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			result := b.simulate(gCtx, sc, sim)
			if result.Err != nil {
				logger.WarnContext(gCtx, "simulation failed", slog.Int("simulation", sim), slog.String("error", result.Err.Error()))
			}
			if _, err := export.ExportRun(gCtx, b.Sink, result, export.Options{HTML: b.HTML, Now: b.Now}); err != nil {
				logger.WarnContext(gCtx, "failed to export simulation", slog.Int("simulation", sim), slog.String("error", err.Error()))
			}
			if b.Out != nil {
				status := "ok"
				if result.Err != nil {
					status = "failed"
				}
				_, _ = fmt.Fprintf(b.Out, "  simulation %d/%d %s (%.1fs)\n", sim, n, status, result.Elapsed.Seconds())
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SimulationNumber < results[j].SimulationNumber })

	files, err := export.Aggregate(ctx, b.Sink, results, sc.Meta(), b.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to aggregate scenario %q: %w", sc.Description, err)
	}
	return Outcome{Scenario: sc, Results: results, Files: files}, nil
}

func (b *Batch) simulate(ctx context.Context, sc Scenario, sim int) export.RunResult {
	responseType := b.ResponseType
	if responseType == "" {
		responseType = ResponseYesNoMaybe
	}
	generated := b.Generator.Generate(ctx, sc.Description, responseType)

	start := b.now()
	began := time.Now()
	rep, err := b.Assessor.Run(ctx, pipeline.Input{
		Answers:   generated.Answers,
		SessionID: fmt.Sprintf("scenario-%s-%d", export.CleanFilename(sc.Description), sim),
	})
	return export.RunResult{
		Scenario:         sc.Description,
		SimulationNumber: sim,
		StartedAt:        start,
		Elapsed:          time.Since(began),
		Provider:         b.Provider,
		Model:            b.Model,
		Answers:          generated.Answers,
		Report:           rep,
		Err:              err,
	}
}

func (b *Batch) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
