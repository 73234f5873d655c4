package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jonathan/ckd-assistant/internal/report"
)

// ScenarioMeta labels every row of a scenario's consolidated CSVs.
type ScenarioMeta struct {
	Bucket      string
	RiskLevel   string
	Description string
}

// AggregateFiles names the consolidated CSVs written for one scenario.
type AggregateFiles struct {
	Responses   string
	RiskFactors string
	RiskScores  string
}

// ConsolidatedBase returns the shared prefix of a scenario's CSV names.
func ConsolidatedBase(desc string, at time.Time) string {
	return fmt.Sprintf("consolidated_%s_%s", CleanFilename(desc), at.Format(TimestampLayout))
}

// Aggregate writes the responses, risk factor and risk score CSVs for the runs
// of one scenario.
func Aggregate(ctx context.Context, sink Sink, results []RunResult, meta ScenarioMeta, at time.Time) (AggregateFiles, error) {
	base := ConsolidatedBase(meta.Description, at)
	files := AggregateFiles{
		Responses:   base + "_responses.csv",
		RiskFactors: base + "_risk_factors.csv",
		RiskScores:  base + "_risk_scores.csv",
	}

	writers := []struct {
		name   string
		render func([]RunResult, ScenarioMeta) ([]byte, error)
	}{
		{files.Responses, ResponsesCSV},
		{files.RiskFactors, RiskFactorsCSV},
		{files.RiskScores, RiskScoresCSV},
	}
	for _, w := range writers {
		data, err := w.render(results, meta)
		if err != nil {
			return files, fmt.Errorf("failed to render %s: %w", w.name, err)
		}
		if err := sink.Put(ctx, w.name, data); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", w.name, err)
		}
	}
	return files, nil
}

// ResponsesCSV lists every answer of every run.
func ResponsesCSV(results []RunResult, meta ScenarioMeta) ([]byte, error) {
	return writeCSV([]string{"bucket", "risk_level", "scenario_desc", "simulation_number", "question_number", "question", "response"},
		func(emit func(...string)) {
			for _, r := range results {
				for i, a := range r.Answers {
					emit(meta.Bucket, meta.RiskLevel, meta.Description,
						strconv.Itoa(r.SimulationNumber), strconv.Itoa(i+1), a.Question, a.Response)
				}
			}
		})
}

// RiskFactorsCSV lists the distinct "N% - Factor:" lines of every run.
func RiskFactorsCSV(results []RunResult, meta ScenarioMeta) ([]byte, error) {
	seen := map[string]bool{}
	return writeCSV([]string{"bucket", "risk_level", "scenario_desc", "simulation_number", "risk_factor", "percentage"},
		func(emit func(...string)) {
			for _, r := range results {
				for _, f := range report.ExtractRiskFactors(r.Text()) {
					key := fmt.Sprintf("%d_%s_%d", r.SimulationNumber, f.Factor, f.Percent)
					if seen[key] {
						continue
					}
					seen[key] = true
					emit(meta.Bucket, meta.RiskLevel, meta.Description,
						strconv.Itoa(r.SimulationNumber), f.Factor, strconv.Itoa(f.Percent))
				}
			}
		})
}

// RiskScoresCSV lists the overall risk and confidence of every run, N/A when missing.
func RiskScoresCSV(results []RunResult, meta ScenarioMeta) ([]byte, error) {
	seen := map[string]bool{}
	return writeCSV([]string{"bucket", "risk_level", "scenario_desc", "simulation_number", "risk_score", "confidence_percentage"},
		func(emit func(...string)) {
			for _, r := range results {
				text := r.Text()
				risk := report.FormatPercent(report.Ptr(report.ExtractRiskScore(text)))
				conf := report.FormatPercent(report.Ptr(report.ExtractConfidence(text)))
				key := fmt.Sprintf("%d_%s_%s", r.SimulationNumber, risk, conf)
				if seen[key] {
					continue
				}
				seen[key] = true
				emit(meta.Bucket, meta.RiskLevel, meta.Description, strconv.Itoa(r.SimulationNumber), risk, conf)
			}
		})
}

func writeCSV(header []string, rows func(emit func(...string))) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	var writeErr error
	rows(func(fields ...string) {
		if writeErr == nil {
			writeErr = w.Write(fields)
		}
	})
	if writeErr != nil {
		return nil, writeErr
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
