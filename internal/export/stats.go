package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Stats summarizes a sample.
type Stats struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Max    float64
	Median float64
}

// Summarize computes sample statistics. Std is the sample standard deviation
// and is zero for fewer than two values.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s := Stats{
		Count: len(sorted),
		Mean:  sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}

	if len(sorted) > 1 {
		var sq float64
		for _, v := range sorted {
			sq += (v - s.Mean) * (v - s.Mean)
		}
		s.Std = math.Sqrt(sq / float64(len(sorted)-1))
	}
	return s
}

// ScoreStats is the summary of a risk_scores CSV.
type ScoreStats struct {
	Risk       Stats
	Confidence Stats
}

// AnalyzeRiskScores summarizes the risk_score and confidence_percentage columns
// of a risk scores CSV. N/A and unparsable values are skipped.
func AnalyzeRiskScores(r io.Reader) (ScoreStats, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return ScoreStats{}, fmt.Errorf("failed to read header: %w", err)
	}
	riskCol, confCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "risk_score":
			riskCol = i
		case "confidence_percentage":
			confCol = i
		}
	}
	if riskCol < 0 || confCol < 0 {
		return ScoreStats{}, fmt.Errorf("missing risk_score or confidence_percentage column")
	}

	var risks, confs []float64
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ScoreStats{}, fmt.Errorf("failed to read row: %w", err)
		}
		if v, ok := parseValue(rec, riskCol); ok {
			risks = append(risks, v)
		}
		if v, ok := parseValue(rec, confCol); ok {
			confs = append(confs, v)
		}
	}
	return ScoreStats{Risk: Summarize(risks), Confidence: Summarize(confs)}, nil
}

func parseValue(rec []string, col int) (float64, bool) {
	if col >= len(rec) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TableMode selects how StatsTable renders.
type TableMode int

const (
	// ASCII renders a fixed-width terminal table
	ASCII TableMode = iota
	// Markdown renders a GitHub-flavoured markdown table
	Markdown
)

// StatsTable renders risk and confidence statistics side by side.
func StatsTable(mode TableMode, s ScoreStats) string {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
	}
	w.AppendHeader(table.Row{"metric", "risk_score", "confidence"})
	w.AppendRows([]table.Row{
		{"count", s.Risk.Count, s.Confidence.Count},
		{"mean", num(s.Risk.Mean, s.Risk.Count), num(s.Confidence.Mean, s.Confidence.Count)},
		{"std", num(s.Risk.Std, s.Risk.Count), num(s.Confidence.Std, s.Confidence.Count)},
		{"min", num(s.Risk.Min, s.Risk.Count), num(s.Confidence.Min, s.Confidence.Count)},
		{"max", num(s.Risk.Max, s.Risk.Count), num(s.Confidence.Max, s.Confidence.Count)},
		{"median", num(s.Risk.Median, s.Risk.Count), num(s.Confidence.Median, s.Confidence.Count)},
	})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	if mode == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

func num(v float64, count int) string {
	if count == 0 {
		return "N/A"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
