// Package export writes assessment reports and scenario batch summaries to a sink.
package export

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/ckd-assistant/internal/pipeline/steps"
	"github.com/jonathan/ckd-assistant/internal/report"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// TimestampLayout is used in every exported file name.
const TimestampLayout = "20060102_150405"

var (
	nonWordPattern   = regexp.MustCompile(`[^\w\s-]`)
	separatorPattern = regexp.MustCompile(`[-\s]+`)
)

// RunResult is one assessment run as it is exported.
type RunResult struct {
	Scenario         string
	SimulationNumber int
	StartedAt        time.Time
	Elapsed          time.Duration
	Provider         string
	Model            string
	Answers          []types.Answer
	Report           *types.AssessmentReport
	Err              error
}

// Text returns the final assessment text, or "" for a failed run.
func (r RunResult) Text() string {
	if r.Report == nil {
		return ""
	}
	return r.Report.Text
}

// CleanFilename reduces text to a file-name-safe slug of at most 50 characters.
func CleanFilename(text string) string {
	clean := nonWordPattern.ReplaceAllString(text, "")
	clean = separatorPattern.ReplaceAllString(clean, "_")
	if runes := []rune(clean); len(runes) > 50 {
		clean = string(runes[:50])
	}
	return strings.Trim(clean, "_")
}

// FileName returns the export name for a run's markdown report.
func FileName(scenario string, at time.Time) string {
	return fmt.Sprintf("ckd_assessment_%s_%s.md", CleanFilename(scenario), at.Format(TimestampLayout))
}

// RunFileName returns the export name for a run. Batch simulations carry their
// number so concurrent runs of one scenario do not collide.
func RunFileName(r RunResult, at time.Time) string {
	if r.SimulationNumber <= 0 {
		return FileName(r.Scenario, at)
	}
	return fmt.Sprintf("ckd_assessment_%s_sim%d_%s.md", CleanFilename(r.Scenario), r.SimulationNumber, at.Format(TimestampLayout))
}

// RenderMarkdown renders a run as a standalone markdown report. Failed runs
// render the error instead of results.
func RenderMarkdown(r RunResult) string {
	var sb strings.Builder
	date := r.StartedAt.Format(time.RFC3339)

	if r.Err != nil {
		sb.WriteString("# CKD Assessment Report - ERROR\n\n")
		sb.WriteString("## Test Scenario\n")
		fmt.Fprintf(&sb, "**Patient Description:** %s\n", r.Scenario)
		fmt.Fprintf(&sb, "**Assessment Date:** %s\n\n", date)
		sb.WriteString("## Error Details\n```\n")
		sb.WriteString(r.Err.Error())
		sb.WriteString("\n```\n")
		return sb.String()
	}

	sb.WriteString("# CKD Assessment Report\n\n")
	sb.WriteString("## Test Scenario\n")
	fmt.Fprintf(&sb, "**Patient Description:** %s\n", r.Scenario)
	fmt.Fprintf(&sb, "**Assessment Date:** %s\n", date)
	fmt.Fprintf(&sb, "**Processing Time:** %.2f seconds\n\n", r.Elapsed.Seconds())

	sb.WriteString("## Configuration\n")
	fmt.Fprintf(&sb, "- **LLM Provider:** %s\n", r.Provider)
	fmt.Fprintf(&sb, "- **LLM Model:** %s\n", r.Model)
	fmt.Fprintf(&sb, "- **Total Agents:** %d\n\n", len(steps.Order))

	sb.WriteString("## Patient Responses Summary\n\n")
	sb.WriteString("| Question | Patient Response |\n")
	sb.WriteString("|----------|------------------|\n")
	for _, a := range r.Answers {
		fmt.Fprintf(&sb, "| %s | %s |\n", truncate(a.Question, 60), truncate(a.Response, 40))
	}

	sb.WriteString("\n## Assessment Results\n\n")
	sb.WriteString(r.Text())
	sb.WriteString("\n\n---\n*Report generated by CKD Assessment Testing Script*\n")
	return sb.String()
}

// Options controls what ExportRun writes.
type Options struct {
	HTML bool
	Now  func() time.Time
}

// ExportRun writes the markdown report of a run, plus an HTML rendering when
// requested. It returns the names written.
func ExportRun(ctx context.Context, sink Sink, r RunResult, opts Options) ([]string, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	name := RunFileName(r, now())
	md := RenderMarkdown(r)

	if err := sink.Put(ctx, name, []byte(md)); err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", name, err)
	}
	names := []string{name}

	if opts.HTML {
		body, err := report.ToHTML(md)
		if err != nil {
			return names, err
		}
		htmlName := strings.TrimSuffix(name, ".md") + ".html"
		doc := report.HTMLDocument("CKD Assessment Report", body)
		if err := sink.Put(ctx, htmlName, []byte(doc)); err != nil {
			return names, fmt.Errorf("failed to export %s: %w", htmlName, err)
		}
		names = append(names, htmlName)
	}
	return names, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
