// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/ckd-assistant/internal/report"
	"github.com/jonathan/ckd-assistant/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// maxPreviewLines bounds stage output previews
	maxPreviewLines = 8
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip truncates s to n runes, marking the cut with "..."
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintAnswers outputs the collected interview answers.
func (p *Printer) PrintAnswers(answers []types.Answer) {
	if len(answers) == 0 {
		return
	}

	var sb strings.Builder
	for i, a := range answers {
		sb.WriteString(fmt.Sprintf("%2d. %s\n", i+1, a.Question))
		sb.WriteString(fmt.Sprintf("    → %s\n", a.Response))
	}
	p.printBox(fmt.Sprintf("INTERVIEW ANSWERS (%d)", len(answers)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStageResult outputs the duration and a preview of one stage's output.
func (p *Printer) PrintStageResult(result types.StageResult) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Duration: %s\n", result.Duration.Round(time.Millisecond)))
	if len(result.InputRefs) > 0 {
		sb.WriteString(fmt.Sprintf("Inputs:   %s\n", strings.Join(result.InputRefs, ", ")))
	}
	sb.WriteString("\n")

	lines := strings.Split(strings.TrimSpace(result.OutputText), "\n")
	count := min(len(lines), maxPreviewLines)
	for _, line := range lines[:count] {
		sb.WriteString(line + "\n")
	}
	if len(lines) > maxPreviewLines {
		sb.WriteString(fmt.Sprintf("... and %d more lines\n", len(lines)-maxPreviewLines))
	}

	p.printBox("STAGE: "+strings.ToUpper(result.StageName), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFindings outputs the risk factors ordered as given, most significant first.
func (p *Printer) PrintFindings(findings []types.RiskFactorFinding) {
	if len(findings) == 0 {
		return
	}

	var sb strings.Builder
	present := 0
	for _, f := range findings {
		if f.Presence != types.PresenceAbsent {
			present++
		}
	}
	sb.WriteString(fmt.Sprintf("Factors assessed: %d (%d present or possible)\n\n", len(findings), present))

	count := min(len(findings), maxItemsToShow)
	for i := 0; i < count; i++ {
		f := findings[i]
		sb.WriteString(fmt.Sprintf("• %s: %d%% [%s]", f.Factor, f.Percent, f.Presence))
		if f.Impact != "" {
			sb.WriteString(fmt.Sprintf(" %s impact", f.Impact))
		}
		sb.WriteString("\n")
	}
	if len(findings) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(findings)-maxItemsToShow))
	}

	p.printBox("RISK FACTORS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintReportSummary outputs the headline numbers of a finished assessment.
func (p *Printer) PrintReportSummary(rep *types.AssessmentReport) {
	if rep == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:        %s\n", rep.RunID))
	sb.WriteString(fmt.Sprintf("Risk:       %s", percent(rep.RiskPercent)))
	if rep.RiskCategory != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", rep.RiskCategory))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Confidence: %s\n", percent(rep.ConfidencePercent)))
	sb.WriteString(fmt.Sprintf("Stages:     %d in %s", len(rep.StageResults), rep.Elapsed.Round(time.Millisecond)))

	p.printBox("ASSESSMENT SUMMARY", sb.String())
}

func percent(v *int) string {
	if v == nil {
		return report.NA
	}
	return report.FormatPercent(v) + "%"
}
