// Package report post-processes the final assessment text for display and export.
package report

import (
	"regexp"
	"strings"
)

var tablePattern = regexp.MustCompile(`(\|[^\n]+\|(?:\n\|[^\n]+\|)*)`)

// Table headings, applied in order of appearance.
const (
	HeadingAssessment  = "Assessment Summary"
	HeadingRiskFactors = "Risk Factors Summary"
	HeadingAdditional  = "Additional Data"
)

// FormatForDisplay labels the pipe tables in text by position: the first as the
// assessment summary, the second as the risk factor summary and any later ones
// as additional data. Text outside tables is kept as is, and text without tables
// is returned unchanged.
func FormatForDisplay(text string) string {
	matches := tablePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var sb strings.Builder
	last := 0
	tables := 0
	for _, m := range matches {
		sb.WriteString(text[last:m[0]])
		block := text[m[0]:m[1]]
		last = m[1]

		if !isTable(block) {
			sb.WriteString(block)
			continue
		}
		tables++
		sb.WriteString("\n\n**" + headingFor(tables) + ":**\n\n")
		sb.WriteString(strings.TrimSpace(block))
		sb.WriteString("\n\n")
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// Tables returns the pipe tables found in text, in order.
func Tables(text string) []string {
	var out []string
	for _, block := range tablePattern.FindAllString(text, -1) {
		if isTable(block) {
			out = append(out, strings.TrimSpace(block))
		}
	}
	return out
}

func isTable(block string) bool {
	return strings.HasPrefix(strings.TrimSpace(block), "|") && strings.Contains(block, "\n|")
}

func headingFor(n int) string {
	switch n {
	case 1:
		return HeadingAssessment
	case 2:
		return HeadingRiskFactors
	default:
		return HeadingAdditional
	}
}
