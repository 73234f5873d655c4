package report

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/ckd-assistant/internal/types"
)

// NA is rendered for a value that could not be extracted.
const NA = "N/A"

var (
	factorPattern     = regexp.MustCompile(`(\d+)%\s*-\s*([^:]+):`)
	percentPattern    = regexp.MustCompile(`(\d+)%`)
	confidencePattern = regexp.MustCompile(`(\d+)% confidence`)
)

// FactorPercent is one "N% - Label:" line from the report.
type FactorPercent struct {
	Factor  string
	Percent int
}

// ExtractRiskFactors returns each distinct "N% - Label:" pair in order of appearance.
func ExtractRiskFactors(text string) []FactorPercent {
	var out []FactorPercent
	seen := map[string]bool{}
	for _, m := range factorPattern.FindAllStringSubmatch(text, -1) {
		pct, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		factor := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[2]), "*"))
		if factor == "" {
			continue
		}
		key := m[1] + "|" + factor
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, FactorPercent{Factor: factor, Percent: pct})
	}
	return out
}

// ExtractRiskScore returns the first percentage in text.
func ExtractRiskScore(text string) (int, bool) {
	return firstInt(percentPattern, text)
}

// ExtractConfidence returns the percentage in the first "N% confidence" token.
func ExtractConfidence(text string) (int, bool) {
	return firstInt(confidencePattern, text)
}

// FormatPercent renders an optional percentage, using NA when absent.
func FormatPercent(v *int) string {
	if v == nil {
		return NA
	}
	return strconv.Itoa(*v)
}

// Ptr returns a pointer to v when ok, otherwise nil.
func Ptr(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return &v
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// ApplyImpact sets the impact level of every finding from its contribution.
func ApplyImpact(findings []types.RiskFactorFinding) []types.RiskFactorFinding {
	out := make([]types.RiskFactorFinding, len(findings))
	for i, f := range findings {
		f.Impact = ImpactLevelFor(f.Percent)
		out[i] = f
	}
	return out
}
