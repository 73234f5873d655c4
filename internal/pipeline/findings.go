package pipeline

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"

	"github.com/jonathan/ckd-assistant/internal/history"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/schemas"
	"github.com/jonathan/ckd-assistant/internal/types"
	rootschemas "github.com/jonathan/ckd-assistant/schemas"
)

// factorConcepts groups the terms that identify a risk factor in a factor name
// and in question text.
var factorConcepts = [][]string{
	{"hypertension", "blood pressure"},
	{"diabet", "blood sugar", "glucose"},
	{"cardiovascular", "heart", "cardiac"},
	{"appetite"},
	{"edema", "oedema", "swelling", "swollen"},
	{"hematuria", "haematuria", "blood in"},
	{"nocturia", "at night"},
	{"flank", "side or back"},
	{"urine output", "oliguria"},
	{"fatigue", "tired", "weak"},
	{"nausea", "vomit"},
	{"metallic", "taste"},
	{"weight"},
	{"itch", "pruritus"},
	{"mental", "confusion", "memory", "cognitive"},
	{"breath", "dyspnea", "dyspnoea"},
	{"age", "elderly", "older"},
	{"gender", "sex", "male"},
}

// ParseFindings extracts and validates the structured findings block of a
// research output. It reports false when the block is missing or malformed.
func ParseFindings(text string) (*types.Findings, bool) {
	block, ok := llm.FindJSONBlock(text)
	if !ok {
		return nil, false
	}
	block = llm.CleanJSONBlock(block)

	if err := schemas.Validate(rootschemas.Findings, []byte(block)); err != nil {
		logging.New("pipeline").Warn("ignoring findings block", slog.String("error", err.Error()))
		return nil, false
	}

	var f types.Findings
	if err := json.Unmarshal([]byte(block), &f); err != nil {
		return nil, false
	}
	return &f, true
}

// EnforceAnsweredFactors marks a factor absent when no answered question covers
// it or when every covering answer is "no". Absent factors contribute nothing.
func EnforceAnsweredFactors(findings []types.RiskFactorFinding, answers []types.Answer) []types.RiskFactorFinding {
	out := make([]types.RiskFactorFinding, len(findings))
	for i, f := range findings {
		covering := CoveringAnswers(f.Factor, answers)
		if len(covering) == 0 || allNegative(covering) {
			f.Presence = types.PresenceAbsent
			f.Percent = 0
		}
		out[i] = f
	}
	return out
}

// CoveringAnswers returns the answered questions that address a factor.
func CoveringAnswers(factor string, answers []types.Answer) []types.Answer {
	name := strings.ToLower(factor)
	var terms []string
	for _, concept := range factorConcepts {
		if containsAny(name, concept) {
			terms = append(terms, concept...)
		}
	}
	if len(terms) == 0 {
		terms = significantWords(name)
	}
	if len(terms) == 0 {
		return nil
	}

	var out []types.Answer
	for _, a := range answers {
		if strings.TrimSpace(a.Response) == "" {
			continue
		}
		if containsAny(strings.ToLower(a.Question), terms) {
			out = append(out, a)
		}
	}
	return out
}

// EvidenceQuery builds a knowledge query from the factors the patient answered
// yes or maybe to.
func EvidenceQuery(answers []types.Answer) string {
	var topics []string
	for _, a := range answers {
		switch history.NormalizeAnswer(a.Response) {
		case "yes", "maybe":
			if strings.EqualFold(strings.TrimSpace(a.Response), "none") {
				continue
			}
			topics = append(topics, strings.TrimSuffix(strings.TrimSpace(a.Question), "?"))
		}
	}
	if len(topics) == 0 {
		return "chronic kidney disease risk factors screening"
	}
	return "chronic kidney disease risk: " + strings.Join(topics, "; ")
}

func allNegative(answers []types.Answer) bool {
	for _, a := range answers {
		if history.NormalizeAnswer(a.Response) != "no" {
			return false
		}
	}
	return true
}

// containsAny reports whether any term occurs in s starting at a word boundary,
// so "age" matches "age" and "aged" but not "damage".
func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		for from := 0; from < len(s); {
			i := strings.Index(s[from:], t)
			if i < 0 {
				break
			}
			i += from
			if i == 0 || !isWordRune(rune(s[i-1])) {
				return true
			}
			from = i + 1
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if len(w) >= 5 && w != "disease" && w != "history" && w != "chronic" {
			out = append(out, w)
		}
	}
	return out
}
