package pipeline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/types"
)

func TestParseFindings(t *testing.T) {
	f, ok := ParseFindings(researchOutput)
	require.True(t, ok)
	require.Len(t, f.Findings, 3)
	assert.Equal(t, "Type 2 Diabetes", f.Findings[0].Factor)
	require.NotNil(t, f.ConfidencePercent)
	assert.Equal(t, 80, *f.ConfidencePercent)
}

func TestParseFindings_Invalid(t *testing.T) {
	_, ok := ParseFindings("no block here")
	assert.False(t, ok)

	_, ok = ParseFindings("```json\n{\"findings\": [{\"factor\": \"x\", \"presence\": \"likely\", \"contribution_percent\": 5}]}\n```")
	assert.False(t, ok)
}

func TestEnforceAnsweredFactors(t *testing.T) {
	answers := []types.Answer{
		{Question: "Do you have Type 1 diabetes?", Response: "no"},
		{Question: "Do you have Type 2 diabetes?", Response: "maybe"},
		{Question: "Do you feel unusually tired or weak (fatigue)?", Response: "no"},
		{Question: "Do you have any cardiovascular disease?", Response: ""},
	}
	in := []types.RiskFactorFinding{
		{Factor: "Diabetes", Presence: types.PresencePossible, Percent: 20},
		{Factor: "Fatigue", Presence: types.PresencePresent, Percent: 8},
		{Factor: "Family history of kidney disease", Presence: types.PresencePresent, Percent: 10},
		{Factor: "Heart disease", Presence: types.PresencePresent, Percent: 10},
	}

	out := EnforceAnsweredFactors(in, answers)

	assert.Equal(t, types.PresencePossible, out[0].Presence)
	assert.Equal(t, 20, out[0].Percent)
	assert.Equal(t, types.PresenceAbsent, out[1].Presence)
	assert.Equal(t, types.PresenceAbsent, out[2].Presence)
	assert.Equal(t, 0, out[2].Percent)
	assert.Equal(t, types.PresenceAbsent, out[3].Presence, "blank answers do not cover a factor")
	assert.Equal(t, types.PresencePresent, in[1].Presence, "input is not modified")
}

// catalogFactors maps factor names to the built-in catalog questions that can
// evidence them. Factors with no entry are never covered by the catalog.
var catalogFactors = map[string][]int{
	"Advanced age":                     {2},
	"Hypertension":                     {3},
	"Type 2 Diabetes":                  {4, 5},
	"Cardiovascular disease":           {6},
	"Appetite changes":                 {7},
	"Pedal edema":                      {8},
	"Hematuria":                        {9},
	"Nocturia":                         {10},
	"Flank discomfort":                 {11},
	"Decreased urine output":           {12},
	"Fatigue":                          {13},
	"Nausea":                           {14},
	"Metallic taste":                   {15},
	"Unintentional weight loss":        {16},
	"Itching":                          {17},
	"Mental state changes":             {18},
	"Shortness of breath":              {19},
	"Family history of kidney disease": nil,
	"Smoking":                          nil,
}

func TestEnforceAnsweredFactors_CatalogSubsets(t *testing.T) {
	questions := catalog.MustLoad().Questions()
	responses := []string{"yes", "no", "maybe", "58", ""}
	rng := rand.New(rand.NewSource(7))

	var findings []types.RiskFactorFinding
	for factor := range catalogFactors {
		findings = append(findings, types.RiskFactorFinding{Factor: factor, Presence: types.PresencePresent, Percent: 10})
	}

	for iter := 0; iter < 500; iter++ {
		answered := map[int]string{}
		var answers []types.Answer
		for _, q := range questions {
			if rng.Intn(2) == 0 {
				continue
			}
			resp := responses[rng.Intn(len(responses))]
			answered[q.Number] = resp
			answers = append(answers, types.Answer{Question: q.Text, Response: resp})
		}

		for _, f := range EnforceAnsweredFactors(findings, answers) {
			covered := false
			for _, n := range catalogFactors[f.Factor] {
				if resp, ok := answered[n]; ok && resp != "" && resp != "no" {
					covered = true
				}
			}
			if !covered {
				require.Equal(t, types.PresenceAbsent, f.Presence, "iteration %d: %s with answers %v", iter, f.Factor, answered)
				require.Zero(t, f.Percent)
			} else {
				require.Equal(t, types.PresencePresent, f.Presence, "iteration %d: %s with answers %v", iter, f.Factor, answered)
			}
		}
	}
}

func TestEnforceAnsweredFactors_EachQuestionDropped(t *testing.T) {
	questions := catalog.MustLoad().Questions()
	for _, dropped := range questions {
		var answers []types.Answer
		for _, q := range questions {
			if q.Number != dropped.Number {
				answers = append(answers, types.Answer{Question: q.Text, Response: "yes"})
			}
		}
		for factor, covering := range catalogFactors {
			if len(covering) != 1 || covering[0] != dropped.Number {
				continue
			}
			out := EnforceAnsweredFactors([]types.RiskFactorFinding{{Factor: factor, Presence: types.PresencePresent, Percent: 10}}, answers)
			assert.Equal(t, types.PresenceAbsent, out[0].Presence, "%s without question %d", factor, dropped.Number)
		}
	}
}

func TestCoveringAnswers_WordBoundary(t *testing.T) {
	answers := []types.Answer{{Question: "What is your current age?", Response: "70"}}
	assert.Len(t, CoveringAnswers("Advanced age", answers), 1)
	assert.Empty(t, CoveringAnswers("Kidney damage", answers))
}

func TestEvidenceQuery(t *testing.T) {
	q := EvidenceQuery([]types.Answer{
		{Question: "Do you have Type 2 diabetes?", Response: "Yes"},
		{Question: "Do you have difficulty breathing?", Response: "no"},
		{Question: "Have you noticed any changes in your mental state?", Response: "none"},
	})
	assert.Equal(t, "chronic kidney disease risk: Do you have Type 2 diabetes", q)
	assert.Equal(t, "chronic kidney disease risk factors screening", EvidenceQuery(nil))
}
