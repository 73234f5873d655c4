package export

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	got := Summarize([]float64{4, 1, 3, 2})
	want := Stats{Count: 4, Mean: 2.5, Std: 1.2910, Min: 1, Max: 4, Median: 2.5}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 0.0001)); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}

	single := Summarize([]float64{7})
	assert.Equal(t, 7.0, single.Median)
	assert.Equal(t, 0.0, single.Std)

	assert.Equal(t, Stats{}, Summarize(nil))
}

func TestAnalyzeRiskScores(t *testing.T) {
	in := "bucket,risk_level,scenario_desc,simulation_number,risk_score,confidence_percentage\n" +
		"B1,low,x,1,20,80\n" +
		"B1,low,x,2,30,N/A\n" +
		"B1,low,x,3,N/A,N/A\n"

	s, err := AnalyzeRiskScores(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Risk.Count)
	assert.InDelta(t, 25.0, s.Risk.Mean, 0.001)
	assert.Equal(t, 1, s.Confidence.Count)

	table := StatsTable(Markdown, s)
	assert.Contains(t, table, "risk_score")
	assert.Contains(t, table, "25.00")

	ascii := StatsTable(ASCII, ScoreStats{})
	assert.Contains(t, ascii, "N/A")
}

func TestAnalyzeRiskScores_MissingColumns(t *testing.T) {
	_, err := AnalyzeRiskScores(strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)
}
