//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitAnswerRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		request SubmitAnswerRequest
		wantErr bool
	}{
		{name: "valid answer", request: SubmitAnswerRequest{Answer: "yes"}},
		{name: "missing answer", request: SubmitAnswerRequest{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "required")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestKnowledgeSearchRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		request KnowledgeSearchRequest
		wantErr bool
	}{
		{name: "query only", request: KnowledgeSearchRequest{Query: "hypertension"}},
		{name: "query with k", request: KnowledgeSearchRequest{Query: "edema", K: 5}},
		{name: "missing query", request: KnowledgeSearchRequest{K: 5}, wantErr: true},
		{name: "k too large", request: KnowledgeSearchRequest{Query: "edema", K: 51}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssessmentRequest_Validation(t *testing.T) {
	assert.NoError(t, (&AssessmentRequest{}).Validate())
	assert.NoError(t, (&AssessmentRequest{ImageRef: "scans/ankle.png"}).Validate())
	assert.Error(t, (&AssessmentRequest{ImageRef: strings.Repeat("x", 2049)}).Validate())
}

func TestQuestion_Prompt(t *testing.T) {
	q := Question{Text: "Do you have Type 1 diabetes?", Hint: "yes/no/maybe"}
	assert.Equal(t, "Do you have Type 1 diabetes? (yes/no/maybe)", q.Prompt())

	q = Question{Text: "What is your current age?"}
	assert.Equal(t, "What is your current age?", q.Prompt())
}
