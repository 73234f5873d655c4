// Package types provides type definitions for structured data used throughout the CKD assistant.
package types

// Domain describes the expected shape of an answer to a question.
type Domain string

const (
	// DomainBooleanTriState accepts yes, no or maybe
	DomainBooleanTriState Domain = "boolean_tri_state"
	// DomainCategorical accepts one of a fixed set of options
	DomainCategorical Domain = "categorical"
	// DomainFreeText accepts any non-empty response
	DomainFreeText Domain = "free_text"
)

// Question is a single entry of the question catalog.
type Question struct {
	Number  int      `json:"number"`
	Text    string   `json:"text"`
	Hint    string   `json:"hint,omitempty"`
	Domain  Domain   `json:"domain"`
	Options []string `json:"options,omitempty"`
}

// Prompt returns the text shown to the patient, including the answer hint.
func (q Question) Prompt() string {
	if q.Hint == "" {
		return q.Text
	}
	return q.Text + " (" + q.Hint + ")"
}

// Answer pairs a posed question with the patient's verbatim response.
type Answer struct {
	Index    int    `json:"question_index,omitempty"`
	Question string `json:"question"`
	Response string `json:"answer"`
}

// HistoricalPatientRecord is one previously collected response set.
type HistoricalPatientRecord struct {
	PatientID string   `json:"patient_id"`
	Responses []Answer `json:"responses"`
}
