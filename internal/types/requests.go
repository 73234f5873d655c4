package types

import (
	"github.com/go-playground/validator/v10"
)

// SubmitAnswerRequest carries one patient response.
type SubmitAnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

// AssessmentRequest starts the assessment pipeline for a completed session.
type AssessmentRequest struct {
	ImageRef string `json:"image_ref,omitempty" validate:"omitempty,max=2048"`
}

// KnowledgeSearchRequest queries the knowledge store. K of zero uses the default.
type KnowledgeSearchRequest struct {
	Query string `json:"query" validate:"required,min=2"`
	K     int    `json:"k" validate:"omitempty,min=1,max=50"`
}

// Validate validates the SubmitAnswerRequest using the validator.
func (r *SubmitAnswerRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the AssessmentRequest using the validator.
func (r *AssessmentRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the KnowledgeSearchRequest using the validator.
func (r *KnowledgeSearchRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
