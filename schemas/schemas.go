// Package schemas embeds the JSON Schema documents for the assistant's data files
// and structured model output.
package schemas

import "embed"

// Files holds every *.schema.json document in this directory.
//
//go:embed *.schema.json
var Files embed.FS

// Schema file names.
const (
	History         = "history.schema.json"
	Answers         = "answers.schema.json"
	Findings        = "findings.schema.json"
	ScenarioAnswers = "scenario_answers.schema.json"
)
