package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	rootschemas "github.com/jonathan/ckd-assistant/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_History(t *testing.T) {
	valid := `[{"patient_id": 1, "responses": [{"question": "What is your gender?", "answer": "male"}]},
	           {"patient_id": "p-2", "responses": []}]`
	assert.NoError(t, Validate(rootschemas.History, []byte(valid)))

	missing := `[{"responses": []}]`
	err := Validate(rootschemas.History, []byte(missing))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, rootschemas.History, ve.Schema)
	assert.NotEmpty(t, ve.Errors)
}

func TestValidate_Findings(t *testing.T) {
	valid := `{"findings": [{"factor": "Hypertension", "presence": "present", "contribution_percent": 25}],
	           "overall_risk_percent": 40, "confidence_percent": 80}`
	assert.NoError(t, Validate(rootschemas.Findings, []byte(valid)))

	badPresence := `{"findings": [{"factor": "Itching", "presence": "likely", "contribution_percent": 5}]}`
	assert.Error(t, Validate(rootschemas.Findings, []byte(badPresence)))

	outOfRange := `{"findings": [], "overall_risk_percent": 140}`
	assert.Error(t, Validate(rootschemas.Findings, []byte(outOfRange)))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("missing.schema.json", []byte(`{}`))
	var le *SchemaLoadError
	assert.True(t, errors.As(err, &le))
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(rootschemas.Answers, []byte(`[{"question": `))
	assert.Error(t, err)
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"question": "Q1", "answer": "yes"}]`), 0o644))
	assert.NoError(t, ValidateFile(rootschemas.Answers, path))

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	assert.Error(t, ValidateFile(rootschemas.Answers, path))

	assert.Error(t, ValidateFile(rootschemas.Answers, filepath.Join(t.TempDir(), "nope.json")))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"]}`
	assert.NoError(t, ValidateJSONString(schema, `{"name": "x"}`))
	assert.Error(t, ValidateJSONString(schema, `{}`))
}
