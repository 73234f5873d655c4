package steps

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRegistry(t *testing.T) {
	require.Len(t, StepRegistry, len(Order))
	for _, stepName := range Order {
		def, ok := StepRegistry[stepName]
		require.True(t, ok, "Step %s should be in registry", stepName)
		assert.Equal(t, stepName, def.Name)
		assert.NotEmpty(t, def.Category)
	}
}

func TestOrderRespectsDependencies(t *testing.T) {
	completed := map[string]bool{}
	for _, name := range Order {
		require.NoError(t, ValidateDependencies(name, completed), name)
		completed[name] = true
	}
}

func TestStepRegistryCategories(t *testing.T) {
	categories := map[string][]string{
		CategoryIntake:       {StepValidate},
		CategoryAnalysis:     {StepDiagnose, StepResearch},
		CategoryReview:       {StepCritique},
		CategoryPresentation: {StepPresent},
	}

	for category, stepNames := range categories {
		for _, stepName := range stepNames {
			assert.Equal(t, category, CategoryOf(stepName), "Step %s should be in category %s", stepName, category)
		}
	}
}

func TestValidateDependencies_Missing(t *testing.T) {
	err := ValidateDependencies(StepResearch, map[string]bool{StepValidate: true})

	var depErr *DependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, StepResearch, depErr.Step)
	assert.Equal(t, []string{StepDiagnose}, depErr.MissingDependencies)
	assert.Contains(t, err.Error(), "missing dependencies")
}

func TestValidateDependencies_UnknownStep(t *testing.T) {
	err := ValidateDependencies("unknown_step", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestAvailableAndBlocked(t *testing.T) {
	completed := map[string]bool{StepValidate: true}
	assert.Equal(t, []string{StepDiagnose}, GetAvailableSteps(completed))
	assert.Equal(t, []string{StepResearch, StepCritique, StepPresent}, GetBlockedSteps(completed))
	assert.Equal(t, 3, IndexOf(StepResearch))
	assert.Equal(t, 0, IndexOf("nope"))
}
