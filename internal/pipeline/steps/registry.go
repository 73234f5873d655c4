// Package steps provides stage definitions and dependency validation
// for the assessment pipeline.
package steps

import (
	"fmt"
	"sort"
)

// Stage names
const (
	StepValidate = "validate"
	StepDiagnose = "diagnose"
	StepResearch = "research"
	StepCritique = "critique"
	StepPresent  = "present"
)

// Stage categories
const (
	CategoryIntake       = "intake"
	CategoryAnalysis     = "analysis"
	CategoryReview       = "review"
	CategoryPresentation = "presentation"
)

// StepDefinition defines metadata for a pipeline stage
type StepDefinition struct {
	Name         string
	Category     string
	Dependencies []string
}

// Order is the fixed execution order of the pipeline.
var Order = []string{StepValidate, StepDiagnose, StepResearch, StepCritique, StepPresent}

// StepRegistry holds all stage definitions
var StepRegistry = map[string]StepDefinition{
	StepValidate: {
		Name:         StepValidate,
		Category:     CategoryIntake,
		Dependencies: []string{},
	},
	StepDiagnose: {
		Name:         StepDiagnose,
		Category:     CategoryAnalysis,
		Dependencies: []string{StepValidate},
	},
	StepResearch: {
		Name:         StepResearch,
		Category:     CategoryAnalysis,
		Dependencies: []string{StepValidate, StepDiagnose},
	},
	StepCritique: {
		Name:         StepCritique,
		Category:     CategoryReview,
		Dependencies: []string{StepResearch},
	},
	StepPresent: {
		Name:         StepPresent,
		Category:     CategoryPresentation,
		Dependencies: []string{StepCritique},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// Lookup returns the definition of a stage.
func Lookup(name string) (StepDefinition, error) {
	def, ok := StepRegistry[name]
	if !ok {
		return StepDefinition{}, fmt.Errorf("unknown step: %s", name)
	}
	return def, nil
}

// CategoryOf returns the category of a stage, or "" if unknown.
func CategoryOf(name string) string {
	return StepRegistry[name].Category
}

// IndexOf returns the 1-based position of a stage in Order, or 0 if unknown.
func IndexOf(name string) int {
	for i, s := range Order {
		if s == name {
			return i + 1
		}
	}
	return 0
}

// ValidateDependencies checks that every required dependency of a stage has completed.
func ValidateDependencies(stepName string, completed map[string]bool) error {
	def, err := Lookup(stepName)
	if err != nil {
		return err
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}

// GetAvailableSteps returns stages that are not completed and whose dependencies are met.
func GetAvailableSteps(completed map[string]bool) []string {
	var available []string
	for _, name := range Order {
		if completed[name] {
			continue
		}
		if ValidateDependencies(name, completed) != nil {
			continue
		}
		available = append(available, name)
	}
	return available
}

// GetBlockedSteps returns stages whose dependencies are not yet met.
func GetBlockedSteps(completed map[string]bool) []string {
	var blocked []string
	for name := range StepRegistry {
		if completed[name] {
			continue
		}
		if ValidateDependencies(name, completed) != nil {
			blocked = append(blocked, name)
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return IndexOf(blocked[i]) < IndexOf(blocked[j]) })
	return blocked
}
