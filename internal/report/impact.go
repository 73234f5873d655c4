package report

import "github.com/jonathan/ckd-assistant/internal/types"

// ImpactLevelFor classifies a factor contribution: above 20% is High, 10% to 20%
// is Moderate and below 10% is Low.
func ImpactLevelFor(percent int) types.ImpactLevel {
	switch {
	case percent > 20:
		return types.ImpactHigh
	case percent >= 10:
		return types.ImpactModerate
	default:
		return types.ImpactLow
	}
}

// RiskCategoryFor classifies an overall risk: below 25% is Low, 25% to 60% is
// Moderate and above 60% is High.
func RiskCategoryFor(percent int) string {
	switch {
	case percent > 60:
		return "High"
	case percent >= 25:
		return "Moderate"
	default:
		return "Low"
	}
}
