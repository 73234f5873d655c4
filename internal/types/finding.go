package types

// Presence is the assessed state of a risk factor.
type Presence string

const (
	PresencePresent  Presence = "present"
	PresenceAbsent   Presence = "absent"
	PresencePossible Presence = "possibly_present"
)

// ImpactLevel classifies a factor's contribution to overall risk.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "Low"
	ImpactModerate ImpactLevel = "Moderate"
	ImpactHigh     ImpactLevel = "High"
)

// RiskFactorFinding is a single factor assessed during research.
type RiskFactorFinding struct {
	Factor            string      `json:"factor"`
	Presence          Presence    `json:"presence"`
	Percent           int         `json:"contribution_percent"`
	Impact            ImpactLevel `json:"impact,omitempty"`
	Rationale         string      `json:"rationale,omitempty"`
	EvidenceReference string      `json:"evidence_reference,omitempty"`
}

// Findings is the structured block requested from the research stage.
type Findings struct {
	Findings           []RiskFactorFinding `json:"findings"`
	OverallRiskPercent *int                `json:"overall_risk_percent,omitempty"`
	ConfidencePercent  *int                `json:"confidence_percent,omitempty"`
}
