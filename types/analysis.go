package types

import "time"

// Tier identifies which analysis execution path produced a result.
type Tier string

const (
	TierOnline Tier = "online"
	TierLocal  Tier = "local"
	TierMock   Tier = "mock"
)

// Assessment is the overall severity of an analysis result.
type Assessment string

const (
	AssessmentNormal     Assessment = "normal"
	AssessmentConcerning Assessment = "concerning"
	AssessmentUrgent     Assessment = "urgent"
)

// InsightType categorizes a single flagged observation.
type InsightType string

const (
	InsightSecurity      InsightType = "security"
	InsightEnergy        InsightType = "energy"
	InsightClimate       InsightType = "climate"
	InsightAutomation    InsightType = "automation"
	InsightDeviceHealth  InsightType = "device_health"
	InsightPattern       InsightType = "pattern"
	InsightConfiguration InsightType = "configuration"
	InsightRateLimit     InsightType = "rate_limit"
)

// Insight is one flagged observation produced by analysis.
type Insight struct {
	Type              InsightType `json:"type"`
	Message           string      `json:"message"`
	Confidence        float64     `json:"confidence"`
	Entities          []string    `json:"entities,omitempty"`
	RecommendedAction string      `json:"recommended_action,omitempty"`
}

// AnalysisResult is the canonical output of any tier. It is always
// structurally valid regardless of which tier produced it or whether that
// tier failed; the gateway never propagates a raw provider error.
type AnalysisResult struct {
	RequiresAttention bool       `json:"requires_attention"`
	Confidence        float64    `json:"confidence"`
	OverallAssessment Assessment `json:"overall_assessment"`
	Insights          []Insight  `json:"insights"`
	Summary           string     `json:"summary,omitempty"`
	Provider          Tier       `json:"provider"`
	Cost              CostInfo   `json:"cost"`
	Timestamp         time.Time  `json:"analysis_timestamp"`
	ChangesAnalyzed   int        `json:"changes_analyzed"`
}

// EmptyResult is returned for an empty input batch before any tier logic runs.
func EmptyResult(model string) AnalysisResult {
	return AnalysisResult{
		RequiresAttention: false,
		Confidence:        0,
		OverallAssessment: AssessmentNormal,
		Insights:          []Insight{},
		Provider:          TierMock,
		Cost:              ZeroCost(model, "empty-batch"),
		Timestamp:         time.Now(),
	}
}
