package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evandepol/homewatch/types"
)

// mockAnalyze is the deterministic zero-cost fallback tier. It runs simple
// pattern detectors over the change batch and always succeeds.
func mockAnalyze(changes []types.StateChange) types.AnalysisResult {
	var insights []types.Insight
	requiresAttention := false

	security := filterChanges(changes, isSecurityEntity)
	if len(security) > 0 {
		insights = append(insights, types.Insight{
			Type:       types.InsightSecurity,
			Message:    fmt.Sprintf("Security activity detected: %d security-related changes", len(security)),
			Confidence: 0.8,
			Entities:   entityIDs(security, 3),
		})
		requiresAttention = true
	}

	energy := filterChanges(changes, isEnergyEntity)
	if len(energy) > 0 {
		insights = append(insights, types.Insight{
			Type:       types.InsightEnergy,
			Message:    fmt.Sprintf("Energy monitoring: %d power-related changes", len(energy)),
			Confidence: 0.6,
			Entities:   entityIDs(energy, 3),
		})
	}

	for _, change := range changes {
		if insight, ok := lowBatteryInsight(change); ok {
			insights = append(insights, insight)
		}
	}

	if insights == nil {
		insights = []types.Insight{}
	}

	assessment := types.AssessmentNormal
	if requiresAttention {
		assessment = types.AssessmentConcerning
	}

	return types.AnalysisResult{
		RequiresAttention: requiresAttention,
		Confidence:        0.7,
		OverallAssessment: assessment,
		Insights:          insights,
		Summary:           fmt.Sprintf("%d observation(s) from %d changes", len(insights), len(changes)),
	}
}

func isSecurityEntity(change types.StateChange) bool {
	return strings.Contains(change.EntityID, "door") || strings.Contains(change.EntityID, "lock")
}

func isEnergyEntity(change types.StateChange) bool {
	return strings.Contains(change.EntityID, "power") || strings.Contains(change.EntityID, "energy")
}

// lowBatteryInsight flags battery entities reporting under 20 percent.
func lowBatteryInsight(change types.StateChange) (types.Insight, bool) {
	if !strings.Contains(change.EntityID, "battery") {
		return types.Insight{}, false
	}
	level, err := strconv.ParseFloat(strings.TrimSpace(change.NewState), 64)
	if err != nil || level >= 20 {
		return types.Insight{}, false
	}
	return types.Insight{
		Type:              types.InsightDeviceHealth,
		Message:           fmt.Sprintf("Low battery for %s: %.0f%%", change.EntityID, level),
		Confidence:        0.9,
		Entities:          []string{change.EntityID},
		RecommendedAction: "Replace or recharge battery soon.",
	}, true
}

func filterChanges(changes []types.StateChange, keep func(types.StateChange) bool) []types.StateChange {
	var out []types.StateChange
	for _, change := range changes {
		if keep(change) {
			out = append(out, change)
		}
	}
	return out
}

func entityIDs(changes []types.StateChange, limit int) []string {
	ids := make([]string, 0, limit)
	for _, change := range changes {
		if len(ids) == limit {
			break
		}
		ids = append(ids, change.EntityID)
	}
	return ids
}
