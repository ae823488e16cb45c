package gateway

import (
	"fmt"
	"strings"

	"github.com/evandepol/homewatch/types"
)

// maxPromptChanges caps how many recent changes are listed in the prompt so
// batch size cannot blow up the token budget.
const maxPromptChanges = 10

const (
	completionMaxTokens   = 1000
	completionTemperature = 0.3
)

// scopeGuidance maps each monitoring scope to the analysis instructions the
// model receives for it.
var scopeGuidance = map[string]string{
	types.ScopeClimate:      "Climate: watch for temperature anomalies, HVAC running excessively, or setpoints drifting from their usual range.",
	types.ScopeSecurity:     "Security: watch for doors or locks changing state at unusual times, unexpected unlock events, or motion where none is expected.",
	types.ScopeEnergy:       "Energy: watch for sudden power draw spikes, devices left on, or consumption patterns that differ from the baseline.",
	types.ScopeAutomation:   "Automation performance: watch for automations misfiring, triggering repeatedly, or failing to run when their conditions are met.",
	types.ScopeDeviceHealth: "Device health: watch for low batteries, entities going unavailable, or sensors that have stopped reporting.",
	types.ScopePatterns:     "Patterns: watch for sequences of changes that deviate from this home's established routines.",
}

const systemPrompt = `You are a smart home monitoring assistant. You receive recent entity state changes and assess whether anything needs the homeowner's attention.

Respond with JSON in exactly this shape:
{
  "requires_attention": bool,
  "confidence": float between 0 and 1,
  "overall_assessment": "normal" | "concerning" | "urgent",
  "insights": [{"type": str, "message": str, "confidence": float, "entities": [str], "recommended_action": str}],
  "summary": str
}

Only set requires_attention when something genuinely warrants it. Routine activity is normal.`

// buildPrompt renders the user message for one analysis request. Only the
// most recent changes are included.
func buildPrompt(req types.AnalysisRequest) string {
	var b strings.Builder

	b.WriteString("Monitoring scope:\n")
	for _, scope := range req.Scope {
		if guidance, ok := scopeGuidance[scope]; ok {
			b.WriteString("- " + guidance + "\n")
		} else {
			b.WriteString("- " + scope + "\n")
		}
	}

	changes := req.Changes
	if len(changes) > maxPromptChanges {
		changes = changes[len(changes)-maxPromptChanges:]
	}

	fmt.Fprintf(&b, "\nRecent state changes (%d of %d in buffer):\n", len(changes), req.Context.BufferSize)
	for _, change := range changes {
		fmt.Fprintf(&b, "- %s: %q -> %q at %s\n",
			change.EntityID, change.OldState, change.NewState,
			change.ChangedAt.Format("15:04:05"))
	}

	b.WriteString("\nAssess these changes and respond with the JSON schema above.")
	return b.String()
}
