package types

import (
	"strings"
	"time"
)

// StateChange is a single entity state transition reported by the state
// source. Immutable once produced; a batch of these is the unit of analysis.
type StateChange struct {
	EntityID   string         `json:"entity_id"`
	Domain     string         `json:"domain"`
	OldState   string         `json:"old_state"`
	NewState   string         `json:"new_state"`
	ChangedAt  time.Time      `json:"changed_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EntityDomain derives the domain from an entity ID ("lock.front_door" -> "lock").
func EntityDomain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		return entityID[:i]
	}
	return ""
}

// Monitoring scope tags recognized by the analysis pipeline.
const (
	ScopeClimate      = "climate"
	ScopeSecurity     = "security"
	ScopeEnergy       = "energy"
	ScopeAutomation   = "automation_performance"
	ScopeDeviceHealth = "device_health"
	ScopePatterns     = "patterns"
)

// ChangeContext summarizes the rolling state buffer for prompt building.
type ChangeContext struct {
	ChangeCount int `json:"change_count"`
	BufferSize  int `json:"buffer_size"`
}

// AnalysisRequest is built fresh each cycle from the buffered changes.
type AnalysisRequest struct {
	Changes []StateChange `json:"changes"`
	Context ChangeContext `json:"context"`
	Scope   []string      `json:"monitoring_scope"`
}
