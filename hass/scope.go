package hass

import (
	"strings"

	"github.com/evandepol/homewatch/types"
)

// scopeRule maps one monitoring scope to the entity domains it covers and,
// when non-empty, the entity ID keywords an entity must also carry.
type scopeRule struct {
	domains  map[string]bool
	keywords []string
}

var scopeRules = map[string]scopeRule{
	types.ScopeClimate: {
		domains:  map[string]bool{"climate": true, "weather": true, "sensor": true},
		keywords: []string{"temperature", "humidity", "climate", "thermostat"},
	},
	types.ScopeSecurity: {
		domains:  map[string]bool{"binary_sensor": true, "alarm_control_panel": true, "lock": true, "camera": true},
		keywords: []string{"door", "window", "motion", "alarm", "lock", "security"},
	},
	types.ScopeEnergy: {
		domains:  map[string]bool{"sensor": true, "switch": true, "light": true},
		keywords: []string{"power", "energy", "consumption", "watt"},
	},
	types.ScopeAutomation: {
		domains: map[string]bool{"automation": true, "script": true},
	},
	types.ScopeDeviceHealth: {
		domains: map[string]bool{"sensor": true, "binary_sensor": true},
	},
}

// FilterByScope keeps the entities the monitoring scope covers. An empty
// scope keeps everything, and so does the patterns scope since pattern
// analysis wants the full picture. A filter that matches nothing falls back
// to everything rather than leave the monitor without a baseline.
func FilterByScope(states []EntityState, scope []string) []EntityState {
	if scopeCoversAll(scope) {
		return states
	}

	var filtered []EntityState
	for _, state := range states {
		if EntityInScope(state.EntityID, scope) {
			filtered = append(filtered, state)
		}
	}
	if len(filtered) == 0 {
		return states
	}
	return filtered
}

// EntityInScope reports whether one entity falls under any of the scopes.
func EntityInScope(entityID string, scope []string) bool {
	if scopeCoversAll(scope) {
		return true
	}

	domain := types.EntityDomain(entityID)
	lowered := strings.ToLower(entityID)

	for _, tag := range scope {
		rule, ok := scopeRules[tag]
		if !ok || !rule.domains[domain] {
			continue
		}
		if len(rule.keywords) == 0 {
			return true
		}
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
	}
	return false
}

func scopeCoversAll(scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, tag := range scope {
		if tag == types.ScopePatterns {
			return true
		}
	}
	return false
}
