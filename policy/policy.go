// Package policy decides which analysis tier serves the next request, from
// the configured mode, the budget verdict, and local-endpoint availability.
package policy

import (
	"os"
	"strconv"
	"strings"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

// Decision is one tier choice with the reason it was made, for logging and
// the status endpoint.
type Decision struct {
	Tier   types.Tier
	Reason string
}

// CooldownState reports whether the paid tier is inside a rate-limit window.
type CooldownState interface {
	InBackoff() bool
}

// Selector maps each monitoring cycle to an analysis tier. Selection is pure
// given its inputs; the load probe is the only environmental read.
type Selector struct {
	mode      config.Mode
	local     config.LocalConfig
	cooldown  CooldownState
	logger    *telemetry.Logger
	loadAvg   func() (float64, error) // for testing
	hasAPIKey bool
}

// New creates a selector for the configured mode.
func New(mode config.Mode, local config.LocalConfig, hasAPIKey bool, cooldown CooldownState, logger *telemetry.Logger) *Selector {
	return &Selector{
		mode:      mode,
		local:     local,
		cooldown:  cooldown,
		logger:    logger,
		loadAvg:   readLoadAvg,
		hasAPIKey: hasAPIKey,
	}
}

// ChooseTier picks the tier for the next request. canSpend is the budget
// verdict for the paid tier; the mock tier is never budget-gated. The choice
// is advisory: the gateway's actual outcome is authoritative.
func (s *Selector) ChooseTier(canSpend bool) Decision {
	switch s.mode {
	case config.ModeMockOnly:
		return Decision{Tier: types.TierMock, Reason: "mode mock_only"}

	case config.ModeOnlineOnly:
		if reason, ok := s.onlineBlocked(canSpend); ok {
			return Decision{Tier: types.TierMock, Reason: reason}
		}
		return Decision{Tier: types.TierOnline, Reason: "mode online_only"}

	case config.ModeLocalFirst:
		if s.LocalAvailable() {
			return Decision{Tier: types.TierLocal, Reason: "local endpoint available"}
		}
		if reason, ok := s.onlineBlocked(canSpend); ok {
			return Decision{Tier: types.TierMock, Reason: "local unavailable, " + reason}
		}
		return Decision{Tier: types.TierOnline, Reason: "local unavailable, budget allows paid"}

	default: // auto
		if reason, ok := s.onlineBlocked(canSpend); !ok {
			return Decision{Tier: types.TierOnline, Reason: "budget allows paid"}
		} else if s.LocalAvailable() {
			return Decision{Tier: types.TierLocal, Reason: reason + ", local endpoint available"}
		} else {
			return Decision{Tier: types.TierMock, Reason: reason + ", local unavailable"}
		}
	}
}

// onlineBlocked returns the reason the paid tier cannot serve the next
// request, if any.
func (s *Selector) onlineBlocked(canSpend bool) (string, bool) {
	switch {
	case !s.hasAPIKey:
		return "no API key configured", true
	case !canSpend:
		return "budget exhausted", true
	case s.cooldown != nil && s.cooldown.InBackoff():
		return "rate-limit cooldown active", true
	}
	return "", false
}

// LocalAvailable reports whether the local tier can serve a request: it must
// be enabled, have an endpoint, and the host must not be overloaded. A failed
// load probe counts as available; the probe is advisory only.
func (s *Selector) LocalAvailable() bool {
	if !s.local.Enabled || s.local.BaseURL == "" {
		return false
	}

	load, err := s.loadAvg()
	if err != nil {
		s.logger.Warn().Err(err).Msg("load average probe failed, assuming local tier available")
		return true
	}
	if load > s.local.MaxCPULoad {
		s.logger.Debug().
			Float64("load", load).
			Float64("ceiling", s.local.MaxCPULoad).
			Msg("host overloaded, skipping local tier")
		return false
	}
	return true
}

// readLoadAvg returns the one-minute load average from /proc/loadavg.
func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, os.ErrInvalid
	}
	return strconv.ParseFloat(fields[0], 64)
}
