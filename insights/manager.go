package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

// maxNotifyInsights caps how many insight messages one notification carries.
const maxNotifyInsights = 5

// Notifier dispatches a notification through the home platform.
type Notifier interface {
	SendNotification(ctx context.Context, service, title, message string) error
}

// Manager persists analysis insights and decides when they become
// notifications.
type Manager struct {
	store    *Store
	notifier Notifier
	cfg      config.NotifyConfig
	logger   *telemetry.Logger
}

// NewManager wires the store and notifier together.
func NewManager(store *Store, notifier Notifier, cfg config.NotifyConfig, logger *telemetry.Logger) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// ProcessResult persists every insight in the result and sends one
// notification when the result requires attention, or when on_any_insight is
// set and anything was flagged. Store and notifier failures are logged;
// processing always continues.
func (m *Manager) ProcessResult(ctx context.Context, result types.AnalysisResult) {
	notify := result.RequiresAttention || (m.cfg.OnAnyInsight && len(result.Insights) > 0)

	for _, insight := range result.Insights {
		if _, err := m.store.Save(insight, result.Provider, result.OverallAssessment, notify); err != nil {
			m.logger.LogPersistenceError(ctx, "insight_save", err)
		}
	}

	if !notify || len(result.Insights) == 0 {
		return
	}

	title := notificationTitle(result)
	message := notificationMessage(result)
	if err := m.notifier.SendNotification(ctx, m.cfg.Service, title, message); err != nil {
		m.logger.WithContext(ctx).Warn().
			Err(err).
			Str("service", m.cfg.Service).
			Msg("notification dispatch failed")
	}
}

func notificationTitle(result types.AnalysisResult) string {
	switch result.OverallAssessment {
	case types.AssessmentUrgent:
		return "Home Watch: urgent"
	case types.AssessmentConcerning:
		return "Home Watch: attention needed"
	default:
		return "Home Watch: observations"
	}
}

func notificationMessage(result types.AnalysisResult) string {
	var lines []string
	for i, insight := range result.Insights {
		if i == maxNotifyInsights {
			lines = append(lines, fmt.Sprintf("...and %d more", len(result.Insights)-maxNotifyInsights))
			break
		}
		line := insight.Message
		if insight.RecommendedAction != "" {
			line += " " + insight.RecommendedAction
		}
		lines = append(lines, line)
	}
	if result.Summary != "" {
		lines = append(lines, "", result.Summary)
	}
	return strings.Join(lines, "\n")
}
