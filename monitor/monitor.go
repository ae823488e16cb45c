// Package monitor runs the polling loop: snapshot the platform state, diff
// it against the previous snapshot, and feed detected changes through the
// analysis pipeline.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/hass"
	"github.com/evandepol/homewatch/policy"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

// contextWindow is how far back buffered changes are included in an analysis
// request.
const contextWindow = 60 * time.Minute

// StateSource supplies scoped entity state snapshots and historical
// transitions.
type StateSource interface {
	GetStates(ctx context.Context, scope []string) ([]hass.EntityState, error)
	RecentChanges(ctx context.Context, entityIDs []string, since time.Time, scope []string) []types.StateChange
}

// Analyzer runs one analysis request on a tier.
type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalysisRequest, tier types.Tier, localURL string) types.AnalysisResult
}

// TierSelector picks the tier for the next request.
type TierSelector interface {
	ChooseTier(canSpend bool) policy.Decision
}

// Budget gates and records paid-tier spending.
type Budget interface {
	CanMakeRequest() bool
	RecordRequest(cost types.CostInfo)
}

// InsightSink consumes analysis results.
type InsightSink interface {
	ProcessResult(ctx context.Context, result types.AnalysisResult)
}

// Monitor owns the polling loop and its rolling state.
type Monitor struct {
	cfg      *config.Config
	source   StateSource
	analyzer Analyzer
	selector TierSelector
	budget   Budget
	sink     InsightSink
	buffer   *Buffer
	metrics  *Metrics
	logger   *telemetry.Logger

	snapshot map[string]hass.EntityState
	cycle    int64
}

// New assembles a monitor.
func New(cfg *config.Config, source StateSource, analyzer Analyzer, selector TierSelector, budget Budget, sink InsightSink, metrics *Metrics, logger *telemetry.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		source:   source,
		analyzer: analyzer,
		selector: selector,
		budget:   budget,
		sink:     sink,
		buffer:   NewBuffer(defaultBufferSize),
		metrics:  metrics,
		logger:   logger,
	}
}

// Buffer exposes the rolling change buffer for the status endpoint.
func (m *Monitor) Buffer() *Buffer {
	return m.buffer
}

// Cycle returns the completed cycle count.
func (m *Monitor) Cycle() int64 {
	return m.cycle
}

// Run establishes the baseline snapshot and polls until the context is
// canceled. A failed baseline is fatal; without it every entity would look
// changed on the first poll.
func (m *Monitor) Run(ctx context.Context) error {
	states, err := m.source.GetStates(ctx, m.cfg.Scope)
	if err != nil {
		return fmt.Errorf("establish baseline: %w", err)
	}
	m.snapshot = snapshotByEntity(states)

	// Seed the buffer from history so the first analysis request has context.
	entityIDs := make([]string, 0, len(m.snapshot))
	for id := range m.snapshot {
		entityIDs = append(entityIDs, id)
	}
	if seed := m.source.RecentChanges(ctx, entityIDs, time.Now().Add(-contextWindow), m.cfg.Scope); len(seed) > 0 {
		m.buffer.Add(seed...)
	}

	m.logger.WithContext(ctx).Info().
		Int("entities", len(m.snapshot)).
		Int("seeded_changes", m.buffer.Len()).
		Dur("interval", m.cfg.Interval).
		Msg("baseline established, monitoring started")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle performs one poll-diff-analyze pass. Errors are logged and the
// loop continues; only context cancellation stops monitoring.
func (m *Monitor) runCycle(ctx context.Context) {
	m.cycle++
	started := time.Now()

	states, err := m.source.GetStates(ctx, m.cfg.Scope)
	if err != nil {
		m.logger.LogCycleError(ctx, m.cycle, err)
		m.metrics.RecordCycle(ctx, "error", time.Since(started).Seconds())
		return
	}

	changes := m.detectChanges(states)
	m.snapshot = snapshotByEntity(states)

	if len(changes) == 0 {
		m.metrics.RecordCycle(ctx, "idle", time.Since(started).Seconds())
		return
	}

	m.buffer.Add(changes...)
	m.metrics.RecordChanges(ctx, int64(len(changes)))

	req := types.AnalysisRequest{
		Changes: m.buffer.Recent(contextWindow),
		Context: types.ChangeContext{
			ChangeCount: len(changes),
			BufferSize:  m.buffer.Len(),
		},
		Scope: m.cfg.Scope,
	}

	decision := m.selector.ChooseTier(m.budget.CanMakeRequest())
	m.logger.WithContext(ctx).Debug().
		Str("tier", string(decision.Tier)).
		Str("reason", decision.Reason).
		Int("changes", len(changes)).
		Msg("analysis tier selected")

	result := m.analyzer.Analyze(ctx, req, decision.Tier, m.cfg.Local.BaseURL)
	m.budget.RecordRequest(result.Cost)
	m.metrics.RecordAnalysis(ctx, string(result.Provider), result.Cost.Success, result.Cost.CostUSD, int64(len(result.Insights)))

	m.sink.ProcessResult(ctx, result)

	m.metrics.RecordCycle(ctx, "ok", time.Since(started).Seconds())
}

// detectChanges diffs a fresh snapshot against the previous one. Entities
// seen for the first time extend the baseline without producing a change.
func (m *Monitor) detectChanges(states []hass.EntityState) []types.StateChange {
	var changes []types.StateChange
	now := time.Now()

	for _, state := range states {
		prev, seen := m.snapshot[state.EntityID]
		if !seen || prev.State == state.State {
			continue
		}

		changedAt := state.LastChanged
		if changedAt.IsZero() {
			changedAt = now
		}

		changes = append(changes, types.StateChange{
			EntityID:   state.EntityID,
			Domain:     state.Domain(),
			OldState:   prev.State,
			NewState:   state.State,
			ChangedAt:  changedAt,
			Attributes: state.Attributes,
		})
	}
	return changes
}

func snapshotByEntity(states []hass.EntityState) map[string]hass.EntityState {
	snapshot := make(map[string]hass.EntityState, len(states))
	for _, state := range states {
		snapshot[state.EntityID] = state
	}
	return snapshot
}
