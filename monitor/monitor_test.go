package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/hass"
	"github.com/evandepol/homewatch/policy"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

type fakeSource struct {
	snapshots [][]hass.EntityState
	errs      []error
	calls     int
	scopes    [][]string
}

func (f *fakeSource) RecentChanges(context.Context, []string, time.Time, []string) []types.StateChange {
	return nil
}

func (f *fakeSource) GetStates(_ context.Context, scope []string) ([]hass.EntityState, error) {
	f.scopes = append(f.scopes, scope)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.snapshots) {
		return f.snapshots[len(f.snapshots)-1], nil
	}
	return f.snapshots[i], nil
}

type fakeAnalyzer struct {
	requests []types.AnalysisRequest
	tiers    []types.Tier
	result   types.AnalysisResult
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req types.AnalysisRequest, tier types.Tier, _ string) types.AnalysisResult {
	f.requests = append(f.requests, req)
	f.tiers = append(f.tiers, tier)
	return f.result
}

type fakeSelector struct {
	decision policy.Decision
	canSpend []bool
}

func (f *fakeSelector) ChooseTier(canSpend bool) policy.Decision {
	f.canSpend = append(f.canSpend, canSpend)
	return f.decision
}

type fakeBudget struct {
	allow    bool
	recorded []types.CostInfo
}

func (f *fakeBudget) CanMakeRequest() bool { return f.allow }

func (f *fakeBudget) RecordRequest(cost types.CostInfo) { f.recorded = append(f.recorded, cost) }

type fakeSink struct {
	results []types.AnalysisResult
}

func (f *fakeSink) ProcessResult(_ context.Context, result types.AnalysisResult) {
	f.results = append(f.results, result)
}

func testMonitor(t *testing.T, source *fakeSource) (*Monitor, *fakeAnalyzer, *fakeBudget, *fakeSink) {
	t.Helper()

	metrics, err := NewMetrics()
	require.NoError(t, err)

	cfg := &config.Config{
		Interval: 30 * time.Second,
		Scope:    []string{types.ScopeSecurity},
		Local:    config.LocalConfig{BaseURL: "http://localhost:11434/v1"},
	}

	analyzer := &fakeAnalyzer{result: types.AnalysisResult{
		Provider: types.TierMock,
		Cost:     types.ZeroCost("gpt-4o-mini", "mock-tier"),
		Insights: []types.Insight{},
	}}
	budget := &fakeBudget{allow: true}
	sink := &fakeSink{}
	selector := &fakeSelector{decision: policy.Decision{Tier: types.TierMock, Reason: "test"}}

	m := New(cfg, source, analyzer, selector, budget, sink, metrics, telemetry.NewLogger("test"))
	return m, analyzer, budget, sink
}

func entity(id, state string) hass.EntityState {
	return hass.EntityState{EntityID: id, State: state, LastChanged: time.Now()}
}

func TestRun_BaselineFailureIsFatal(t *testing.T) {
	source := &fakeSource{errs: []error{errors.New("connection refused")}}
	m, _, _, _ := testMonitor(t, source)

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "establish baseline")
}

func TestRunCycle_DetectsChangeAndAnalyzes(t *testing.T) {
	source := &fakeSource{snapshots: [][]hass.EntityState{
		{entity("lock.front_door", "locked"), entity("sensor.temp", "21")},
		{entity("lock.front_door", "unlocked"), entity("sensor.temp", "21")},
	}}
	m, analyzer, budget, sink := testMonitor(t, source)

	ctx := context.Background()
	states, err := source.GetStates(ctx, nil)
	require.NoError(t, err)
	m.snapshot = snapshotByEntity(states)

	m.runCycle(ctx)

	require.Len(t, analyzer.requests, 1)
	req := analyzer.requests[0]
	require.Len(t, req.Changes, 1)
	assert.Equal(t, "lock.front_door", req.Changes[0].EntityID)
	assert.Equal(t, "lock", req.Changes[0].Domain)
	assert.Equal(t, "locked", req.Changes[0].OldState)
	assert.Equal(t, "unlocked", req.Changes[0].NewState)
	assert.Equal(t, 1, req.Context.ChangeCount)
	assert.Equal(t, types.TierMock, analyzer.tiers[0])

	require.Len(t, budget.recorded, 1)
	assert.Equal(t, "mock-tier", budget.recorded[0].Note)

	require.Len(t, sink.results, 1)
	assert.Equal(t, int64(1), m.Cycle())

	// The cycle's state fetch carries the configured scope.
	assert.Equal(t, []string{types.ScopeSecurity}, source.scopes[len(source.scopes)-1])
}

func TestRunCycle_IdleWithoutChanges(t *testing.T) {
	snapshot := []hass.EntityState{entity("sensor.temp", "21")}
	source := &fakeSource{snapshots: [][]hass.EntityState{snapshot, snapshot}}
	m, analyzer, budget, _ := testMonitor(t, source)

	ctx := context.Background()
	states, err := source.GetStates(ctx, nil)
	require.NoError(t, err)
	m.snapshot = snapshotByEntity(states)

	m.runCycle(ctx)

	assert.Empty(t, analyzer.requests)
	assert.Empty(t, budget.recorded)
}

func TestRunCycle_SourceErrorSkipsAnalysis(t *testing.T) {
	source := &fakeSource{
		snapshots: [][]hass.EntityState{{entity("sensor.temp", "21")}},
		errs:      []error{nil, errors.New("timeout")},
	}
	m, analyzer, _, _ := testMonitor(t, source)

	ctx := context.Background()
	states, err := source.GetStates(ctx, nil)
	require.NoError(t, err)
	m.snapshot = snapshotByEntity(states)

	m.runCycle(ctx)

	assert.Empty(t, analyzer.requests)
	assert.Equal(t, int64(1), m.Cycle())
}

func TestDetectChanges_NewEntityExtendsBaseline(t *testing.T) {
	source := &fakeSource{}
	m, _, _, _ := testMonitor(t, source)

	m.snapshot = snapshotByEntity([]hass.EntityState{entity("sensor.temp", "21")})

	changes := m.detectChanges([]hass.EntityState{
		entity("sensor.temp", "21"),
		entity("sensor.humidity", "55"),
	})

	assert.Empty(t, changes)
}

func TestDetectChanges_BufferFeedsContext(t *testing.T) {
	source := &fakeSource{snapshots: [][]hass.EntityState{
		{entity("lock.front_door", "locked")},
		{entity("lock.front_door", "unlocked")},
		{entity("lock.front_door", "locked")},
	}}
	m, analyzer, _, _ := testMonitor(t, source)

	ctx := context.Background()
	states, err := source.GetStates(ctx, nil)
	require.NoError(t, err)
	m.snapshot = snapshotByEntity(states)

	m.runCycle(ctx)
	m.runCycle(ctx)

	require.Len(t, analyzer.requests, 2)
	// The second request carries both buffered changes as context.
	assert.Len(t, analyzer.requests[1].Changes, 2)
	assert.Equal(t, 2, analyzer.requests[1].Context.BufferSize)
}
