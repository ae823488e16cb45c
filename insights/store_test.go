package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evandepol/homewatch/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)

	insight := types.Insight{
		Type:       types.InsightSecurity,
		Message:    "front door unlocked at 03:12",
		Confidence: 0.92,
		Entities:   []string{"lock.front_door"},
	}

	id, err := store.Save(insight, types.TierOnline, types.AssessmentConcerning, true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := store.Get(id)
	require.NoError(t, err)

	assert.Equal(t, insight, stored.Insight)
	assert.Equal(t, types.TierOnline, stored.Provider)
	assert.Equal(t, types.AssessmentConcerning, stored.Assessment)
	assert.True(t, stored.Notified)
	assert.False(t, stored.Acknowledged)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("nope")
	assert.Error(t, err)
}

func TestStore_RecentNewestFirst(t *testing.T) {
	store := openTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.Save(types.Insight{Type: types.InsightPattern, Message: "m"}, types.TierMock, types.AssessmentNormal, false)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recent, err := store.Recent(3)
	require.NoError(t, err)

	require.Len(t, recent, 3)
	assert.Equal(t, ids[4], recent[0].ID)
}

func TestStore_Acknowledge(t *testing.T) {
	store := openTestStore(t)

	id, err := store.Save(types.Insight{Type: types.InsightEnergy, Message: "spike"}, types.TierLocal, types.AssessmentNormal, false)
	require.NoError(t, err)

	require.NoError(t, store.Acknowledge(id))

	stored, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, stored.Acknowledged)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Unacknowledged)
}

func TestStore_Stats(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Save(types.Insight{Type: types.InsightSecurity, Message: "a", Confidence: 0.9}, types.TierOnline, types.AssessmentConcerning, true)
	require.NoError(t, err)
	_, err = store.Save(types.Insight{Type: types.InsightSecurity, Message: "b", Confidence: 0.8}, types.TierMock, types.AssessmentNormal, false)
	require.NoError(t, err)
	_, err = store.Save(types.Insight{Type: types.InsightEnergy, Message: "c", Confidence: 0.7}, types.TierMock, types.AssessmentNormal, false)
	require.NoError(t, err)

	stats, err := store.Stats()
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Unacknowledged)
	assert.InDelta(t, 0.8, stats.AvgConfidence, 1e-9)
	assert.Equal(t, 2, stats.ByType[types.InsightSecurity])
	assert.Equal(t, 1, stats.ByType[types.InsightEnergy])
	assert.Equal(t, 2, stats.ByProvider[types.TierMock])
}

func TestStore_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	id, err := store.Save(types.Insight{Type: types.InsightClimate, Message: "cold"}, types.TierMock, types.AssessmentNormal, false)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	recent, err := reopened.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].ID)
}
