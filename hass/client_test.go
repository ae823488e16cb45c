package hass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.HomeAssistantConfig{
		URL:     server.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}, telemetry.NewLogger("test"))
}

func TestGetStates(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/states", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		states := []EntityState{
			{EntityID: "lock.front_door", State: "locked"},
			{EntityID: "sensor.kitchen_power", State: "42.5"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(states))
	}))

	states, err := client.GetStates(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, states, 2)
	assert.Equal(t, "lock.front_door", states[0].EntityID)
	assert.Equal(t, "lock", states[0].Domain())
	assert.Equal(t, "sensor", states[1].Domain())
}

func TestGetStates_ScopeFiltersEntities(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		states := []EntityState{
			{EntityID: "lock.front_door", State: "locked"},
			{EntityID: "sensor.bedroom_temperature", State: "21"},
			{EntityID: "light.kitchen", State: "on"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(states))
	}))

	states, err := client.GetStates(context.Background(), []string{types.ScopeClimate})
	require.NoError(t, err)

	require.Len(t, states, 1)
	assert.Equal(t, "sensor.bedroom_temperature", states[0].EntityID)
}

func TestGetStates_ErrorStatus(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	states, err := client.GetStates(context.Background(), nil)
	assert.Error(t, err)
	assert.Nil(t, states)
}

func TestSendNotification_PersistentNotification(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SendNotification(context.Background(), "persistent_notification", "Home Watch", "door unlocked")
	require.NoError(t, err)

	assert.Equal(t, "/api/services/persistent_notification/create", gotPath)
	assert.Equal(t, "Home Watch", gotBody["title"])
	assert.Equal(t, "door unlocked", gotBody["message"])
}

func TestSendNotification_NotifyService(t *testing.T) {
	var gotPath string

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.SendNotification(context.Background(), "mobile_app_phone", "t", "m"))
	assert.Equal(t, "/api/services/notify/mobile_app_phone", gotPath)
}

func TestRecentChanges_ExtractsTransitions(t *testing.T) {
	base := time.Now().Add(-30 * time.Minute)
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		history := [][]EntityState{
			{
				{EntityID: "lock.front_door", State: "locked", LastChanged: base},
				{EntityID: "lock.front_door", State: "unlocked", LastChanged: base.Add(10 * time.Minute)},
				{EntityID: "lock.front_door", State: "unlocked", LastChanged: base.Add(11 * time.Minute)},
			},
			{
				{EntityID: "sensor.temp", State: "21", LastChanged: base},
				{EntityID: "sensor.temp", State: "22", LastChanged: base.Add(5 * time.Minute)},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(history))
	}))

	changes := client.RecentChanges(context.Background(), []string{"lock.front_door", "sensor.temp"}, base, nil)

	require.Len(t, changes, 2)
	// Sorted by time across series.
	assert.Equal(t, "sensor.temp", changes[0].EntityID)
	assert.Equal(t, "lock.front_door", changes[1].EntityID)
	assert.Equal(t, "locked", changes[1].OldState)
	assert.Equal(t, "unlocked", changes[1].NewState)

	scoped := client.RecentChanges(context.Background(), []string{"lock.front_door", "sensor.temp"}, base, []string{types.ScopeSecurity})
	require.Len(t, scoped, 1)
	assert.Equal(t, "lock.front_door", scoped[0].EntityID)
}

func TestGetHistory_ChunksAndSkipsFailures(t *testing.T) {
	calls := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		history := [][]EntityState{{{EntityID: "lock.front_door", State: "locked"}}}
		require.NoError(t, json.NewEncoder(w).Encode(history))
	}))

	ids := make([]string, historyChunkSize+1)
	for i := range ids {
		ids[i] = "sensor.x"
	}

	history, err := client.GetHistory(context.Background(), ids, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, history, 1)
	assert.Equal(t, "lock.front_door", history[0][0].EntityID)
}
