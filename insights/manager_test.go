package insights

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

type sentNotification struct {
	service string
	title   string
	message string
}

func (f *fakeNotifier) SendNotification(_ context.Context, service, title, message string) error {
	f.sent = append(f.sent, sentNotification{service, title, message})
	return f.err
}

func testManager(t *testing.T, cfg config.NotifyConfig) (*Manager, *Store, *fakeNotifier) {
	t.Helper()
	store := openTestStore(t)
	notifier := &fakeNotifier{}
	return NewManager(store, notifier, cfg, telemetry.NewLogger("test")), store, notifier
}

func attentionResult() types.AnalysisResult {
	return types.AnalysisResult{
		RequiresAttention: true,
		Confidence:        0.9,
		OverallAssessment: types.AssessmentConcerning,
		Insights: []types.Insight{
			{Type: types.InsightSecurity, Message: "door unlocked overnight", Confidence: 0.9},
		},
		Summary:  "unusual activity",
		Provider: types.TierOnline,
	}
}

func TestProcessResult_NotifiesOnAttention(t *testing.T) {
	m, store, notifier := testManager(t, config.NotifyConfig{Service: "persistent_notification"})

	m.ProcessResult(context.Background(), attentionResult())

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "persistent_notification", notifier.sent[0].service)
	assert.Equal(t, "Home Watch: attention needed", notifier.sent[0].title)
	assert.Contains(t, notifier.sent[0].message, "door unlocked overnight")
	assert.Contains(t, notifier.sent[0].message, "unusual activity")

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestProcessResult_SilentWithoutAttention(t *testing.T) {
	m, store, notifier := testManager(t, config.NotifyConfig{Service: "persistent_notification"})

	result := attentionResult()
	result.RequiresAttention = false
	result.OverallAssessment = types.AssessmentNormal
	m.ProcessResult(context.Background(), result)

	assert.Empty(t, notifier.sent)

	// The insight is still persisted for the status API.
	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestProcessResult_OnAnyInsight(t *testing.T) {
	m, _, notifier := testManager(t, config.NotifyConfig{Service: "persistent_notification", OnAnyInsight: true})

	result := attentionResult()
	result.RequiresAttention = false
	result.OverallAssessment = types.AssessmentNormal
	m.ProcessResult(context.Background(), result)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Home Watch: observations", notifier.sent[0].title)
}

func TestProcessResult_NoInsightsNoNotification(t *testing.T) {
	m, store, notifier := testManager(t, config.NotifyConfig{Service: "persistent_notification", OnAnyInsight: true})

	m.ProcessResult(context.Background(), types.AnalysisResult{
		OverallAssessment: types.AssessmentNormal,
		Insights:          []types.Insight{},
		Provider:          types.TierMock,
	})

	assert.Empty(t, notifier.sent)
	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestProcessResult_NotifierFailureDoesNotPanic(t *testing.T) {
	store := openTestStore(t)
	notifier := &fakeNotifier{err: errors.New("service unavailable")}
	m := NewManager(store, notifier, config.NotifyConfig{Service: "persistent_notification"}, telemetry.NewLogger("test"))

	m.ProcessResult(context.Background(), attentionResult())

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestNotificationTitle_Urgent(t *testing.T) {
	result := attentionResult()
	result.OverallAssessment = types.AssessmentUrgent
	assert.Equal(t, "Home Watch: urgent", notificationTitle(result))
}

func TestNotificationMessage_CapsInsightCount(t *testing.T) {
	result := types.AnalysisResult{}
	for i := 0; i < maxNotifyInsights+2; i++ {
		result.Insights = append(result.Insights, types.Insight{Message: "m"})
	}

	message := notificationMessage(result)
	assert.Contains(t, message, "...and 2 more")
}
