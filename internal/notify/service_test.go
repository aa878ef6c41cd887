package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classlink/internal/common"
	"classlink/internal/config"
	"classlink/internal/store"
)

// fakePrefRepo is an in-memory PreferenceRepository.
type fakePrefRepo struct {
	mu    sync.Mutex
	prefs map[string]common.UserPreferences
}

func newFakePrefRepo() *fakePrefRepo {
	return &fakePrefRepo{prefs: make(map[string]common.UserPreferences)}
}

func (r *fakePrefRepo) Get(_ context.Context, userID string) (*common.UserPreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prefs[userID]; ok {
		copied := p
		return &copied, nil
	}
	return nil, nil
}

func (r *fakePrefRepo) Upsert(_ context.Context, userID string, prefs common.UserPreferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[userID] = prefs
	return nil
}

type serviceFixture struct {
	service *Service
	inApp   *stubAdapter
	repo    *fakePrefRepo
	history *store.HistoryStore
}

// deliverAnytime disables quiet hours and adaptive timing so tests are not
// sensitive to the wall clock they run at.
func deliverAnytime() common.UserPreferences {
	prefs := common.DefaultPreferences()
	prefs.QuietHours = common.QuietHours{}
	prefs.AdaptiveTiming = false
	return prefs
}

func newServiceFixture(t *testing.T, prefs common.UserPreferences) *serviceFixture {
	t.Helper()

	repo := newFakePrefRepo()
	require.NoError(t, repo.Upsert(context.Background(), "student-1", prefs))

	history := store.NewHistoryStore(100, 7*24*time.Hour, 0, nil)
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	dispatcher := NewDispatcher([]common.ChannelAdapter{inApp}, history, nil, time.Millisecond)

	resolver := common.ContextResolverFunc(func(_ context.Context, _ string) (common.UserContext, error) {
		return common.UserContext{Role: "student", Subjects: []string{"math"}}, nil
	})

	cfg := config.NotificationConfig{
		QueueInterval: 10 * time.Millisecond,
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
	}
	svc := NewService(cfg, dispatcher, store.NewPreferenceStore(repo, nil), history, nil, resolver, fixedPredictor(0.9))
	t.Cleanup(func() {
		svc.Shutdown()
		history.Close()
	})

	return &serviceFixture{service: svc, inApp: inApp, repo: repo, history: history}
}

func mathRequest(priority common.Priority) common.NotificationRequest {
	return common.NotificationRequest{
		UserID:   "student-1",
		Title:    "Assignment due",
		Message:  "Problem set 4 is due tomorrow",
		Type:     common.AssignmentDueType,
		Priority: priority,
		Subject:  "math",
	}
}

// subscribeDelivery must be called before the notification is created so the
// terminal event cannot slip past the listener.
func subscribeDelivery(t *testing.T, svc *Service) <-chan DeliveryEvent {
	t.Helper()
	done := make(chan DeliveryEvent, 1)
	unsubscribe := svc.OnDelivery(func(ev DeliveryEvent) {
		select {
		case done <- ev:
		default:
		}
	})
	t.Cleanup(unsubscribe)
	return done
}

func awaitDelivery(t *testing.T, done <-chan DeliveryEvent) DeliveryEvent {
	t.Helper()
	select {
	case ev := <-done:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return DeliveryEvent{}
	}
}

func TestService_CreateNotification_DeliversImmediately(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())

	done := subscribeDelivery(t, f.service)

	record, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, common.StatusPending, record.Status)
	assert.Equal(t, common.ContextAcademic, record.Context)

	ev := awaitDelivery(t, done)
	assert.True(t, ev.Terminal)
	assert.Equal(t, common.StatusDelivered, ev.Record.Status)
	assert.Equal(t, record.ID, ev.Record.ID)

	assert.Equal(t, 1, f.inApp.sentCount())

	metrics := f.service.Snapshot()
	assert.Equal(t, 1, metrics.Created)
	assert.Equal(t, 1, metrics.Delivered)
}

func TestService_CreateNotification_Validation(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())

	tests := []struct {
		name   string
		mutate func(*common.NotificationRequest)
	}{
		{"missing user", func(r *common.NotificationRequest) { r.UserID = "" }},
		{"missing title", func(r *common.NotificationRequest) { r.Title = "" }},
		{"missing message", func(r *common.NotificationRequest) { r.Message = "" }},
		{"missing type", func(r *common.NotificationRequest) { r.Type = "" }},
		{"bad priority", func(r *common.NotificationRequest) { r.Priority = "sometime" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mathRequest(common.PriorityMedium)
			tt.mutate(&req)
			record, err := f.service.CreateNotification(context.Background(), req)
			assert.Error(t, err)
			assert.Nil(t, record)
		})
	}
}

func TestService_CreateNotification_FilteredIsTerminal(t *testing.T) {
	prefs := deliverAnytime()
	prefs.PriorityThreshold = common.PriorityUrgent
	f := newServiceFixture(t, prefs)

	record, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, common.StatusFiltered, record.Status)
	assert.Equal(t, "priority", record.FilteredBy)

	// nothing was dispatched
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.inApp.sentCount())

	metrics := f.service.Snapshot()
	assert.Equal(t, 1, metrics.Filtered)
	assert.Equal(t, 1, metrics.FilteredBy["priority"])
}

func TestService_ScheduledDeferralAndCancel(t *testing.T) {
	prefs := deliverAnytime()
	prefs.AdaptiveTiming = true
	f := newServiceFixture(t, prefs)

	// low engagement forever defers the notification an hour out
	f.service.timing = NewTimingOptimizer(fixedPredictor(0.0))

	record, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)
	require.Equal(t, common.StatusScheduled, record.Status)
	require.NotNil(t, record.ScheduledAt)
	assert.True(t, record.ScheduledAt.After(time.Now()))

	require.NoError(t, f.service.CancelScheduled(record.ID))
	assert.Equal(t, 0, f.inApp.sentCount())

	// cancelling again reports the task is gone
	assert.ErrorIs(t, f.service.CancelScheduled(record.ID), common.ErrUnknownScheduled)
}

func TestService_CancelRacesScheduledFire(t *testing.T) {
	prefs := deliverAnytime()
	prefs.AdaptiveTiming = true
	f := newServiceFixture(t, prefs)

	f.service.timing = NewTimingOptimizer(fixedPredictor(0.0))

	delivered := make(chan string, 64)
	unsubscribe := f.service.OnDelivery(func(ev DeliveryEvent) {
		delivered <- ev.Record.ID
	})
	t.Cleanup(unsubscribe)

	// Firing and cancelling concurrently must resolve to exactly one outcome:
	// either the cancel wins and nothing is delivered, or the fire wins and
	// the cancel reports the task as gone.
	for i := 0; i < 25; i++ {
		record, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
		require.NoError(t, err)
		require.Equal(t, common.StatusScheduled, record.Status)

		f.service.mu.Lock()
		timer := f.service.timers[record.ID]
		f.service.mu.Unlock()
		require.NotNil(t, timer)

		fired := make(chan struct{})
		go func() {
			timer.Reset(0)
			close(fired)
		}()
		cancelErr := f.service.CancelScheduled(record.ID)
		<-fired

		if cancelErr == nil {
			select {
			case id := <-delivered:
				assert.NotEqual(t, record.ID, id, "cancelled notification was delivered")
			case <-time.After(50 * time.Millisecond):
			}
		} else {
			require.ErrorIs(t, cancelErr, common.ErrUnknownScheduled)
			select {
			case id := <-delivered:
				assert.Equal(t, record.ID, id)
			case <-time.After(2 * time.Second):
				t.Fatal("fired notification was never delivered")
			}
		}
	}
}

func TestService_CancelScheduled_UnknownID(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())
	assert.ErrorIs(t, f.service.CancelScheduled("no-such-id"), common.ErrUnknownScheduled)
}

func TestService_ScheduledFiresAfterDelay(t *testing.T) {
	prefs := deliverAnytime()
	prefs.AdaptiveTiming = true
	f := newServiceFixture(t, prefs)

	// defers on creation, flips to high engagement so the fire-time dispatch
	// is not deferred again
	f.service.timing = NewTimingOptimizer(fixedPredictor(0.0))

	done := subscribeDelivery(t, f.service)

	record, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)
	require.Equal(t, common.StatusScheduled, record.Status)

	// fire the delayed task now instead of an hour from now
	f.service.mu.Lock()
	timer := f.service.timers[record.ID]
	f.service.mu.Unlock()
	require.NotNil(t, timer)
	timer.Reset(0)

	ev := awaitDelivery(t, done)
	assert.Equal(t, common.StatusDelivered, ev.Record.Status)
	assert.Equal(t, record.ID, ev.Record.ID)
}

func TestService_RetryUntilExhausted(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())
	f.inApp.fail = true

	done := subscribeDelivery(t, f.service)
	record, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)

	ev := awaitDelivery(t, done)
	assert.Equal(t, common.StatusFailed, ev.Record.Status)
	assert.Equal(t, record.ID, ev.Record.ID)
	assert.Equal(t, 3, f.inApp.sentCount())

	metrics := f.service.Snapshot()
	assert.Equal(t, 1, metrics.Failed)
}

func TestService_HistoryAndStats(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())

	done := subscribeDelivery(t, f.service)
	_, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)
	awaitDelivery(t, done)

	entries := f.service.GetNotificationHistory("student-1", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, common.AssignmentDueType, entries[0].Type)

	stats := f.service.GetNotificationStats("student-1")
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 1.0, stats.DeliveryRate)
}

func TestService_UpdateUserPreferences_Idempotent(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())

	threshold := common.PriorityHigh
	channels := []common.Channel{common.ChannelInApp}
	patch := common.PreferencePatch{
		PriorityThreshold: &threshold,
		Channels:          &channels,
	}

	require.NoError(t, f.service.UpdateUserPreferences(context.Background(), "student-1", patch))
	first, err := f.repo.Get(context.Background(), "student-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, f.service.UpdateUserPreferences(context.Background(), "student-1", patch))
	second, err := f.repo.Get(context.Background(), "student-1")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, *first, *second)
	assert.Equal(t, common.PriorityHigh, second.PriorityThreshold)
	assert.Equal(t, []common.Channel{common.ChannelInApp}, second.Channels)
	// untouched fields survive
	assert.False(t, second.AdaptiveTiming)
}

func TestService_OnDeliveryUnsubscribe(t *testing.T) {
	f := newServiceFixture(t, deliverAnytime())

	var mu sync.Mutex
	calls := 0
	unsubscribe := f.service.OnDelivery(func(DeliveryEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsubscribe()

	done := subscribeDelivery(t, f.service)
	_, err := f.service.CreateNotification(context.Background(), mathRequest(common.PriorityMedium))
	require.NoError(t, err)
	awaitDelivery(t, done)

	assert.Equal(t, 0, calls)
}
