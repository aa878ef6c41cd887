package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"classlink/internal/common"
	"classlink/internal/store"
)

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Save(ctx context.Context, n *common.SmartNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepository) UpdateStatus(ctx context.Context, id string, status common.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockNotificationRepository) ByUserID(ctx context.Context, userID string, limit, offset int) ([]*common.NotificationRecord, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*common.NotificationRecord), args.Error(1)
}

// stubAdapter records what it was asked to send and answers with a canned
// result. Safe for the dispatcher's concurrent sends.
type stubAdapter struct {
	name      common.Channel
	maxLen    int
	available bool
	fail      bool

	mu   sync.Mutex
	sent []common.SmartNotification
}

func (a *stubAdapter) Name() common.Channel { return a.name }

func (a *stubAdapter) Available() bool { return a.available }

func (a *stubAdapter) MaxContentLength() int { return a.maxLen }

func (a *stubAdapter) Send(_ context.Context, n *common.SmartNotification) (*common.DeliveryResult, error) {
	a.mu.Lock()
	a.sent = append(a.sent, *n)
	a.mu.Unlock()
	if a.fail {
		return nil, errors.New("adapter down")
	}
	return &common.DeliveryResult{Channel: a.name, Success: true}, nil
}

func (a *stubAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func (a *stubAdapter) lastMessage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1].Request.Message
}

func newStub(name common.Channel, maxLen int) *stubAdapter {
	return &stubAdapter{name: name, maxLen: maxLen, available: true}
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	history    *store.HistoryStore
	records    *MockNotificationRepository

	mu       sync.Mutex
	requeued []time.Duration
	events   []DeliveryEvent
}

func newDispatcherFixture(adapters ...common.ChannelAdapter) *dispatcherFixture {
	f := &dispatcherFixture{
		history: store.NewHistoryStore(100, 7*24*time.Hour, 0, nil),
		records: new(MockNotificationRepository),
	}
	f.records.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.dispatcher = NewDispatcher(adapters, f.history, f.records, 30*time.Second)
	f.dispatcher.Bind(
		func(n *common.SmartNotification, delay time.Duration) {
			f.mu.Lock()
			f.requeued = append(f.requeued, delay)
			f.mu.Unlock()
		},
		func(ev DeliveryEvent) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		},
	)
	return f
}

func allChannelPrefs() common.UserPreferences {
	prefs := common.DefaultPreferences()
	prefs.Channels = []common.Channel{
		common.ChannelPush, common.ChannelInApp, common.ChannelEmail,
		common.ChannelSMS, common.ChannelRealtime,
	}
	return prefs
}

func pipelineNotification(priority common.Priority) *common.SmartNotification {
	n := candidate(common.AssignmentDueType, priority, "math")
	n.MaxAttempts = 3
	return n
}

func TestDispatcher_UrgentUsesPushSMSAndRealtime(t *testing.T) {
	push := newStub(common.ChannelPush, common.MaxPushContentLength)
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	sms := newStub(common.ChannelSMS, common.MaxSMSContentLength)
	rt := newStub(common.ChannelRealtime, 0)
	f := newDispatcherFixture(push, inApp, sms, rt)

	n := pipelineNotification(common.PriorityUrgent)
	f.dispatcher.Dispatch(context.Background(), n, allChannelPrefs())

	assert.Equal(t, 1, push.sentCount())
	assert.Equal(t, 1, sms.sentCount())
	assert.Equal(t, 1, rt.sentCount())
	assert.Equal(t, 0, inApp.sentCount())
	assert.Equal(t, common.StatusDelivered, n.Status)
}

func TestDispatcher_MediumUsesInAppAndRealtime(t *testing.T) {
	push := newStub(common.ChannelPush, common.MaxPushContentLength)
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	rt := newStub(common.ChannelRealtime, 0)
	f := newDispatcherFixture(push, inApp, rt)

	n := pipelineNotification(common.PriorityMedium)
	f.dispatcher.Dispatch(context.Background(), n, allChannelPrefs())

	assert.Equal(t, 0, push.sentCount())
	assert.Equal(t, 1, inApp.sentCount())
	assert.Equal(t, 1, rt.sentCount())
}

func TestDispatcher_RespectsDisabledChannelsAndAvailability(t *testing.T) {
	push := newStub(common.ChannelPush, common.MaxPushContentLength)
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	rt := newStub(common.ChannelRealtime, 0)
	rt.available = false
	f := newDispatcherFixture(push, inApp, rt)

	prefs := allChannelPrefs()
	prefs.Channels = []common.Channel{common.ChannelInApp, common.ChannelRealtime}

	n := pipelineNotification(common.PriorityHigh)
	f.dispatcher.Dispatch(context.Background(), n, prefs)

	assert.Equal(t, 0, push.sentCount(), "push disabled by preferences")
	assert.Equal(t, 0, rt.sentCount(), "realtime adapter unavailable")
	assert.Equal(t, 1, inApp.sentCount())
	assert.Equal(t, common.StatusDelivered, n.Status)
}

func TestDispatcher_TruncatesPerChannel(t *testing.T) {
	push := newStub(common.ChannelPush, common.MaxPushContentLength)
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	f := newDispatcherFixture(push, inApp)

	long := make([]rune, 0, 400)
	for i := 0; i < 400; i++ {
		long = append(long, 'x')
	}
	n := pipelineNotification(common.PriorityHigh)
	n.Request.Message = string(long)

	f.dispatcher.Dispatch(context.Background(), n, allChannelPrefs())

	pushMsg := []rune(push.lastMessage())
	inAppMsg := []rune(inApp.lastMessage())
	require.Len(t, pushMsg, common.MaxPushContentLength)
	require.Len(t, inAppMsg, common.MaxInAppContentLength)
	assert.Equal(t, '…', pushMsg[len(pushMsg)-1])
	assert.Equal(t, '…', inAppMsg[len(inAppMsg)-1])

	// the original request is untouched
	assert.Len(t, []rune(n.Request.Message), 400)
}

func TestDispatcher_PartialFailureStillDelivers(t *testing.T) {
	push := newStub(common.ChannelPush, common.MaxPushContentLength)
	push.fail = true
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	f := newDispatcherFixture(push, inApp)

	n := pipelineNotification(common.PriorityHigh)
	f.dispatcher.Dispatch(context.Background(), n, allChannelPrefs())

	assert.Equal(t, common.StatusDelivered, n.Status)
	assert.Len(t, f.requeued, 0)

	succeeded := 0
	for _, r := range n.Results {
		if r.Success {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestDispatcher_CompleteFailureRequeuesWithBackoff(t *testing.T) {
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	inApp.fail = true
	f := newDispatcherFixture(inApp)

	n := pipelineNotification(common.PriorityMedium)
	prefs := allChannelPrefs()

	f.dispatcher.Dispatch(context.Background(), n, prefs)
	require.Len(t, f.requeued, 1)
	assert.Equal(t, 30*time.Second, f.requeued[0])
	assert.Equal(t, common.StatusPending, n.Status)

	f.dispatcher.Dispatch(context.Background(), n, prefs)
	require.Len(t, f.requeued, 2)
	assert.Equal(t, 60*time.Second, f.requeued[1])
}

func TestDispatcher_ExhaustedAttemptsIsTerminalFailure(t *testing.T) {
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	inApp.fail = true
	f := newDispatcherFixture(inApp)

	n := pipelineNotification(common.PriorityMedium)
	prefs := allChannelPrefs()

	f.dispatcher.Dispatch(context.Background(), n, prefs)
	f.dispatcher.Dispatch(context.Background(), n, prefs)
	f.dispatcher.Dispatch(context.Background(), n, prefs)

	assert.Equal(t, common.StatusFailed, n.Status)
	assert.Equal(t, 3, n.Attempts)
	assert.Len(t, f.requeued, 2, "only non-final attempts requeue")

	// exactly one terminal history entry and one terminal event
	entries := f.history.Recent(n.Request.UserID, 0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Delivered)
	require.Len(t, f.events, 1)
	assert.True(t, f.events[0].Terminal)
	assert.Equal(t, common.StatusFailed, f.events[0].Record.Status)
}

func TestDispatcher_EscalationAddsEmailOnFinalAttempt(t *testing.T) {
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	inApp.fail = true
	email := newStub(common.ChannelEmail, common.MaxEmailContentLength)
	f := newDispatcherFixture(inApp, email)

	// assignment_due escalates
	n := pipelineNotification(common.PriorityMedium)
	prefs := allChannelPrefs()

	f.dispatcher.Dispatch(context.Background(), n, prefs)
	f.dispatcher.Dispatch(context.Background(), n, prefs)
	assert.Equal(t, 0, email.sentCount(), "no escalation before the final attempt")

	f.dispatcher.Dispatch(context.Background(), n, prefs)
	assert.Equal(t, 1, email.sentCount())
	assert.Equal(t, common.StatusDelivered, n.Status, "escalation channel rescued the delivery")
}

func TestDispatcher_DeliveredHistoryEntry(t *testing.T) {
	inApp := newStub(common.ChannelInApp, common.MaxInAppContentLength)
	f := newDispatcherFixture(inApp)

	n := pipelineNotification(common.PriorityMedium)
	f.dispatcher.Dispatch(context.Background(), n, allChannelPrefs())

	entries := f.history.Recent(n.Request.UserID, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, n.ID, entries[0].ID)
	assert.Equal(t, common.AssignmentDueType, entries[0].Type)
	assert.Equal(t, "math", entries[0].Subject)
	assert.True(t, entries[0].Delivered)

	f.records.AssertCalled(t, "Save", mock.Anything, n)
}
