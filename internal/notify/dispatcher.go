package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"classlink/internal/common"
	"classlink/internal/store"
)

const adapterTimeout = 10 * time.Second

// DeliveryEvent is emitted to observers whenever a notification reaches a
// terminal status. Exhausted retries surface here, never as an error to the
// original caller.
type DeliveryEvent struct {
	Record   *common.NotificationRecord
	Terminal bool
}

// Dispatcher selects channels by priority, invokes the adapters
// independently, and retries complete failures with linear backoff until the
// attempt budget runs out.
type Dispatcher struct {
	adapters map[common.Channel]common.ChannelAdapter
	history  *store.HistoryStore
	records  common.NotificationRepository
	backoff  time.Duration

	// set by the service before the first dispatch
	requeue func(n *common.SmartNotification, delay time.Duration)
	emit    func(ev DeliveryEvent)
}

func NewDispatcher(adapters []common.ChannelAdapter, history *store.HistoryStore, records common.NotificationRepository, backoff time.Duration) *Dispatcher {
	byName := make(map[common.Channel]common.ChannelAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	return &Dispatcher{
		adapters: byName,
		history:  history,
		records:  records,
		backoff:  backoff,
	}
}

// Bind wires the dispatcher back to the owning queue. Called once at
// composition time.
func (d *Dispatcher) Bind(requeue func(n *common.SmartNotification, delay time.Duration), emit func(ev DeliveryEvent)) {
	d.requeue = requeue
	d.emit = emit
}

// Dispatch runs one delivery attempt. At least one successful channel makes
// the notification delivered; a complete miss re-queues it with backoff
// until attempts are exhausted, which is terminal failed.
func (d *Dispatcher) Dispatch(ctx context.Context, n *common.SmartNotification, prefs common.UserPreferences) {
	n.Attempts++

	adapters := d.selectAdapters(n, prefs)

	results := make([]common.DeliveryResult, 0, len(adapters))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, adapter := range adapters {
		wg.Add(1)
		go func(adapter common.ChannelAdapter) {
			defer wg.Done()
			result := d.sendOne(ctx, adapter, n)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(adapter)
	}
	wg.Wait()

	n.Results = append(n.Results, results...)

	delivered := false
	for _, r := range results {
		if r.Success {
			delivered = true
			break
		}
	}

	switch {
	case delivered:
		d.finish(ctx, n, common.StatusDelivered)
	case n.Attempts >= n.MaxAttempts:
		log.Printf("notification %s failed on every channel, attempts exhausted", n.ID)
		d.finish(ctx, n, common.StatusFailed)
	default:
		n.Status = common.StatusPending
		delay := time.Duration(n.Attempts) * d.backoff
		log.Printf("notification %s failed on every channel, retrying in %s (attempt %d/%d)",
			n.ID, delay, n.Attempts, n.MaxAttempts)
		d.requeue(n, delay)
	}
}

// selectAdapters maps priority onto the base channel set, mirrors in-app
// delivery onto the realtime channel, escalates per the contextual rule on
// the final attempt, and intersects the lot with the user's enabled channels
// and current availability.
func (d *Dispatcher) selectAdapters(n *common.SmartNotification, prefs common.UserPreferences) []common.ChannelAdapter {
	var channels []common.Channel
	switch n.Request.Priority {
	case common.PriorityUrgent:
		channels = []common.Channel{common.ChannelPush, common.ChannelSMS}
	case common.PriorityHigh:
		channels = []common.Channel{common.ChannelPush, common.ChannelInApp}
	default:
		channels = []common.Channel{common.ChannelInApp}
	}

	channels = append(channels, common.ChannelRealtime)

	if rule := common.RuleFor(n.Request.Type); rule.Escalation && n.Attempts == n.MaxAttempts {
		channels = append(channels, common.ChannelEmail)
	}

	selected := make([]common.ChannelAdapter, 0, len(channels))
	seen := make(map[common.Channel]bool, len(channels))
	for _, ch := range channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true
		if !prefs.ChannelEnabled(ch) {
			continue
		}
		adapter, ok := d.adapters[ch]
		if !ok || !adapter.Available() {
			continue
		}
		selected = append(selected, adapter)
	}
	return selected
}

// sendOne invokes a single adapter with truncated content and its own
// timeout; failures are isolated into the result.
func (d *Dispatcher) sendOne(ctx context.Context, adapter common.ChannelAdapter, n *common.SmartNotification) common.DeliveryResult {
	send := *n
	send.Request.Message = truncate(n.Request.Message, adapter.MaxContentLength())

	sendCtx, cancel := context.WithTimeout(ctx, adapterTimeout)
	defer cancel()

	result, err := adapter.Send(sendCtx, &send)
	if err != nil {
		cerr := &common.ChannelError{Channel: adapter.Name(), Err: err}
		log.Printf("notification %s: %v", n.ID, cerr)
		return common.DeliveryResult{
			Channel: adapter.Name(),
			Success: false,
			Detail:  cerr.Error(),
			At:      time.Now(),
		}
	}
	if result == nil {
		result = &common.DeliveryResult{Channel: adapter.Name(), Success: true}
	}
	if result.At.IsZero() {
		result.At = time.Now()
	}
	return *result
}

// finish records the terminal outcome exactly once: status, analytics,
// history entry, durable record, delivery event.
func (d *Dispatcher) finish(ctx context.Context, n *common.SmartNotification, status common.Status) {
	n.Status = status
	now := time.Now()
	if status == common.StatusDelivered {
		n.Analytics.DeliveredAt = &now
	}

	d.history.Append(ctx, n.Request.UserID, common.HistoryEntry{
		ID:        n.ID,
		Type:      n.Request.Type,
		Subject:   n.Request.Subject,
		Timestamp: now,
		Delivered: status == common.StatusDelivered,
	})

	if d.records != nil {
		if err := d.records.Save(ctx, n); err != nil {
			log.Printf("failed to persist notification %s: %v", n.ID, err)
		}
	}

	if d.emit != nil {
		d.emit(DeliveryEvent{Record: n.Record(), Terminal: true})
	}
}

// truncate clips s to limit runes, ending in an ellipsis when clipped.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
