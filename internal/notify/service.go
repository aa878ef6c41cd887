package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"classlink/internal/common"
	"classlink/internal/config"
	"classlink/internal/store"
)

// Metrics counts pipeline outcomes since process start.
type Metrics struct {
	Created    int            `json:"created"`
	Filtered   int            `json:"filtered"`
	Scheduled  int            `json:"scheduled"`
	Delivered  int            `json:"delivered"`
	Failed     int            `json:"failed"`
	FilteredBy map[string]int `json:"filtered_by"`
}

// Service is the notification pipeline's entry point. Triggers submit
// requests here; the service filters, times, queues and dispatches them, and
// folds terminal outcomes into history.
type Service struct {
	cfg        config.NotificationConfig
	pipeline   *FilterPipeline
	timing     *TimingOptimizer
	dispatcher *Dispatcher
	prefs      *store.PreferenceStore
	history    *store.HistoryStore
	records    common.NotificationRepository
	resolver   common.ContextResolver

	mu           sync.Mutex
	queue        []*common.SmartNotification
	timers       map[string]*time.Timer
	delayed      map[string]*common.SmartNotification
	listeners    map[int]func(DeliveryEvent)
	nextListener int
	metrics      Metrics

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	cfg config.NotificationConfig,
	dispatcher *Dispatcher,
	prefs *store.PreferenceStore,
	history *store.HistoryStore,
	records common.NotificationRepository,
	resolver common.ContextResolver,
	predictor common.EngagementPredictor,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:        cfg,
		pipeline:   NewFilterPipeline(),
		timing:     NewTimingOptimizer(predictor),
		dispatcher: dispatcher,
		prefs:      prefs,
		history:    history,
		records:    records,
		resolver:   resolver,
		timers:     make(map[string]*time.Timer),
		delayed:    make(map[string]*common.SmartNotification),
		listeners:  make(map[int]func(DeliveryEvent)),
		metrics:    Metrics{FilteredBy: make(map[string]int)},
		kick:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	dispatcher.Bind(s.requeue, s.emit)

	s.wg.Add(1)
	go s.run()
	return s
}

// CreateNotification submits one request to the pipeline and returns its
// record. FilteredOut and ScheduledDeferral are outcomes, not errors; the
// record's status tells them apart. Delivery itself is asynchronous.
func (s *Service) CreateNotification(ctx context.Context, req common.NotificationRequest) (*common.NotificationRecord, error) {
	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid notification request: %w", err)
	}

	now := time.Now()
	uc := s.userContext(ctx, req.UserID)
	n := &common.SmartNotification{
		ID:          uuid.NewString(),
		Request:     req,
		Context:     common.ContextFor(req.Type),
		UserSegment: uc.Role,
		Status:      common.StatusPending,
		MaxAttempts: s.cfg.MaxAttempts,
		Analytics:   common.Analytics{CreatedAt: now},
	}

	s.mu.Lock()
	s.metrics.Created++
	s.mu.Unlock()

	prefs := s.prefs.Get(ctx, req.UserID)
	history := s.history.Recent(req.UserID, 0)

	if admitted, filteredBy := s.pipeline.Admit(n, uc, history, prefs, now); !admitted {
		n.Status = common.StatusFiltered
		n.FilteredBy = filteredBy
		s.mu.Lock()
		s.metrics.Filtered++
		s.metrics.FilteredBy[filteredBy]++
		s.mu.Unlock()
		s.persist(ctx, n)
		log.Printf("notification %s filtered by %s", n.ID, filteredBy)
		return n.Record(), nil
	}

	decision := s.timing.Decide(n, prefs, now)
	if !decision.SendNow {
		s.schedule(n, decision)
		s.persist(ctx, n)
		return n.Record(), nil
	}

	s.enqueue(n)
	return n.Record(), nil
}

// CancelScheduled removes a not-yet-fired scheduled or retrying
// notification from the delayed-task set.
func (s *Service) CancelScheduled(id string) error {
	s.mu.Lock()
	timer, ok := s.timers[id]
	if !ok || !timer.Stop() {
		// Stop reporting false means the timer already fired; the task is
		// back on the queue and no longer cancellable.
		s.mu.Unlock()
		return common.ErrUnknownScheduled
	}
	delete(s.timers, id)
	n := s.delayed[id]
	delete(s.delayed, id)
	s.mu.Unlock()

	if n != nil {
		n.Status = common.StatusFiltered
		n.FilteredBy = "cancelled"
		n.ScheduledAt = nil
		s.persist(context.Background(), n)
	}
	log.Printf("scheduled notification %s cancelled", id)
	return nil
}

// UpdateUserPreferences merges a partial update onto the user's effective
// preferences.
func (s *Service) UpdateUserPreferences(ctx context.Context, userID string, patch common.PreferencePatch) error {
	return s.prefs.Update(ctx, userID, patch)
}

// GetNotificationHistory returns up to limit history entries, most recent
// last. Limit defaults to 50.
func (s *Service) GetNotificationHistory(userID string, limit int) []common.HistoryEntry {
	if limit <= 0 {
		limit = 50
	}
	return s.history.Recent(userID, limit)
}

// GetNotificationStats summarizes the user's delivery history.
func (s *Service) GetNotificationStats(userID string) common.NotificationStats {
	return s.history.Stats(userID)
}

// OnDelivery subscribes to terminal delivery events; the returned function
// unsubscribes.
func (s *Service) OnDelivery(fn func(DeliveryEvent)) func() {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the pipeline metrics.
func (s *Service) Snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics
	m.FilteredBy = make(map[string]int, len(s.metrics.FilteredBy))
	for k, v := range s.metrics.FilteredBy {
		m.FilteredBy[k] = v
	}
	return m
}

// Shutdown stops the queue worker and every delayed task.
func (s *Service) Shutdown() {
	s.cancel()
	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	log.Println("notification service shutdown complete")
}

func (s *Service) userContext(ctx context.Context, userID string) common.UserContext {
	if s.resolver == nil {
		return common.UserContext{}
	}
	uc, err := s.resolver.ContextFor(ctx, userID)
	if err != nil {
		log.Printf("user context lookup failed for %s: %v", userID, err)
		return common.UserContext{}
	}
	return uc
}

// schedule registers a cancellable delayed task that re-enters the queue at
// the decided time.
func (s *Service) schedule(n *common.SmartNotification, decision Decision) {
	at := decision.ScheduledAt
	n.Status = common.StatusScheduled
	n.ScheduledAt = &at

	s.mu.Lock()
	s.metrics.Scheduled++
	s.mu.Unlock()
	log.Printf("notification %s scheduled for %s (%s)", n.ID, at.Format(time.RFC3339), decision.Reason)

	s.delay(n, time.Until(at))
}

// requeue is the dispatcher's callback for retry backoff.
func (s *Service) requeue(n *common.SmartNotification, delay time.Duration) {
	s.delay(n, delay)
}

func (s *Service) delay(n *common.SmartNotification, d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed[n.ID] = n
	s.timers[n.ID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, owned := s.delayed[n.ID]
		delete(s.timers, n.ID)
		delete(s.delayed, n.ID)
		s.mu.Unlock()
		// A concurrent cancel that won the race removes the task first.
		if !owned {
			return
		}
		n.Status = common.StatusPending
		s.enqueue(n)
	})
}

func (s *Service) enqueue(n *common.SmartNotification) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// run drains the queue on enqueue and on the periodic tick. Each
// notification is processed on its own goroutine so one slow dispatch never
// blocks the rest of the queue.
func (s *Service) run() {
	defer s.wg.Done()
	interval := s.cfg.QueueInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			s.drain()
		case <-ticker.C:
			s.drain()
		}
	}
}

func (s *Service) drain() {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, n := range batch {
		s.wg.Add(1)
		go func(n *common.SmartNotification) {
			defer s.wg.Done()
			s.process(n)
		}(n)
	}
}

func (s *Service) process(n *common.SmartNotification) {
	if n.Analytics.ProcessedAt == nil {
		now := time.Now()
		n.Analytics.ProcessedAt = &now
	}
	prefs := s.prefs.Get(s.ctx, n.Request.UserID)
	s.dispatcher.Dispatch(s.ctx, n, prefs)
}

func (s *Service) emit(ev DeliveryEvent) {
	s.mu.Lock()
	switch ev.Record.Status {
	case common.StatusDelivered:
		s.metrics.Delivered++
	case common.StatusFailed:
		s.metrics.Failed++
	}
	listeners := make([]func(DeliveryEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("delivery listener panic: %v", rec)
				}
			}()
			fn(ev)
		}()
	}
}

func (s *Service) persist(ctx context.Context, n *common.SmartNotification) {
	if s.records == nil {
		return
	}
	if err := s.records.Save(ctx, n); err != nil {
		log.Printf("failed to persist notification %s: %v", n.ID, err)
	}
}

func validateRequest(req common.NotificationRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}
	if req.Type == "" {
		return fmt.Errorf("type is required")
	}
	if req.Priority.Rank() == 0 {
		return fmt.Errorf("priority must be one of low, medium, high, urgent")
	}
	return nil
}
