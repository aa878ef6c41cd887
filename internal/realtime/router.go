package realtime

import (
	"log"
	"sync"

	"classlink/internal/common"
)

// Handler receives one inbound frame. Handlers run on the read loop; a
// panicking or slow handler must not take the others down, so dispatch
// recovers per handler.
type Handler func(frame Frame)

// Subscription is the handle returned by On; pass it to Off to unsubscribe.
type Subscription struct {
	event Event
	id    int
}

// Sender is the outbound half the router writes through; the transport
// implements it.
type Sender interface {
	Send(frame Frame) error
	Connected() bool
}

// Router demultiplexes inbound transport events to subscribers and exposes
// the outbound notification wrappers the dispatcher uses when realtime is a
// selected channel.
type Router struct {
	mu       sync.RWMutex
	handlers map[Event]map[int]Handler
	nextID   int
	sender   Sender
}

func NewRouter() *Router {
	return &Router{handlers: make(map[Event]map[int]Handler)}
}

// Attach binds the outbound sender. Called once at composition time.
func (r *Router) Attach(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = s
}

func (r *Router) On(event Event, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[event] == nil {
		r.handlers[event] = make(map[int]Handler)
	}
	r.nextID++
	r.handlers[event][r.nextID] = h
	return Subscription{event: event, id: r.nextID}
}

func (r *Router) Off(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hs, ok := r.handlers[sub.event]; ok {
		delete(hs, sub.id)
	}
}

// Dispatch fans a frame out to every subscriber of event.
func (r *Router) Dispatch(event Event, frame Frame) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.handlers[event]))
	for _, h := range r.handlers[event] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("realtime handler panic on %s: %v", event, rec)
				}
			}()
			h(frame)
		}()
	}
}

// Connected reports whether the outbound side can deliver right now.
func (r *Router) Connected() bool {
	r.mu.RLock()
	s := r.sender
	r.mu.RUnlock()
	return s != nil && s.Connected()
}

func (r *Router) send(frame Frame) error {
	r.mu.RLock()
	s := r.sender
	r.mu.RUnlock()
	if s == nil {
		return common.ErrNotConnected
	}
	return s.Send(frame)
}

// BroadcastNotification emits a notification payload to every member of a
// room.
func (r *Router) BroadcastNotification(room string, record *common.NotificationRecord) error {
	return r.send(Frame{
		Event:   string(EventNotification),
		Room:    room,
		Payload: mustPayload(record),
	})
}

// SendNotification delivers a notification payload to specific users.
func (r *Router) SendNotification(targets []string, record *common.NotificationRecord) error {
	for _, target := range targets {
		if err := r.send(Frame{
			Event:   string(EventNotification),
			To:      target,
			Payload: mustPayload(record),
		}); err != nil {
			return err
		}
	}
	return nil
}
