package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classlink/internal/common"
	"classlink/internal/config"
)

// State is the transport connection state machine:
// disconnected -> connecting -> connected -> {disconnected | error}, with
// error -> connecting retried automatically under the reconnect budget.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Identity is presented to the backend during the handshake.
type Identity struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type ConnectionInfo struct {
	SessionID   string    `json:"session_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type RoomInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// TransportStatus is the snapshot returned by Status.
type TransportStatus struct {
	State             State    `json:"state"`
	ReconnectAttempts int      `json:"reconnect_attempts"`
	JoinedRooms       []string `json:"joined_rooms"`
}

type joinWait struct {
	done chan struct{}
	info RoomInfo
	err  error
}

// Transport owns the single persistent websocket connection to the
// live-messaging backend. All sends fail fast with ErrNotConnected while the
// connection is down; reconnection runs on its own goroutine and never
// blocks callers.
type Transport struct {
	cfg    config.RealtimeConfig
	router *Router

	mu                sync.Mutex
	state             State
	conn              *websocket.Conn
	identity          Identity
	sessionID         string
	joined            map[string]string // roomID -> room type
	pending           map[string]chan Frame
	inflightJoins     map[string]*joinWait
	reconnectAttempts int
	reconnecting      bool
	shutdown          bool

	writeMu sync.Mutex
}

func NewTransport(cfg config.RealtimeConfig, router *Router) *Transport {
	t := &Transport{
		cfg:           cfg,
		router:        router,
		state:         StateDisconnected,
		joined:        make(map[string]string),
		pending:       make(map[string]chan Frame),
		inflightJoins: make(map[string]*joinWait),
	}
	router.Attach(t)
	return t
}

// Connect performs the handshake and transitions to connected. It fails with
// a TimeoutError when the backend does not complete the handshake within the
// configured window.
func (t *Transport) Connect(ctx context.Context, identity Identity) (*ConnectionInfo, error) {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return nil, common.ErrAlreadyConnected
	}
	t.state = StateConnecting
	t.identity = identity
	t.shutdown = false
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		t.mu.Lock()
		t.state = StateDisconnected
		t.mu.Unlock()
		return nil, err
	}

	info := &ConnectionInfo{SessionID: uuid.NewString(), ConnectedAt: time.Now()}

	t.mu.Lock()
	t.conn = conn
	t.sessionID = info.SessionID
	t.state = StateConnected
	t.reconnectAttempts = 0
	t.mu.Unlock()

	go t.readPump(conn)
	t.emitStatus(StateConnected)
	return info, nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := t.signToken()
	if err != nil {
		return nil, fmt.Errorf("failed to sign handshake token: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, t.cfg.URL, header)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			return nil, &common.TimeoutError{Op: "connect", After: t.cfg.HandshakeTimeout}
		}
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	return conn, nil
}

func (t *Transport) signToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  t.identity.UserID,
		"role": t.identity.Role,
		"name": t.identity.DisplayName,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(t.cfg.Secret))
}

// Disconnect tears the session down. Room membership is forgotten; a later
// Connect starts a fresh session.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.shutdown = true
	conn := t.conn
	t.conn = nil
	t.state = StateDisconnected
	t.joined = make(map[string]string)
	t.failPendingLocked(common.ErrConnectionClosed)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	t.emitStatus(StateDisconnected)
}

// Connected implements the router's Sender.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateConnected
}

// Status reports the current connection snapshot.
func (t *Transport) Status() TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms := make([]string, 0, len(t.joined))
	for id := range t.joined {
		rooms = append(rooms, id)
	}
	return TransportStatus{
		State:             t.state,
		ReconnectAttempts: t.reconnectAttempts,
		JoinedRooms:       rooms,
	}
}

// JoinRoom announces membership in a room and waits for the backend's
// acknowledgement. Joining an already-joined room is a no-op success, and
// concurrent joins of the same room coalesce into a single join event.
func (t *Transport) JoinRoom(ctx context.Context, roomID, roomType string) (*RoomInfo, error) {
	t.mu.Lock()
	if t.state != StateConnected {
		t.mu.Unlock()
		return nil, common.ErrNotConnected
	}
	if typ, ok := t.joined[roomID]; ok {
		t.mu.Unlock()
		return &RoomInfo{ID: roomID, Type: typ}, nil
	}
	if wait, ok := t.inflightJoins[roomID]; ok {
		t.mu.Unlock()
		select {
		case <-wait.done:
			if wait.err != nil {
				return nil, wait.err
			}
			info := wait.info
			return &info, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	wait := &joinWait{done: make(chan struct{})}
	t.inflightJoins[roomID] = wait
	ref := uuid.NewString()
	ack := make(chan Frame, 1)
	t.pending[ref] = ack
	t.mu.Unlock()

	err := t.Send(Frame{Event: frameJoin, Room: roomID, RoomType: roomType, Ref: ref})
	if err == nil {
		err = t.awaitJoinAck(ctx, roomID, roomType, ref, ack, wait)
	}

	t.mu.Lock()
	delete(t.pending, ref)
	delete(t.inflightJoins, roomID)
	wait.err = err
	t.mu.Unlock()
	close(wait.done)

	if err != nil {
		return nil, err
	}
	info := wait.info
	return &info, nil
}

func (t *Transport) awaitJoinAck(ctx context.Context, roomID, roomType, ref string, ack chan Frame, wait *joinWait) error {
	timer := time.NewTimer(t.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case frame := <-ack:
		if frame.Error != "" {
			return fmt.Errorf("join %s rejected: %s", roomID, frame.Error)
		}
		t.mu.Lock()
		t.joined[roomID] = roomType
		t.mu.Unlock()
		wait.info = RoomInfo{ID: roomID, Type: roomType}
		return nil
	case <-timer.C:
		return &common.TimeoutError{Op: "join room " + roomID, After: t.cfg.JoinTimeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveRoom forgets local membership and tells the backend if connected.
func (t *Transport) LeaveRoom(roomID string) {
	t.mu.Lock()
	_, wasMember := t.joined[roomID]
	delete(t.joined, roomID)
	connected := t.state == StateConnected
	t.mu.Unlock()

	if wasMember && connected {
		if err := t.Send(Frame{Event: frameLeave, Room: roomID}); err != nil {
			log.Printf("leave room %s failed: %v", roomID, err)
		}
	}
}

// SendMessage posts a chat message to a room.
func (t *Transport) SendMessage(roomID, content, msgType string) error {
	return t.Send(Frame{
		Event:   string(EventMessage),
		Room:    roomID,
		From:    t.senderID(),
		Payload: mustPayload(map[string]string{"content": content, "type": msgType}),
	})
}

// SendPrivateMessage posts a direct message to one recipient.
func (t *Transport) SendPrivateMessage(recipientID, content, msgType string) error {
	return t.Send(Frame{
		Event:   string(EventMessage),
		To:      recipientID,
		From:    t.senderID(),
		Payload: mustPayload(map[string]string{"content": content, "type": msgType}),
	})
}

// SendTypingIndicator signals typing state in a room.
func (t *Transport) SendTypingIndicator(roomID string, isTyping bool) error {
	event := EventTypingStop
	if isTyping {
		event = EventTypingStart
	}
	return t.Send(Frame{Event: string(event), Room: roomID, From: t.senderID()})
}

// StartCollaboration opens a collaborative-editing session.
func (t *Transport) StartCollaboration(sessionID, documentID string) error {
	return t.Send(Frame{
		Event:   frameCollaborationStart,
		From:    t.senderID(),
		Payload: mustPayload(map[string]string{"session_id": sessionID, "document_id": documentID}),
	})
}

// SendCollaborationUpdate propagates one editing operation.
func (t *Transport) SendCollaborationUpdate(sessionID string, operation interface{}) error {
	return t.Send(Frame{
		Event: string(EventCollaborationUpdate),
		From:  t.senderID(),
		Payload: mustPayload(map[string]interface{}{
			"session_id": sessionID,
			"operation":  operation,
		}),
	})
}

// EndCollaboration closes a collaborative-editing session.
func (t *Transport) EndCollaboration(sessionID string) error {
	return t.Send(Frame{
		Event:   frameCollaborationEnd,
		From:    t.senderID(),
		Payload: mustPayload(map[string]string{"session_id": sessionID}),
	})
}

func (t *Transport) senderID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.identity.UserID
}

// Send writes one frame. It fails immediately with ErrNotConnected while the
// connection is down or reconnecting; nothing is queued.
func (t *Transport) Send(frame Frame) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.Unlock()
	if conn == nil || !connected {
		return common.ErrNotConnected
	}
	return t.write(conn, frame)
}

func (t *Transport) write(conn *websocket.Conn, frame Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (t *Transport) readPump(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.handleDrop(conn, err)
			return
		}
		t.route(frame)
	}
}

func (t *Transport) route(frame Frame) {
	if frame.Ref != "" {
		t.mu.Lock()
		ack, ok := t.pending[frame.Ref]
		t.mu.Unlock()
		if ok {
			select {
			case ack <- frame:
			default:
			}
			return
		}
		// unknown ref: a late ack for an abandoned call, drop it
		return
	}

	switch Event(frame.Event) {
	case EventMessage, EventNotification, EventUserJoined, EventUserLeft,
		EventTypingStart, EventTypingStop, EventCollaborationUpdate, EventRoomUpdate:
		t.router.Dispatch(Event(frame.Event), frame)
	default:
		log.Printf("unhandled realtime frame: %s", frame.Event)
	}
}

// handleDrop reacts to a read failure on the active connection: the state
// machine moves to error, pending calls fail, and the reconnect loop takes
// over. Drops on stale connections are ignored.
func (t *Transport) handleDrop(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	if t.shutdown {
		t.mu.Unlock()
		return
	}
	t.state = StateError
	t.failPendingLocked(common.ErrConnectionClosed)
	spawn := !t.reconnecting
	t.reconnecting = true
	t.mu.Unlock()

	log.Printf("realtime connection dropped: %v", err)
	_ = conn.Close()
	t.emitStatus(StateError)
	// The running loop owns the retry when one is already in flight.
	if spawn {
		go t.reconnectLoop()
	}
}

// reconnectLoop retries the handshake with exponential backoff up to the
// configured budget, rejoining every tracked room before the connected
// status is surfaced. Observers never see a connected-but-roomless state.
func (t *Transport) reconnectLoop() {
	defer func() {
		t.mu.Lock()
		t.reconnecting = false
		t.mu.Unlock()
	}()
	for {
		t.mu.Lock()
		if t.shutdown {
			t.mu.Unlock()
			return
		}
		if t.reconnectAttempts >= t.cfg.MaxReconnects {
			t.state = StateError
			t.failPendingLocked(common.ErrReconnectExceeded)
			t.mu.Unlock()
			log.Printf("realtime reconnect budget exhausted after %d attempts", t.cfg.MaxReconnects)
			t.emitStatus(StateError)
			return
		}
		t.reconnectAttempts++
		attempt := t.reconnectAttempts
		t.state = StateConnecting
		t.mu.Unlock()

		time.Sleep(t.backoff(attempt))

		t.mu.Lock()
		if t.shutdown {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		conn, err := t.dial(context.Background())
		if err != nil {
			log.Printf("realtime reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		t.mu.Lock()
		if t.shutdown {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()
		go t.readPump(conn)

		if err := t.rejoinRooms(conn); err != nil {
			log.Printf("realtime rejoin failed, retrying: %v", err)
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			_ = conn.Close()
			continue
		}

		t.mu.Lock()
		if t.shutdown {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		if t.conn != conn {
			// Dropped again right after the rejoin; stay on this loop.
			t.mu.Unlock()
			continue
		}
		t.state = StateConnected
		t.reconnectAttempts = 0
		t.mu.Unlock()
		log.Printf("realtime reconnected on attempt %d", attempt)
		t.emitStatus(StateConnected)
		return
	}
}

// rejoinRooms re-announces every tracked room, one join frame and one
// acknowledgement each.
func (t *Transport) rejoinRooms(conn *websocket.Conn) error {
	t.mu.Lock()
	rooms := make(map[string]string, len(t.joined))
	for id, typ := range t.joined {
		rooms[id] = typ
	}
	t.mu.Unlock()

	for id, typ := range rooms {
		ref := uuid.NewString()
		ack := make(chan Frame, 1)
		t.mu.Lock()
		t.pending[ref] = ack
		t.mu.Unlock()

		err := t.write(conn, Frame{Event: frameJoin, Room: id, RoomType: typ, Ref: ref})
		if err == nil {
			timer := time.NewTimer(t.cfg.JoinTimeout)
			select {
			case frame := <-ack:
				if frame.Error != "" {
					err = fmt.Errorf("rejoin %s rejected: %s", id, frame.Error)
				}
			case <-timer.C:
				err = &common.TimeoutError{Op: "rejoin room " + id, After: t.cfg.JoinTimeout}
			}
			timer.Stop()
		}

		t.mu.Lock()
		delete(t.pending, ref)
		t.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= t.cfg.ReconnectMax {
			return t.cfg.ReconnectMax
		}
	}
	if d > t.cfg.ReconnectMax {
		d = t.cfg.ReconnectMax
	}
	return d
}

// failPendingLocked rejects every in-flight acked operation. Callers hold mu.
func (t *Transport) failPendingLocked(err error) {
	for ref, ack := range t.pending {
		select {
		case ack <- Frame{Ref: ref, Error: err.Error()}:
		default:
		}
		delete(t.pending, ref)
	}
}

func (t *Transport) emitStatus(state State) {
	payload, _ := json.Marshal(map[string]string{"status": string(state)})
	t.router.Dispatch(EventConnectionStatus, Frame{
		Event:   string(EventConnectionStatus),
		Payload: payload,
	})
}
