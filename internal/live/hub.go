package live

import (
	"log/slog"
	"sync"
	"time"
)

// Notifier fans out post-commit events to live viewers. Emissions are fire and
// forget: a committed transfer is never rolled back because a notification
// failed, so implementations log and swallow delivery errors.
type Notifier interface {
	SprayCreated(eventID string, payload SprayCreatedPayload)
	BalanceUpdated(userID string, payload BalancePayload)
	SprayFailed(userID string, payload SprayFailedPayload)
}

// SprayView is the wire shape of a spray pushed to event rooms. Amounts are
// decimal strings.
type SprayView struct {
	ID               string    `json:"id"`
	Amount           string    `json:"amount"`
	Note             string    `json:"note,omitempty"`
	SprayerWalletID  string    `json:"sprayerWalletId"`
	ReceiverWalletID string    `json:"receiverWalletId"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TotalsView is the wire shape of event totals.
type TotalsView struct {
	TotalAmount string `json:"totalAmount"`
	TotalCount  int    `json:"totalCount"`
}

// SprayCreatedPayload goes to every subscriber of the event room.
type SprayCreatedPayload struct {
	EventID     string     `json:"eventId"`
	Spray       SprayView  `json:"spray"`
	EventTotals TotalsView `json:"eventTotals"`
}

// BalancePayload goes to the affected user's private room.
type BalancePayload struct {
	WalletID         string `json:"walletId"`
	AvailableBalance string `json:"availableBalance"`
}

// SprayFailedPayload tells a sprayer their transfer was rejected downstream.
type SprayFailedPayload struct {
	EventID string `json:"eventId,omitempty"`
	Reason  string `json:"reason"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// conn is the subset of a websocket connection the hub writes to.
type conn interface {
	WriteJSON(v any) error
}

// Session is one connected client. Writes are serialized per session so
// balance updates reach a wallet's owner in commit order.
type Session struct {
	hub    *Hub
	conn   conn
	userID string

	writeMu sync.Mutex
	rooms   map[string]struct{}
}

// UserID returns the authenticated user behind this session.
func (s *Session) UserID() string { return s.userID }

func (s *Session) write(event string, data any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(envelope{Event: event, Data: data})
}

// Hub tracks event rooms and per-user private rooms. It implements Notifier;
// emissions happen synchronously on the caller's goroutine, which is what
// preserves per-wallet ordering of balance updates.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, rooms: make(map[string]map[*Session]struct{})}
}

// Register attaches a connection as an authenticated session and auto-joins
// the user's private room.
func (h *Hub) Register(c conn, userID string) *Session {
	s := &Session{hub: h, conn: c, userID: userID, rooms: make(map[string]struct{})}
	h.join(s, userRoom(userID))
	return s
}

// Unregister removes the session from every room it joined.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range s.rooms {
		h.dropLocked(s, room)
	}
}

// JoinEvent subscribes the session to an event room.
func (h *Hub) JoinEvent(s *Session, eventID string) {
	h.join(s, eventRoom(eventID))
}

// LeaveEvent unsubscribes the session from an event room.
func (h *Hub) LeaveEvent(s *Session, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s, eventRoom(eventID))
}

// SprayCreated pushes a new spray to all subscribers of the event room.
func (h *Hub) SprayCreated(eventID string, payload SprayCreatedPayload) {
	h.emit(eventRoom(eventID), "spray.created", payload)
}

// BalanceUpdated pushes the new balance to the user's private room.
func (h *Hub) BalanceUpdated(userID string, payload BalancePayload) {
	h.emit(userRoom(userID), "user.balance.updated", payload)
}

// SprayFailed tells the user their transfer was rejected.
func (h *Hub) SprayFailed(userID string, payload SprayFailedPayload) {
	h.emit(userRoom(userID), "spray.failed", payload)
}

func (h *Hub) join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

func (h *Hub) dropLocked(s *Session, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(s.rooms, room)
}

func (h *Hub) emit(room, event string, data any) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.write(event, data); err != nil {
			h.logger.Warn("websocket emit failed", "room", room, "event", event, "error", err)
		}
	}
}

func eventRoom(eventID string) string { return "event:" + eventID }
func userRoom(userID string) string   { return "user:" + userID }
