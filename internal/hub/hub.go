// Package hub keeps every viewer of a venue/sport/date/area room in sync:
// presence, tentative selections, availability pushes and confirmations.
// Room and selection tables are advisory; the booking store alone decides
// whether a slot can be held.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotInRoom         = errors.New("connection has not joined a room")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotConfirmed      = errors.New("booking is not confirmed")
)

// Conn is one authenticated client connection.
type Conn interface {
	ID() string
	// Send queues ev for delivery. It must not block.
	Send(ev Event) error
}

type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

type Resolver interface {
	Resolve(ctx context.Context, q availability.Query) (*availability.Result, error)
}

type Checker interface {
	Check(ctx context.Context, req conflict.Request) (*conflict.Report, error)
}

type BookingLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
}

// Relay carries broadcasts to the hubs of other processes.
type Relay interface {
	Publish(ctx context.Context, msg redisrepo.RelayMessage) error
}

type client struct {
	conn     Conn
	identity Identity
	room     *domain.RoomKey
}

type selectionKey struct {
	UserID string
	Room   domain.RoomKey
}

type Config struct {
	// NodeID tags relayed messages so a process skips its own.
	NodeID string
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[domain.RoomKey]map[string]struct{}
	clients    map[string]*client
	selections map[selectionKey]map[string]domain.TimeSlot

	resolver Resolver
	checker  Checker
	bookings BookingLookup
	relay    Relay
	nodeID   string
	log      *slog.Logger
}

// New builds a hub. bookings and relay may be nil.
func New(
	resolver Resolver,
	checker Checker,
	bookings BookingLookup,
	relay Relay,
	log *slog.Logger,
	cfg Config,
) *Hub {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}

	if log == nil {
		log = slog.Default()
	}

	return &Hub{
		rooms:      make(map[domain.RoomKey]map[string]struct{}),
		clients:    make(map[string]*client),
		selections: make(map[selectionKey]map[string]domain.TimeSlot),
		resolver:   resolver,
		checker:    checker,
		bookings:   bookings,
		relay:      relay,
		nodeID:     cfg.NodeID,
		log:        log.With("component", "hub"),
	}
}

func (h *Hub) NodeID() string { return h.nodeID }

// Register admits an authenticated connection.
func (h *Hub) Register(conn Conn, id Identity) {
	h.mu.Lock()
	h.clients[conn.ID()] = &client{conn: conn, identity: id}
	h.mu.Unlock()

	h.log.Debug("client registered", "conn_id", conn.ID(), "user_id", id.UserID)
}

type delivery struct {
	conn Conn
	ev   Event
}

// deliver sends outside the hub lock. A failed send only affects that
// connection.
func (h *Hub) deliver(out []delivery) {
	for _, d := range out {
		if err := d.conn.Send(d.ev); err != nil {
			h.log.Debug("send dropped", "conn_id", d.conn.ID(), "event", d.ev.Name, "err", err)
		}
	}
}

func (h *Hub) reply(conn Conn, name, requestID string, data any) {
	h.deliver([]delivery{{conn: conn, ev: Event{Name: name, RequestID: requestID, Data: data}}})
}

func (h *Hub) replyErr(conn Conn, event, requestID string, err error) {
	h.reply(conn, ErrorEvent(event), requestID, ErrorPayload{Message: err.Error()})
}

// clientLocked returns the connection state. Caller holds h.mu.
func (h *Hub) clientLocked(connID string) (*client, error) {
	c, ok := h.clients[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return c, nil
}

// roomTargetsLocked lists room members except one connection. Caller holds h.mu.
func (h *Hub) roomTargetsLocked(key domain.RoomKey, except string, ev Event) []delivery {
	members := h.rooms[key]
	out := make([]delivery, 0, len(members))
	for id := range members {
		if id == except {
			continue
		}
		if c, ok := h.clients[id]; ok {
			out = append(out, delivery{conn: c.conn, ev: ev})
		}
	}
	return out
}

// venueRoomsLocked lists the local rooms of a venue. Caller holds h.mu.
func (h *Hub) venueRoomsLocked(venueID string) []domain.RoomKey {
	var out []domain.RoomKey
	for key := range h.rooms {
		if key.VenueID == venueID {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// userInRoomLocked reports whether another connection of the user is in the
// room. Caller holds h.mu.
func (h *Hub) userInRoomLocked(key domain.RoomKey, userID, except string) bool {
	for id := range h.rooms[key] {
		if id == except {
			continue
		}
		if c, ok := h.clients[id]; ok && c.identity.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) publish(ctx context.Context, msg redisrepo.RelayMessage) {
	if h.relay == nil {
		return
	}

	msg.Origin = h.nodeID
	if err := h.relay.Publish(ctx, msg); err != nil {
		h.log.Warn("relay publish failed", "scope", msg.Scope, "event", msg.Event, "err", err)
	}
}
