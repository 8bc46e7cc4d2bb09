package hub

import (
	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
)

// Client to server.
const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventCheckAvailability = "check-slot-availability"
	EventDeclareSelection  = "declare-selection"
	EventCheckMultiDay     = "check-multi-day-availability"
	EventBookingConfirmed  = "booking-confirmed"
	EventResetSelections   = "reset-selections"
)

// Server to client.
const (
	EventRoomJoined         = "room-joined"
	EventUserJoinedRoom     = "user-joined-room"
	EventUserLeftRoom       = "user-left-room"
	EventAvailabilityUpdate = "slot-availability-update"
	EventSelectionUpdate    = "slot-selection-update"
	EventConflictDetected   = "slot-conflict-detected"
	EventMultiDayUpdate     = "multi-day-availability-update"
	EventSelectionsReset    = "selections-reset"
)

// ErrorEvent names the failure reply of a client event.
func ErrorEvent(event string) string {
	return event + "-error"
}

// Event is the envelope exchanged with a connection.
type Event struct {
	Name      string `json:"event"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type Member struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type SelectionView struct {
	UserID string            `json:"userId"`
	Name   string            `json:"name,omitempty"`
	Slots  []domain.TimeSlot `json:"slots"`
}

type RoomJoinedPayload struct {
	domain.RoomKey
	Occupancy  int             `json:"occupancy"`
	Members    []Member        `json:"members"`
	Selections []SelectionView `json:"selections"`
}

type PresencePayload struct {
	domain.RoomKey
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Occupancy int    `json:"occupancy"`
}

type SelectionAction string

const (
	ActionSelect   SelectionAction = "select"
	ActionDeselect SelectionAction = "deselect"
)

type SelectionPayload struct {
	domain.RoomKey
	UserID string            `json:"userId"`
	Name   string            `json:"name,omitempty"`
	Action SelectionAction   `json:"action"`
	Slots  []domain.TimeSlot `json:"slots"`
}

type ConflictPayload struct {
	domain.RoomKey
	Conflicts []conflict.Conflict `json:"conflicts"`
}

type AvailabilityPayload struct {
	domain.RoomKey
	Reason       string               `json:"reason,omitempty"`
	Refresh      bool                 `json:"refresh,omitempty"`
	Availability *availability.Result `json:"availability"`
}

type DayAvailability struct {
	Date         string               `json:"date"`
	Availability *availability.Result `json:"availability,omitempty"`
	Error        string               `json:"error,omitempty"`
}

type MultiDayPayload struct {
	VenueID      string            `json:"venueId"`
	Sport        string            `json:"sport"`
	PlayableArea int               `json:"playableArea"`
	Days         []DayAvailability `json:"days"`
}

type BookingConfirmedPayload struct {
	BookingID      uuid.UUID              `json:"bookingId"`
	VenueID        string                 `json:"venueId"`
	Sport          string                 `json:"sport"`
	UserID         string                 `json:"userId"`
	ScheduledDates []domain.ScheduledDate `json:"scheduledDates"`
}

type SelectionsResetPayload struct {
	VenueID string `json:"venueId"`
	UserID  string `json:"userId"`
	Cleared int    `json:"cleared"`
}

// Requests carried by client events.

type JoinRequest struct {
	domain.RoomKey
}

type SelectionRequest struct {
	Slots     []domain.TimeSlot `json:"slots"`
	Action    SelectionAction   `json:"action"`
	SessionID string            `json:"sessionId,omitempty"`
}

type AvailabilityRequest struct {
	// Room defaults to the joined room when empty.
	Room *domain.RoomKey `json:"room,omitempty"`
}

type MultiDayRequest struct {
	VenueID      string   `json:"venueId"`
	Sport        string   `json:"sport"`
	Dates        []string `json:"dates"`
	PlayableArea int      `json:"playableArea"`
}

type BookingConfirmedRequest struct {
	BookingID uuid.UUID `json:"bookingId"`
}

type ResetRequest struct {
	VenueID string `json:"venueId"`
}
