package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/service/availability"
)

// CheckAvailability replies to the sender with the availability of the
// requested room, or of the joined room when none is given.
func (h *Hub) CheckAvailability(ctx context.Context, connID, requestID string, req AvailabilityRequest) {
	h.mu.RLock()
	c, err := h.clientLocked(connID)
	if err != nil {
		h.mu.RUnlock()
		return
	}
	var room *domain.RoomKey
	if req.Room != nil {
		k := req.Room.Normalized()
		room = &k
	} else if c.room != nil {
		k := *c.room
		room = &k
	}
	h.mu.RUnlock()

	if room == nil {
		h.replyErr(c.conn, EventCheckAvailability, requestID, ErrNotInRoom)
		return
	}
	if err := validateRoom(*room); err != nil {
		h.replyErr(c.conn, EventCheckAvailability, requestID, err)
		return
	}

	res, err := h.resolve(ctx, *room, c.identity.UserID)
	if err != nil {
		h.replyErr(c.conn, EventCheckAvailability, requestID, err)
		return
	}

	h.reply(c.conn, EventAvailabilityUpdate, requestID, AvailabilityPayload{RoomKey: *room, Availability: res})
}

// DeclareMultiDay resolves availability for several dates and replies to the
// sender only. A failing date is reported inline.
func (h *Hub) DeclareMultiDay(ctx context.Context, connID, requestID string, req MultiDayRequest) {
	h.mu.RLock()
	c, err := h.clientLocked(connID)
	h.mu.RUnlock()
	if err != nil {
		return
	}

	req.Sport = domain.NormalizeSport(req.Sport)
	if strings.TrimSpace(req.VenueID) == "" || req.Sport == "" || len(req.Dates) == 0 {
		h.replyErr(c.conn, EventCheckMultiDay, requestID, fmt.Errorf("%w: venueId, sport and dates are required", ErrInvalidRequest))
		return
	}

	payload := MultiDayPayload{
		VenueID:      req.VenueID,
		Sport:        req.Sport,
		PlayableArea: req.PlayableArea,
		Days:         make([]DayAvailability, 0, len(req.Dates)),
	}

	for _, date := range req.Dates {
		key := domain.RoomKey{VenueID: req.VenueID, Sport: req.Sport, Date: date, PlayableArea: req.PlayableArea}
		res, err := h.resolve(ctx, key, c.identity.UserID)
		if err != nil {
			// a missing venue fails the whole request, a bad date only its entry
			if errors.Is(err, availability.ErrVenueNotFound) || errors.Is(err, availability.ErrSportNotSupported) {
				h.replyErr(c.conn, EventCheckMultiDay, requestID, err)
				return
			}
			payload.Days = append(payload.Days, DayAvailability{Date: date, Error: err.Error()})
			continue
		}
		payload.Days = append(payload.Days, DayAvailability{Date: date, Availability: res})
	}

	h.reply(c.conn, EventMultiDayUpdate, requestID, payload)
}

// SlotsChanged pushes fresh availability to the given rooms here and on
// every other process.
func (h *Hub) SlotsChanged(ctx context.Context, rooms []domain.RoomKey, reason string) {
	o := &outbox{}
	for _, key := range rooms {
		o.relay(scopeSlots, key.String(), "slots-changed", slotsChanged{Room: key, Reason: reason})
	}

	for _, key := range rooms {
		h.pushAvailability(ctx, key, reason, false)
	}
	h.flush(ctx, o)
}

// pushAvailability resolves one room and broadcasts the result to its local
// members. Rooms without local members are skipped.
func (h *Hub) pushAvailability(ctx context.Context, key domain.RoomKey, reason string, refresh bool) int {
	h.mu.RLock()
	n := len(h.rooms[key])
	h.mu.RUnlock()
	if n == 0 {
		return 0
	}

	res, err := h.resolve(ctx, key, "")
	if err != nil {
		h.log.Warn("resolve for broadcast failed", "room", key.String(), "err", err)
		return 0
	}

	ev := Event{Name: EventAvailabilityUpdate, Data: AvailabilityPayload{
		RoomKey:      key,
		Reason:       reason,
		Refresh:      refresh,
		Availability: res,
	}}

	h.mu.RLock()
	out := h.roomTargetsLocked(key, "", ev)
	h.mu.RUnlock()

	h.deliver(out)
	return len(out)
}

func (h *Hub) resolve(ctx context.Context, key domain.RoomKey, userID string) (*availability.Result, error) {
	if h.resolver == nil {
		return nil, errors.New("availability is not configured")
	}
	return h.resolver.Resolve(ctx, availability.Query{
		VenueID:      key.VenueID,
		Sport:        key.Sport,
		Date:         key.Date,
		PlayableArea: key.PlayableArea,
		UserID:       userID,
	})
}
