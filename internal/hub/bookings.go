package hub

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
)

// BookingConfirmed announces a paid booking to every room it touches, here
// and on other processes, and clears selections in those rooms.
func (h *Hub) BookingConfirmed(ctx context.Context, b *domain.Booking) {
	o := h.bookingConfirmedLocal(b)
	o.relay(scopeBooking, b.VenueID, EventBookingConfirmed, b)
	h.flush(ctx, o)
}

// ConfirmFromClient handles a client's booking-confirmed event. The booking
// is re-read so a client can only announce a booking that is really paid.
func (h *Hub) ConfirmFromClient(ctx context.Context, connID, requestID string, req BookingConfirmedRequest) {
	h.mu.RLock()
	c, err := h.clientLocked(connID)
	h.mu.RUnlock()
	if err != nil {
		return
	}

	if req.BookingID == uuid.Nil || h.bookings == nil {
		h.replyErr(c.conn, EventBookingConfirmed, requestID, fmt.Errorf("%w: bookingId is required", ErrInvalidRequest))
		return
	}

	b, err := h.bookings.Get(ctx, req.BookingID)
	if err != nil {
		h.replyErr(c.conn, EventBookingConfirmed, requestID, err)
		return
	}

	if !b.IsPaymentConfirm {
		h.replyErr(c.conn, EventBookingConfirmed, requestID, ErrNotConfirmed)
		return
	}

	h.BookingConfirmed(ctx, b)
}

func (h *Hub) bookingConfirmedLocal(b *domain.Booking) *outbox {
	o := &outbox{}

	payload := BookingConfirmedPayload{
		BookingID:      b.ID,
		VenueID:        b.VenueID,
		Sport:          b.Sport,
		UserID:         b.UserID,
		ScheduledDates: b.ScheduledDates,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, key := range b.Rooms() {
		if _, ok := h.rooms[key]; !ok {
			continue
		}
		o.add(h.roomTargetsLocked(key, "", Event{Name: EventBookingConfirmed, Data: payload})...)

		for sk := range h.selections {
			if sk.Room == key {
				delete(h.selections, sk)
			}
		}
	}

	return o
}
