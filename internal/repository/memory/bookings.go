package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
)

type bookingRepo struct {
	s    *Store
	inTx bool
}

func (r *bookingRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *bookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.bookingRepo.Get"

	defer r.lock()()

	row, ok := r.s.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return row.materialize(), nil
}

func (r *bookingRepo) FindOpenHold(ctx context.Context, key repository.SessionKey) (*domain.Booking, error) {
	const op = "memory.bookingRepo.FindOpenHold"

	defer r.lock()()

	var best *bookingRow
	for _, row := range r.s.st.bookings {
		h := &row.header
		if h.VenueID != key.VenueID || h.Sport != key.Sport ||
			h.UserID != key.UserID || h.SessionID != key.SessionID || !h.IsHold() {
			continue
		}
		if best == nil || row.seq > best.seq {
			best = row
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
	}

	return best.materialize(), nil
}

func (r *bookingRepo) FindBySession(ctx context.Context, venueID, sport, sessionID string) (*domain.Booking, error) {
	const op = "memory.bookingRepo.FindBySession"

	defer r.lock()()

	var best *bookingRow
	for _, row := range r.s.st.bookings {
		h := &row.header
		if h.VenueID != venueID || h.Sport != sport || h.SessionID != sessionID {
			continue
		}
		if best == nil {
			best = row
			continue
		}
		bestHold, rowHold := best.header.IsHold(), h.IsHold()
		if rowHold != bestHold {
			if rowHold {
				best = row
			}
			continue
		}
		if row.seq > best.seq {
			best = row
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return best.materialize(), nil
}

func (r *bookingRepo) CreateHold(ctx context.Context, b *domain.Booking) error {
	const op = "memory.bookingRepo.CreateHold"

	defer r.lock()()

	if _, ok := r.s.st.venues[b.VenueID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, ok := r.s.st.bookings[b.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	h := *b
	h.ScheduledDates = nil
	h.Status = domain.BookingPending
	h.IsLocked = true
	h.IsPaymentConfirm = false
	h.UpdatedAt = h.CreatedAt

	r.s.st.seq++
	r.s.st.bookings[h.ID] = &bookingRow{header: h, seq: r.s.st.seq}

	return nil
}

func (r *bookingRepo) ClaimSlot(ctx context.Context, c repository.SlotClaim, now time.Time) error {
	const op = "memory.bookingRepo.ClaimSlot"

	defer r.lock()()

	row, ok := r.s.st.bookings[c.BookingID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	entry := slotEntry{Date: c.Date, Slot: c.Slot}
	key := slotTuple{
		VenueID: c.VenueID,
		Sport:   c.Sport,
		Date:    c.Date,
		Area:    c.Slot.PlayableArea,
		Start:   c.Slot.StartTime,
		End:     c.Slot.EndTime,
	}

	if owner, taken := r.s.st.slots[key]; taken {
		if owner == c.BookingID {
			return nil
		}

		other := r.s.st.bookings[owner]
		if other != nil && !reclaimable(&other.header, now) {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}

		r.s.st.detach(owner, key)
	}

	r.s.st.slots[key] = c.BookingID
	row.slots = append(row.slots, entry)

	return nil
}

func (r *bookingRepo) ExtendHold(ctx context.Context, id uuid.UUID, lockedUntil time.Time) error {
	const op = "memory.bookingRepo.ExtendHold"

	defer r.lock()()

	row, ok := r.s.st.bookings[id]
	if !ok || row.header.IsPaymentConfirm {
		return fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
	}

	t := lockedUntil
	row.header.IsLocked = true
	row.header.LockedUntil = &t
	row.header.UpdatedAt = time.Now()

	return nil
}

func (r *bookingRepo) ReleaseSlot(
	ctx context.Context,
	id uuid.UUID,
	date string,
	slot domain.TimeSlot,
) (bool, int, error) {
	defer r.lock()()

	row, ok := r.s.st.bookings[id]
	if !ok {
		return false, 0, nil
	}

	key := tupleOf(&row.header, slotEntry{Date: date, Slot: slot})
	removed := r.s.st.detach(id, key)

	return removed, len(row.slots), nil
}

func (r *bookingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "memory.bookingRepo.Delete"

	defer r.lock()()

	if !r.s.st.remove(id) {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *bookingRepo) ListOccupancy(
	ctx context.Context,
	venueID, sport, date string,
	now time.Time,
) ([]domain.Occupancy, error) {
	defer r.lock()()

	var out []domain.Occupancy
	for key, owner := range r.s.st.slots {
		if key.VenueID != venueID || key.Sport != sport || key.Date != date {
			continue
		}

		h := &r.s.st.bookings[owner].header
		hold := h.IsHold()
		if hold && !h.HoldActive(now) {
			continue
		}
		if !hold && !h.Status.Occupies() {
			continue
		}

		o := domain.Occupancy{
			Slot:        domain.TimeSlot{StartTime: key.Start, EndTime: key.End, PlayableArea: key.Area},
			Date:        key.Date,
			BookingID:   h.ID,
			UserID:      h.UserID,
			UserDisplay: h.UserDisplay,
			SessionID:   h.SessionID,
			Status:      h.Status,
			IsHold:      hold,
		}
		if h.LockedUntil != nil {
			t := *h.LockedUntil
			o.LockedUntil = &t
		}
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot.PlayableArea != out[j].Slot.PlayableArea {
			return out[i].Slot.PlayableArea < out[j].Slot.PlayableArea
		}
		return out[i].Slot.Key() < out[j].Slot.Key()
	})

	return out, nil
}

func (r *bookingRepo) Confirm(ctx context.Context, id uuid.UUID, p repository.Payment, now time.Time) error {
	const op = "memory.bookingRepo.Confirm"

	defer r.lock()()

	row, ok := r.s.st.bookings[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if row.header.IsPaymentConfirm {
		return fmt.Errorf("%s:%w", op, repository.ErrAlreadyConfirmed)
	}

	h := &row.header
	h.Status = domain.BookingConfirmed
	h.IsPaymentConfirm = true
	h.IsLocked = false
	h.LockedUntil = nil
	h.BaseAmount = p.BaseAmount
	h.Fees = p.Fees
	h.TotalAmount = p.TotalAmount
	h.PaymentRef = p.PaymentRef
	h.UpdatedAt = now

	return nil
}

func (r *bookingRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	defer r.lock()()

	var rows []*bookingRow
	for _, row := range r.s.st.bookings {
		if expiredHold(&row.header, now) {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].header.LockedUntil.Before(*rows[j].header.LockedUntil)
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]domain.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.materialize())
	}

	return out, nil
}

func (r *bookingRepo) DeleteExpiredHold(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "memory.bookingRepo.DeleteExpiredHold"

	defer r.lock()()

	row, ok := r.s.st.bookings[id]
	if !ok || !expiredHold(&row.header, now) {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	r.s.st.remove(id)

	return nil
}

// reclaimable reports whether the booking no longer blocks its slots.
func reclaimable(b *domain.Booking, now time.Time) bool {
	if b.IsHold() {
		return expiredHold(b, now)
	}
	return !b.Status.Occupies()
}

func expiredHold(b *domain.Booking, now time.Time) bool {
	return b.IsHold() && b.LockedUntil != nil && !b.LockedUntil.After(now)
}

// detach drops one slot from a booking and frees the tuple.
func (st *state) detach(id uuid.UUID, key slotTuple) bool {
	row, ok := st.bookings[id]
	if !ok {
		return false
	}

	for i, e := range row.slots {
		if tupleOf(&row.header, e) == key {
			row.slots = append(row.slots[:i], row.slots[i+1:]...)
			if st.slots[key] == id {
				delete(st.slots, key)
			}
			return true
		}
	}

	return false
}

func (st *state) remove(id uuid.UUID) bool {
	row, ok := st.bookings[id]
	if !ok {
		return false
	}

	for _, e := range row.slots {
		key := tupleOf(&row.header, e)
		if st.slots[key] == id {
			delete(st.slots, key)
		}
	}
	delete(st.bookings, id)

	return true
}
