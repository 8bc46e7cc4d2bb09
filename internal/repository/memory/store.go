// Package memory is a process-local booking store. It gives the same
// guarantees as the postgres store within one process: every operation runs
// under a single mutex and RunTx restores a snapshot when fn fails.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
)

type slotTuple struct {
	VenueID string
	Sport   string
	Date    string
	Area    int
	Start   string
	End     string
}

type slotEntry struct {
	Date string
	Slot domain.TimeSlot
}

type bookingRow struct {
	header domain.Booking
	slots  []slotEntry
	seq    int64
}

type state struct {
	venues   map[string]domain.Venue
	bookings map[uuid.UUID]*bookingRow
	slots    map[slotTuple]uuid.UUID
	seq      int64
}

type Store struct {
	mu sync.Mutex
	st state
}

func NewStore() *Store {
	return &Store{
		st: state{
			venues:   make(map[string]domain.Venue),
			bookings: make(map[uuid.UUID]*bookingRow),
			slots:    make(map[slotTuple]uuid.UUID),
		},
	}
}

func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{s: s} }
func (s *Store) Venues() repository.VenueRepository     { return &venueRepo{s: s} }

// RunTx serializes fn against every other store operation.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()

	if err := fn(ctx, txView{s: s}); err != nil {
		s.st = snapshot
		return err
	}

	return nil
}

type txView struct {
	s *Store
}

func (t txView) Bookings() repository.BookingRepository { return &bookingRepo{s: t.s, inTx: true} }
func (t txView) Venues() repository.VenueRepository     { return &venueRepo{s: t.s, inTx: true} }

func (st state) clone() state {
	cp := state{
		venues:   make(map[string]domain.Venue, len(st.venues)),
		bookings: make(map[uuid.UUID]*bookingRow, len(st.bookings)),
		slots:    make(map[slotTuple]uuid.UUID, len(st.slots)),
		seq:      st.seq,
	}
	for k, v := range st.venues {
		cp.venues[k] = v
	}
	for k, row := range st.bookings {
		r := *row
		r.slots = append([]slotEntry(nil), row.slots...)
		cp.bookings[k] = &r
	}
	for k, v := range st.slots {
		cp.slots[k] = v
	}
	return cp
}

func tupleOf(b *domain.Booking, e slotEntry) slotTuple {
	return slotTuple{
		VenueID: b.VenueID,
		Sport:   b.Sport,
		Date:    e.Date,
		Area:    e.Slot.PlayableArea,
		Start:   e.Slot.StartTime,
		End:     e.Slot.EndTime,
	}
}

// materialize returns a copy of the booking with scheduled dates grouped
// in claim order.
func (row *bookingRow) materialize() *domain.Booking {
	b := row.header
	if b.LockedUntil != nil {
		t := *b.LockedUntil
		b.LockedUntil = &t
	}

	b.ScheduledDates = nil
	index := make(map[string]int)
	for _, e := range row.slots {
		i, ok := index[e.Date]
		if !ok {
			b.ScheduledDates = append(b.ScheduledDates, domain.ScheduledDate{Date: e.Date})
			i = len(b.ScheduledDates) - 1
			index[e.Date] = i
		}
		b.ScheduledDates[i].Slots = append(b.ScheduledDates[i].Slots, e.Slot)
	}

	return &b
}
