package memory

import (
	"context"
	"fmt"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/shopspring/decimal"
)

type venueRepo struct {
	s    *Store
	inTx bool
}

func (r *venueRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *venueRepo) Get(ctx context.Context, id string) (*domain.Venue, error) {
	const op = "memory.venueRepo.Get"

	defer r.lock()()

	v, ok := r.s.st.venues[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &v, nil
}

func (r *venueRepo) Create(ctx context.Context, v *domain.Venue) error {
	const op = "memory.venueRepo.Create"

	defer r.lock()()

	if _, ok := r.s.st.venues[v.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrVenueAlreadyExist)
	}

	r.s.st.venues[v.ID] = *v

	return nil
}

func (r *venueRepo) IncrementCounters(ctx context.Context, id string, bookings int64, owed decimal.Decimal) error {
	const op = "memory.venueRepo.IncrementCounters"

	defer r.lock()()

	v, ok := r.s.st.venues[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	v.TotalBookings += bookings
	v.AmountOwed = v.AmountOwed.Add(owed)
	r.s.st.venues[id] = v

	return nil
}
