// Package reaper deletes holds whose lock expired without payment.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
)

// Notifier is told which rooms got slots back.
type Notifier interface {
	SlotsChanged(ctx context.Context, rooms []domain.RoomKey, reason string)
}

const ReasonExpired = "hold-expired"

type Config struct {
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

type Reaper struct {
	store    repository.Store
	notifier Notifier
	log      *slog.Logger
	cfg      Config
}

func New(store repository.Store, notifier Notifier, log *slog.Logger, cfg Config) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Reaper{
		store:    store,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.log.Info("hold reaper started", "interval", r.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("hold sweep failed", "err", err)
			}
		}
	}
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Reclaimed int `json:"reclaimed"`
	Failed    int `json:"failed"`
}

// Sweep deletes every hold expired at the time of the call. A failed delete
// is logged and skipped.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	const op = "service.reaper.Sweep"

	var res SweepResult

	now := r.cfg.Now()

	expired, err := r.store.Bookings().ListExpiredHolds(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("%s:%w", op, err)
	}

	var rooms []domain.RoomKey
	seen := make(map[domain.RoomKey]struct{})

	for i := range expired {
		b := &expired[i]

		err := r.store.Bookings().DeleteExpiredHold(ctx, b.ID, now)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// confirmed or extended since it was listed
			continue
		case err != nil:
			res.Failed++
			r.log.Warn("delete expired hold failed", "booking_id", b.ID, "err", err)
			continue
		}

		res.Reclaimed++
		for _, k := range b.Rooms() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			rooms = append(rooms, k)
		}
	}

	if res.Reclaimed > 0 || res.Failed > 0 {
		r.log.Info("expired holds reclaimed", "count", res.Reclaimed, "failed", res.Failed)
	}

	if r.notifier != nil && len(rooms) > 0 {
		r.notifier.SlotsChanged(ctx, rooms, ReasonExpired)
	}

	return res, nil
}
