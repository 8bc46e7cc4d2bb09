package lock

import (
	"errors"

	"github.com/kirinyoku/slotgo/internal/service/availability"
)

var (
	ErrInvalidInput      = availability.ErrInvalidInput
	ErrVenueNotFound     = availability.ErrVenueNotFound
	ErrNothingReservable = errors.New("no slot could be reserved on any requested date")

	// errClaimLost rolls back an attempt whose slot was taken between the
	// conflict check and the claim.
	errClaimLost = errors.New("slot claim lost to a concurrent booking")
)
