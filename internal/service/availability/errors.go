package availability

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrVenueNotFound      = errors.New("venue not found")
	ErrSportNotSupported  = errors.New("sport not supported by venue")
	ErrSlotOutsideHours   = errors.New("slot is outside venue hours")
	ErrSlotAlreadyStarted = errors.New("slot has already started")
)
