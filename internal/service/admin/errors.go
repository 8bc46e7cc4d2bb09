package admin

import (
	"errors"
)

var (
	ErrVenueConflict = errors.New("venue already exists")
	ErrInvalidVenue  = errors.New("invalid venue")
)
