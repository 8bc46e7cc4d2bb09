package payment

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrHoldNotFound = errors.New("no booking found for session")
	ErrHoldExpired  = errors.New("hold has expired")
)
