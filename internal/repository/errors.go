package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrAlreadyConfirmed  = errors.New("already confirmed")
	ErrVenueAlreadyExist = errors.New("venue already exists")
)
