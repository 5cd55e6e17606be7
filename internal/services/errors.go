package services

import (
	"errors"

	"whatsapp-panel-server/internal/db"
)

var (
	// ErrNotFound indicates the resource does not exist or belongs to someone else
	ErrNotFound = db.ErrNotFound

	// ErrValidation wraps every input validation failure
	ErrValidation = errors.New("validation failed")

	// ErrConnectionNotReady indicates the WhatsApp connection cannot send right now
	ErrConnectionNotReady = errors.New("whatsapp connection is not connected")

	// ErrNotPending indicates a scheduled message already left the pending state
	ErrNotPending = errors.New("scheduled message is no longer pending")
)

func validationError(msg string) error {
	return &fieldError{msg: msg}
}

type fieldError struct {
	msg string
}

func (e *fieldError) Error() string { return e.msg }

func (e *fieldError) Unwrap() error { return ErrValidation }
