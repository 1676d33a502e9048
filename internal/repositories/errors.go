package repositories

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors below wrap one of these so callers can match
// at either level with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrIntegrity  = errors.New("integrity violation")
)

var (
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	ErrHistoryNotFound = fmt.Errorf("history entry %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrStaleVersion = fmt.Errorf("message changed concurrently: %w", ErrConflict)

	ErrEmptyContent     = fmt.Errorf("%w: content is empty", ErrValidation)
	ErrUnknownRecipient = fmt.Errorf("%w: unknown recipient", ErrValidation)
	ErrUnknownSender    = fmt.Errorf("%w: unknown sender", ErrValidation)
	ErrUnknownEditor    = fmt.Errorf("%w: unknown editor", ErrValidation)
	ErrSelfMessage      = fmt.Errorf("%w: cannot message yourself", ErrValidation)
	ErrNotReceiver      = fmt.Errorf("%w: user is not the receiver", ErrValidation)
	ErrInvalidUsername  = fmt.Errorf("%w: username is empty", ErrValidation)
	ErrUsernameTaken    = fmt.Errorf("%w: username already taken", ErrValidation)
)
