package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrJobNotCompleted     = errors.New("job is not completed")
	ErrNoActiveTemplate    = errors.New("no active injectable template")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)
