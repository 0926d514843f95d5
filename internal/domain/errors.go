package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrOwnership       = errors.New("job owned by another user")
	ErrInvalidStyle    = errors.New("unsupported animation style")
	ErrInvalidSource   = errors.New("invalid source image")
	ErrTerminalState   = errors.New("job already in terminal state")
	ErrStorageFailure  = errors.New("storage failure")
	ErrProviderFailure = errors.New("provider failure")
)
