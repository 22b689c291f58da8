package service

import "errors"

// Sentinel kinds for report and payment operations.
var (
	ErrDivisionNotFound = errors.New("division not found")
	ErrInvalidRange     = errors.New("invalid report range")
	ErrInvalidPeriod    = errors.New("invalid payment period")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("inactive user")
)
