package period

import "errors"

// Sentinel kinds for period errors.
var (
	ErrInvalidDate = errors.New("invalid date")
)
