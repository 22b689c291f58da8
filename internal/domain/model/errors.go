package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrInvalidCategory = errors.New("invalid event category")
)
