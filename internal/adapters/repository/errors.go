package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("run not found")
	ErrInvalidLimit = errors.New("invalid run list limit")
	ErrInvalidRun   = errors.New("invalid run")
	ErrClosed       = errors.New("store closed")
)
