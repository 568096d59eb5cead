package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrLockHeld     = errors.New("lock already held")
	ErrContextDone  = errors.New("context cancelled")
)
