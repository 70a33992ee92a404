package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrReadOnly    = errors.New("storage: backend is read-only")
	ErrUnavailable = errors.New("storage: all endpoints unavailable")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
