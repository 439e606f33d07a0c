package transport

import "errors"

var (
	ErrTimeout         = errors.New("transport: timed out waiting for data")
	ErrEOF             = errors.New("transport: underlying channel closed")
	ErrIllegalArgument = errors.New("transport: illegal argument")
)
