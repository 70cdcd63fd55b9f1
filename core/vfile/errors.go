package vfile

import "errors"

var (
	// ErrBadHandle covers handle ids out of range, slots not in use,
	// and access-mode mismatches (read on write-only, write on
	// read-only).
	ErrBadHandle = errors.New("bad handle")
	// ErrInvalidArgument covers unknown whence values and negative
	// computed positions.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTooManyOpenFiles means the handle table is full.
	ErrTooManyOpenFiles = errors.New("too many open handles")
)
