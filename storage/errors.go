package storage

import "errors"

var (
	// ErrWrongType indicates the key holds a value of the other family
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrNotInteger indicates the stored string is not a base-10 64-bit integer
	ErrNotInteger = errors.New("value is not an integer or out of range")

	// ErrOverflow indicates an increment would leave the signed 64-bit range
	ErrOverflow = errors.New("increment or decrement would overflow")

	// ErrClosed indicates the storage has been closed
	ErrClosed = errors.New("storage is closed")
)
