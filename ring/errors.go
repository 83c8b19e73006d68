package ring

import "errors"

// Sentinel errors, in the teacher's (liblpm) style.
var (
	// ErrInvalidArgument is returned by Create for a zero esize, a zero or
	// too-large count, or a non-power-of-two count without EXACT_SZ.
	ErrInvalidArgument = errors.New("ring: invalid argument")

	// ErrNoSpace is returned by Enqueue when fewer slots are free than
	// requested.
	ErrNoSpace = errors.New("ring: no space")

	// ErrEmpty is returned by Dequeue when fewer elements are available
	// than requested.
	ErrEmpty = errors.New("ring: empty")
)
