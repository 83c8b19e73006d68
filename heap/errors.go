package heap

import "errors"

// Sentinel errors, in the teacher's (liblpm) style: a flat var block of
// errors.New values rather than a generated error type hierarchy.
var (
	// ErrInvalidArgument is returned by Create when the region length is
	// not larger than one element header, or too large for 32-bit offsets.
	ErrInvalidArgument = errors.New("heap: invalid argument")

	// ErrNoSpace is returned by Alloc when no free element of sufficient
	// size exists anywhere in the size-class free lists.
	ErrNoSpace = errors.New("heap: no space")
)
