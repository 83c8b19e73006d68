package lpm

import "errors"

// Sentinel errors, in the teacher's (liblpm) style.
var (
	// ErrInvalidArgument covers a bad depth, a zero max_rules, a
	// number_tbl8s exceeding 2^24, or an invalid prefix/address at the
	// public Table boundary.
	ErrInvalidArgument = errors.New("lpm: invalid argument")

	// ErrNoSpace is returned by Add when the rule table or the tbl8 pool
	// is exhausted.
	ErrNoSpace = errors.New("lpm: no space")

	// ErrNotFound is returned by Delete for an absent rule. A Lookup miss
	// is reported through Lookup's bool result, not as an error.
	ErrNotFound = errors.New("lpm: not found")

	// ErrClosed is returned by Table methods after Close.
	ErrClosed = errors.New("lpm: table closed")
)
