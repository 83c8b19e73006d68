// Package lpm implements a DIR-24-8 two-level trie for IPv4 longest-prefix
// match: a dense 2^24-entry tbl24 indexed by the top 24 bits of an address,
// extended on demand into 256-entry tbl8 groups for /25-/32 prefixes.
//
// The contract is single writer, many lockless readers. Every entry write
// the writer performs is a 32-bit atomic store; publishing a new tbl24
// extension pointer happens only after the tbl8 group it points to is
// fully written, so a reader that follows a tbl24 load into a tbl8 load
// never observes a partially-initialized group. Readers need no explicit
// barriers beyond the address dependency from the tbl24 load to the tbl8
// index load.
//
// The rule table (package-internal, see rules.go) is the source of truth;
// tbl24/tbl8 are a derived lookup cache rebuilt incrementally on every Add
// and Delete.
package lpm
