package lpm

import (
	"encoding/binary"
	"net/netip"

	"github.com/rs/zerolog"
)

// NextHop is a routing next-hop identifier.
type NextHop uint32

// InvalidNextHop is returned when no route is found.
const InvalidNextHop NextHop = 0xFFFFFF // 24-bit next_hop field, all ones

// IsValid returns true if the next hop is valid (not InvalidNextHop).
func (nh NextHop) IsValid() bool { return nh != InvalidNextHop }

// Config holds the construction-time parameters spec section 4.1's
// create() takes: the rule table capacity and the tbl8 pool size.
type Config struct {
	MaxRules    uint32
	NumberTbl8s uint32
}

// Table is the public, netip-based IPv4 LPM route table. It wraps the
// unexported engine the way the teacher's Table wraps a cTrie handle, but
// owns its backing slices directly rather than a C pointer.
type Table struct {
	eng    *engine
	closed bool
}

// Option configures a Table at construction time.
type Option func(*Table)

// WithLogger attaches a zerolog.Logger that Dump emits structured events
// to. The default is zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(t *Table) { t.eng.logger = l }
}

// NewTable creates a new IPv4 DIR-24-8 routing table. Fails with
// ErrInvalidArgument if MaxRules is zero or NumberTbl8s exceeds 2^24.
func NewTable(cfg Config, opts ...Option) (*Table, error) {
	eng, err := newEngine(cfg.MaxRules, cfg.NumberTbl8s)
	if err != nil {
		return nil, err
	}
	t := &Table{eng: eng}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Close marks the table unusable. It is idempotent. Unlike the teacher's
// cgo-backed Table, there is no external resource to release explicitly —
// the backing slices are reclaimed by the garbage collector once
// unreferenced — so Close exists purely to close off the API surface and
// give callers the same "closed" contract.
func (t *Table) Close() error {
	t.closed = true
	return nil
}

func prefixToMasked(prefix netip.Prefix) (ipMasked uint32, depth uint8, err error) {
	if !prefix.IsValid() || !prefix.Addr().Is4() {
		return 0, 0, ErrInvalidArgument
	}
	bits := prefix.Bits()
	if bits < 1 || bits > 32 {
		return 0, 0, ErrInvalidArgument
	}
	a4 := prefix.Addr().As4()
	ip := binary.BigEndian.Uint32(a4[:])
	return ip & depthMask(uint8(bits)), uint8(bits), nil
}

// Insert adds prefix to the table with the given next hop. See engine.Add
// for idempotence/update semantics.
func (t *Table) Insert(prefix netip.Prefix, nextHop NextHop) error {
	if t.closed {
		return ErrClosed
	}
	if uint32(nextHop) > nextHopMask {
		return ErrInvalidArgument
	}
	ipMasked, depth, err := prefixToMasked(prefix)
	if err != nil {
		return err
	}
	return t.eng.Add(ipMasked, depth, uint32(nextHop))
}

// Delete removes prefix from the table. Returns ErrNotFound if absent.
func (t *Table) Delete(prefix netip.Prefix) error {
	if t.closed {
		return ErrClosed
	}
	ipMasked, depth, err := prefixToMasked(prefix)
	if err != nil {
		return err
	}
	return t.eng.Delete(ipMasked, depth)
}

// Lookup performs a longest-prefix match for addr.
func (t *Table) Lookup(addr netip.Addr) (NextHop, bool) {
	if t.closed || !addr.Is4() {
		return InvalidNextHop, false
	}
	a4 := addr.As4()
	ip := binary.BigEndian.Uint32(a4[:])
	hop, ok := t.eng.Lookup(ip)
	if !ok {
		return InvalidNextHop, false
	}
	return NextHop(hop), true
}

// LookupBatch performs lookups for multiple addresses in a single call.
// It is a convenience loop over Lookup: with no FFI boundary to amortize,
// it carries no performance claim, unlike the teacher's cgo-batched
// equivalent. Each address still goes through Lookup's own checks.
func (t *Table) LookupBatch(addrs []netip.Addr) ([]NextHop, error) {
	if t.closed {
		return nil, ErrClosed
	}
	out := make([]NextHop, len(addrs))
	for i, addr := range addrs {
		out[i], _ = t.Lookup(addr)
	}
	return out, nil
}

// Dump returns every rule currently in the table.
func (t *Table) Dump() ([]RuleInfo, error) {
	if t.closed {
		return nil, ErrClosed
	}
	return t.eng.Dump(), nil
}
