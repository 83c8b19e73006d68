package lpm

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nxthop/dataplane/internal/obslog"
)

// tbl24Size is the fixed size of tbl24: one entry per possible top-24-bits
// value of a 32-bit address.
const tbl24Size = 1 << 24

// maxTbl8Groups bounds number_tbl8s per spec section 4.1's create().
const maxTbl8Groups = 1 << 24

// engine is the internal DIR-24-8 primitive layer. It operates on raw
// host-order uint32 addresses; Table (table.go) is the netip-based public
// facade over it. engine assumes a single writer; Lookup is safe to call
// concurrently with a writer and with other readers.
type engine struct {
	tbl24 []uint32
	tbl8  []uint32

	numberTbl8s uint32
	freeGroups  []uint32 // explicit free-index stack; see DESIGN.md

	rules *ruleTable

	logger zerolog.Logger
}

func newEngine(maxRules, numberTbl8s uint32) (*engine, error) {
	if maxRules == 0 {
		return nil, ErrInvalidArgument
	}
	if numberTbl8s > maxTbl8Groups {
		return nil, ErrInvalidArgument
	}

	e := &engine{
		tbl24:       make([]uint32, tbl24Size),
		tbl8:        make([]uint32, uint64(numberTbl8s)*256),
		numberTbl8s: numberTbl8s,
		freeGroups:  make([]uint32, numberTbl8s),
		rules:       newRuleTable(maxRules),
		logger:      obslog.New(),
	}
	for i := uint32(0); i < numberTbl8s; i++ {
		e.freeGroups[i] = i
	}
	return e, nil
}

func (e *engine) allocGroup() (uint32, bool) {
	n := len(e.freeGroups)
	if n == 0 {
		return 0, false
	}
	g := e.freeGroups[n-1]
	e.freeGroups = e.freeGroups[:n-1]
	return g, true
}

// freeGroup returns a tbl8 group to the free stack. It clears the group's
// gating entry (entry 0) so the recycle-check and any future allocation
// that scans the pool see it as unallocated. The spec notes the reference
// source never actually did this ("source anomaly — tbl8_free"); fixing it
// is required, not optional.
func (e *engine) freeGroup(grp uint32) {
	atomic.StoreUint32(&e.tbl8[grp*256], uint32(invalidEntry))
	e.freeGroups = append(e.freeGroups, grp)
}

// Add masks ip to depth, validates depth, and inserts a rule, then
// publishes it into tbl24/tbl8. An add identical to an existing rule
// (same ip_masked, depth, next_hop) is a silent success. An add that
// changes an existing rule's next_hop republishes in place. On tbl8
// exhaustion during the big path, the rule-table insertion is rolled back.
func (e *engine) Add(ip uint32, depth uint8, nextHop uint32) error {
	if depth < 1 || depth > 32 {
		panic("lpm: depth out of range [1,32]")
	}
	ipMasked := ip & depthMask(depth)

	if idx, found := e.rules.find(ipMasked, depth); found {
		if e.rules.rules[idx].nextHop == nextHop {
			return nil
		}
		e.rules.rules[idx].nextHop = nextHop
		return e.publish(ipMasked, depth, nextHop)
	}

	if err := e.rules.insert(ipMasked, depth, nextHop); err != nil {
		return err
	}
	if err := e.publish(ipMasked, depth, nextHop); err != nil {
		idx, _ := e.rules.find(ipMasked, depth)
		e.rules.delete(idx, depth)
		return err
	}
	return nil
}

func (e *engine) publish(ipMasked uint32, depth uint8, nextHop uint32) error {
	if depth <= 24 {
		e.addSmallPath(ipMasked, depth, nextHop)
		return nil
	}
	return e.addBigPath(ipMasked, depth, nextHop)
}

// addSmallPath implements spec section 4.1's small-path add (depth <= 24).
func (e *engine) addSmallPath(ipMasked uint32, depth uint8, nextHop uint32) {
	tbl24Index := ipMasked >> 8
	rangeN := uint32(1) << (24 - depth)
	newTerm := packEntry(nextHop, true, false, depth)

	for i := uint32(0); i < rangeN; i++ {
		idx := tbl24Index + i
		cur := entry(atomic.LoadUint32(&e.tbl24[idx]))
		if !cur.validGroup() {
			if !cur.valid() || cur.depth() <= depth {
				atomic.StoreUint32(&e.tbl24[idx], uint32(newTerm))
			}
			continue
		}
		base := cur.nextHop() * 256
		for j := uint32(0); j < 256; j++ {
			te := entry(atomic.LoadUint32(&e.tbl8[base+j]))
			if !te.valid() || te.depth() <= depth {
				atomic.StoreUint32(&e.tbl8[base+j], uint32(newTerm))
			}
		}
	}
}

// addBigPath implements spec section 4.1's big-path add (depth > 24).
func (e *engine) addBigPath(ipMasked uint32, depth uint8, nextHop uint32) error {
	tbl24Index := ipMasked >> 8
	lowByte := ipMasked & 0xFF
	rangeN := uint32(1) << (32 - depth)
	newTerm := packEntry(nextHop, true, false, depth)

	cur := entry(atomic.LoadUint32(&e.tbl24[tbl24Index]))

	switch {
	case !cur.validGroup() && !cur.valid():
		// Case 1: invalid tbl24 entry.
		grp, ok := e.allocGroup()
		if !ok {
			return ErrNoSpace
		}
		base := grp * 256
		for j := uint32(0); j < 256; j++ {
			atomic.StoreUint32(&e.tbl8[base+j], uint32(invalidEntry))
		}
		for i := uint32(0); i < rangeN; i++ {
			atomic.StoreUint32(&e.tbl8[base+lowByte+i], uint32(newTerm))
		}
		ext := packEntry(grp, true, true, 0)
		atomic.StoreUint32(&e.tbl24[tbl24Index], uint32(ext)) // release publish
		return nil

	case !cur.validGroup() && cur.valid():
		// Case 2: valid terminal tbl24 entry — propagate, then overwrite.
		grp, ok := e.allocGroup()
		if !ok {
			return ErrNoSpace
		}
		base := grp * 256
		propagated := packEntry(cur.nextHop(), true, false, cur.depth())
		for j := uint32(0); j < 256; j++ {
			atomic.StoreUint32(&e.tbl8[base+j], uint32(propagated))
		}
		for i := uint32(0); i < rangeN; i++ {
			atomic.StoreUint32(&e.tbl8[base+lowByte+i], uint32(newTerm))
		}
		ext := packEntry(grp, true, true, 0)
		atomic.StoreUint32(&e.tbl24[tbl24Index], uint32(ext)) // release publish
		return nil

	default:
		// Case 3: existing extension.
		base := cur.nextHop() * 256
		for i := uint32(0); i < rangeN; i++ {
			idx := base + lowByte + i
			te := entry(atomic.LoadUint32(&e.tbl8[idx]))
			if !te.valid() || te.depth() <= depth {
				atomic.StoreUint32(&e.tbl8[idx], uint32(newTerm))
			}
		}
		return nil
	}
}

// Delete removes the rule at (ip, depth), then rewrites the affected
// tbl24/tbl8 entries to the deepest remaining covering rule, or to invalid
// if none exists.
func (e *engine) Delete(ip uint32, depth uint8) error {
	if depth < 1 || depth > 32 {
		panic("lpm: depth out of range [1,32]")
	}
	ipMasked := ip & depthMask(depth)

	idx, found := e.rules.find(ipMasked, depth)
	if !found {
		return ErrNotFound
	}
	e.rules.delete(idx, depth)

	subHop, subDepth, hasSub := e.findSubRule(ipMasked, depth)

	if depth <= 24 {
		e.deleteSmallPath(ipMasked, depth, subHop, subDepth, hasSub)
	} else {
		e.deleteBigPath(ipMasked, depth, subHop, subDepth, hasSub)
	}
	return nil
}

// findSubRule finds the deepest rule, shallower than depth, that still
// covers ipMasked.
func (e *engine) findSubRule(ipMasked uint32, depth uint8) (nextHop uint32, subDepth uint8, ok bool) {
	for d := int(depth) - 1; d >= 1; d-- {
		dd := uint8(d)
		masked := ipMasked & depthMask(dd)
		start := e.rules.firstRule[dd]
		n := e.rules.usedRules[dd]
		for i := uint32(0); i < n; i++ {
			r := e.rules.rules[start+i]
			if r.ipMasked == masked {
				return r.nextHop, dd, true
			}
		}
	}
	return 0, 0, false
}

func (e *engine) deleteSmallPath(ipMasked uint32, depth uint8, subHop uint32, subDepth uint8, hasSub bool) {
	tbl24Index := ipMasked >> 8
	rangeN := uint32(1) << (24 - depth)

	replacement := invalidEntry
	if hasSub {
		replacement = packEntry(subHop, true, false, subDepth)
	}

	for i := uint32(0); i < rangeN; i++ {
		idx := tbl24Index + i
		cur := entry(atomic.LoadUint32(&e.tbl24[idx]))
		if !cur.validGroup() {
			if cur.valid() && cur.depth() <= depth {
				atomic.StoreUint32(&e.tbl24[idx], uint32(replacement))
			}
			continue
		}
		grp := cur.nextHop()
		base := grp * 256
		for j := uint32(0); j < 256; j++ {
			te := entry(atomic.LoadUint32(&e.tbl8[base+j]))
			if te.valid() && te.depth() <= depth {
				atomic.StoreUint32(&e.tbl8[base+j], uint32(replacement))
			}
		}
		e.tbl8RecycleCheck(idx, grp)
	}
}

func (e *engine) deleteBigPath(ipMasked uint32, depth uint8, subHop uint32, subDepth uint8, hasSub bool) {
	tbl24Index := ipMasked >> 8
	lowByte := ipMasked & 0xFF
	rangeN := uint32(1) << (32 - depth)

	cur := entry(atomic.LoadUint32(&e.tbl24[tbl24Index]))
	if !cur.validGroup() {
		return
	}
	grp := cur.nextHop()
	base := grp * 256

	replacement := invalidEntry
	if hasSub {
		replacement = packEntry(subHop, true, false, subDepth)
	}

	for i := uint32(0); i < rangeN; i++ {
		idx := base + lowByte + i
		te := entry(atomic.LoadUint32(&e.tbl8[idx]))
		if te.valid() && te.depth() <= depth {
			atomic.StoreUint32(&e.tbl8[idx], uint32(replacement))
		}
	}

	e.tbl8RecycleCheck(tbl24Index, grp)
}

// tbl8RecycleCheck implements spec section 4.1's recycle check: an empty
// group is freed outright; a group that collapsed into one shallow prefix
// is replaced by an equivalent tbl24 terminal and then freed. tbl24 is
// always demoted (atomic store) before the group returns to the free
// stack, so no reader can dereference a freed extension.
func (e *engine) tbl8RecycleCheck(tbl24Index, grp uint32) {
	base := grp * 256
	first := entry(atomic.LoadUint32(&e.tbl8[base]))

	if !first.valid() {
		for j := uint32(1); j < 256; j++ {
			if entry(atomic.LoadUint32(&e.tbl8[base+j])).valid() {
				return
			}
		}
		atomic.StoreUint32(&e.tbl24[tbl24Index], uint32(invalidEntry))
		e.freeGroup(grp)
		return
	}

	if first.depth() <= 24 {
		d := first.depth()
		hop := first.nextHop()
		for j := uint32(1); j < 256; j++ {
			te := entry(atomic.LoadUint32(&e.tbl8[base+j]))
			if !te.valid() || te.depth() != d || te.nextHop() != hop {
				return
			}
		}
		term := packEntry(hop, true, false, d)
		atomic.StoreUint32(&e.tbl24[tbl24Index], uint32(term))
		e.freeGroup(grp)
	}
}

// Lookup is wait-free: one tbl24 load, and at most one further tbl8 load
// when the tbl24 entry is an extension.
func (e *engine) Lookup(ip uint32) (uint32, bool) {
	cur := entry(atomic.LoadUint32(&e.tbl24[ip>>8]))
	if !cur.validGroup() {
		if cur.valid() {
			return cur.nextHop(), true
		}
		return 0, false
	}
	te := entry(atomic.LoadUint32(&e.tbl8[cur.nextHop()*256+(ip&0xFF)]))
	if te.valid() {
		return te.nextHop(), true
	}
	return 0, false
}

// RuleInfo is one entry of a Dump snapshot.
type RuleInfo struct {
	IPMasked uint32
	Depth    uint8
	NextHop  uint32
}

// Dump returns every rule in the rule table and emits a debug-level
// structured log event per rule.
func (e *engine) Dump() []RuleInfo {
	out := make([]RuleInfo, 0, e.rules.count)
	for d := uint8(1); d <= 32; d++ {
		start := e.rules.firstRule[d]
		n := e.rules.usedRules[d]
		for i := uint32(0); i < n; i++ {
			r := e.rules.rules[start+i]
			info := RuleInfo{IPMasked: r.ipMasked, Depth: r.depth, NextHop: r.nextHop}
			out = append(out, info)
			e.logger.Debug().
				Uint32("ip_masked", info.IPMasked).
				Uint8("depth", info.Depth).
				Uint32("next_hop", info.NextHop).
				Msg("lpm rule")
		}
	}
	return out
}
