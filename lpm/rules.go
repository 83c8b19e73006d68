package lpm

// rule is one authoritative (ip_masked, depth) -> next_hop mapping. The
// rule table is the source of truth; tbl24/tbl8 are rebuilt from it.
type rule struct {
	ipMasked uint32
	depth    uint8
	nextHop  uint32
}

// ruleTable holds the 32 depth-ordered contiguous runs described in spec
// section 4.1. It is kept fully packed (no inter-group slack): every
// insert shifts the tail of the array right by one slot, every delete
// shifts it left by one. This satisfies the documented shifting mechanism
// with a simpler invariant (slack is always exactly zero) — ordering
// within a depth group is unspecified, so a plain contiguous shift and the
// tail-swap-then-shift variant are observably identical.
type ruleTable struct {
	rules     []rule
	count     uint32
	maxRules  uint32
	firstRule [33]uint32
	usedRules [33]uint32
}

func newRuleTable(maxRules uint32) *ruleTable {
	return &ruleTable{rules: make([]rule, maxRules), maxRules: maxRules}
}

// find returns the absolute index of the (ipMasked, depth) rule, if present.
func (rt *ruleTable) find(ipMasked uint32, depth uint8) (uint32, bool) {
	start := rt.firstRule[depth]
	n := rt.usedRules[depth]
	for i := uint32(0); i < n; i++ {
		idx := start + i
		if rt.rules[idx].ipMasked == ipMasked {
			return idx, true
		}
	}
	return 0, false
}

// insert adds a new rule at depth, shifting every group at a greater depth
// one slot to the right.
func (rt *ruleTable) insert(ipMasked uint32, depth uint8, nextHop uint32) error {
	if rt.count >= rt.maxRules {
		return ErrNoSpace
	}
	insertAt := rt.firstRule[depth] + rt.usedRules[depth]
	copy(rt.rules[insertAt+1:rt.count+1], rt.rules[insertAt:rt.count])
	rt.rules[insertAt] = rule{ipMasked: ipMasked, depth: depth, nextHop: nextHop}
	rt.usedRules[depth]++
	for d := depth + 1; d <= 32; d++ {
		rt.firstRule[d]++
	}
	rt.count++
	return nil
}

// delete removes the rule at absolute index idx, which must belong to the
// given depth's group, shifting every group at a greater depth one slot
// left.
func (rt *ruleTable) delete(idx uint32, depth uint8) {
	copy(rt.rules[idx:rt.count-1], rt.rules[idx+1:rt.count])
	rt.usedRules[depth]--
	for d := depth + 1; d <= 32; d++ {
		rt.firstRule[d]--
	}
	rt.count--
}
