// Package heap implements a region allocator over a single contiguous byte
// span: boundary-tagged, doubly-linked, free-coalescing, with segregated
// size-class free lists.
//
// Create carves everything it hands out from one []byte region sized at
// construction time. Allocation and free are O(number of free elements in
// the scanned size classes); there is no return-to-OS path because there is
// no OS allocation to return — destroying the Heap value is enough, the
// whole region is reclaimed with it.
//
// Heap is single-threaded: the caller owns serialization, there is no
// internal lock and no atomic access to any field. This mirrors the
// design of the real Go runtime allocator (see the historical mheap /
// mcentral / mcache split for small-object classes), scaled down to a
// single size-classed free-list heap with eager coalescing instead of a
// multi-tier cache hierarchy.
package heap
