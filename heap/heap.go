package heap

import (
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/nxthop/dataplane/internal/obslog"
)

// Ptr is an opaque handle to an allocated block's data area: the
// region-relative byte offset of the first usable byte. The zero value is
// not a valid Ptr; use NoPtr for "no allocation".
type Ptr uint32

// NoPtr is returned by Alloc on failure.
const NoPtr Ptr = Ptr(noElem)

// Heap is a region allocator over an internally-owned contiguous byte span.
// It is not safe for concurrent use: the caller must serialize all Alloc
// and Free calls, per spec section 4.2/5 (single-threaded ownership).
type Heap struct {
	region []byte

	freeHead [numClasses]uint32 // head offset per size class, or noElem

	first uint32 // offset of the physically-first element (always 0)
	last  uint32 // offset of the physically-last element

	allocCount int

	logger zerolog.Logger
}

// Option configures a Heap at construction time.
type Option func(*Heap)

// WithLogger attaches a zerolog.Logger that Dump emits structured events
// to. The default is zerolog.Nop(), i.e. silent.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Heap) { h.logger = l }
}

// Create allocates a region of the given length and initializes it as a
// single FREE element spanning the whole region.
func Create(length int, opts ...Option) (*Heap, error) {
	if length <= int(headerLen) {
		return nil, ErrInvalidArgument
	}
	if uint64(length) > uint64(noElem) {
		return nil, ErrInvalidArgument
	}

	h := &Heap{
		region: make([]byte, length),
		last:   0,
		logger: obslog.New(),
	}
	for i := range h.freeHead {
		h.freeHead[i] = noElem
	}

	root := h.elemAt(0)
	*root = element{
		physPrev: noElem,
		physNext: noElem,
		freePrev: noElem,
		freeNext: noElem,
		size:     uint32(length),
		state:    stateFree,
	}
	h.insertFree(0)

	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Heap) elemAt(off uint32) *element {
	return (*element)(unsafe.Pointer(&h.region[off]))
}

func (h *Heap) insertFree(off uint32) {
	e := h.elemAt(off)
	c := classIndex(e.size)
	e.state = stateFree
	e.freePrev = noElem
	e.freeNext = h.freeHead[c]
	if h.freeHead[c] != noElem {
		h.elemAt(h.freeHead[c]).freePrev = off
	}
	h.freeHead[c] = off
}

func (h *Heap) removeFree(off uint32) {
	e := h.elemAt(off)
	c := classIndex(e.size)
	if e.freePrev != noElem {
		h.elemAt(e.freePrev).freeNext = e.freeNext
	} else {
		h.freeHead[c] = e.freeNext
	}
	if e.freeNext != noElem {
		h.elemAt(e.freeNext).freePrev = e.freePrev
	}
}

// elemStartPt computes where a fit of size/align would start within the
// free element at elemOff, per spec's "Fit computation (elem_start_pt)".
func (h *Heap) elemStartPt(elemOff, size, align uint32) (dataStart, newElemStart uint32, ok bool) {
	e := h.elemAt(elemOff)
	end := elemOff + e.size
	if end < size {
		return 0, 0, false
	}
	dataStart = alignDown(end-size, align)
	if dataStart < headerLen {
		return 0, 0, false
	}
	newElemStart = dataStart - headerLen
	if newElemStart < elemOff {
		return 0, 0, false
	}
	return dataStart, newElemStart, true
}

// Alloc carves a size-byte (align-aligned) block from the high end of the
// first free element that fits, scanning size classes from classIndex(size)
// upward. Returns NoPtr, ErrNoSpace if nothing fits.
func (h *Heap) Alloc(size, align uint32) (Ptr, error) {
	if align == 0 {
		align = cacheLine
	}
	size = alignUp(size, cacheLine)
	align = alignUp(align, cacheLine)
	if size == 0 {
		size = cacheLine
	}

	startClass := classIndex(size)
	for c := startClass; c < numClasses; c++ {
		for off := h.freeHead[c]; off != noElem; off = h.elemAt(off).freeNext {
			if dataStart, newElemStart, ok := h.elemStartPt(off, size, align); ok {
				return h.carve(off, dataStart, newElemStart), nil
			}
		}
	}
	return NoPtr, ErrNoSpace
}

func (h *Heap) carve(elemOff, dataStart, newElemStart uint32) Ptr {
	e := h.elemAt(elemOff)
	blockEnd := elemOff + e.size
	oldNext := e.physNext
	wasLast := elemOff == h.last

	h.removeFree(elemOff)

	remainder := newElemStart - elemOff
	upperOff := elemOff

	if remainder >= headerLen {
		// split: lower portion [elemOff, newElemStart) stays FREE, shrunk.
		e.size = remainder
		h.insertFree(elemOff)

		upperOff = newElemStart
		u := h.elemAt(upperOff)
		u.physPrev = elemOff
		u.physNext = oldNext
		u.size = blockEnd - upperOff
		u.freePrev = noElem
		u.freeNext = noElem
		u.state = stateBusy

		e.physNext = upperOff
		if oldNext != noElem {
			h.elemAt(oldNext).physPrev = upperOff
		}
	} else {
		// fit consumes the whole element; no usable remainder to split off.
		e.state = stateBusy
	}

	if wasLast {
		h.last = upperOff
	}

	h.allocCount++
	h.logger.Debug().Uint32("ptr", dataStart).Uint32("size", h.elemAt(upperOff).size).Msg("heap alloc")
	return Ptr(dataStart)
}

// Free releases ptr, coalescing with physically-adjacent free neighbors and
// zeroing the data area. Free(NoPtr) and double-Free are no-ops.
func (h *Heap) Free(p Ptr) {
	if p == NoPtr {
		return
	}
	off := uint32(p)
	if off < headerLen || off >= uint32(len(h.region)) {
		return
	}
	elemOff := off - headerLen
	e := h.elemAt(elemOff)
	if e.state != stateBusy {
		return
	}

	dataEnd := elemOff + e.size
	clear(h.region[off:dataEnd])

	e.state = stateFree
	h.allocCount--
	h.logger.Debug().Uint32("ptr", off).Msg("heap free")

	elemOff = h.coalesceNext(elemOff)
	elemOff = h.coalescePrev(elemOff)
	h.insertFree(elemOff)
}

func (h *Heap) coalesceNext(off uint32) uint32 {
	e := h.elemAt(off)
	nextOff := e.physNext
	if nextOff == noElem {
		return off
	}
	n := h.elemAt(nextOff)
	if n.state != stateFree || off+e.size != nextOff {
		return off
	}

	h.removeFree(nextOff)
	e.size += n.size
	e.physNext = n.physNext
	if n.physNext != noElem {
		h.elemAt(n.physNext).physPrev = off
	}
	if nextOff == h.last {
		h.last = off
	}
	return off
}

func (h *Heap) coalescePrev(off uint32) uint32 {
	e := h.elemAt(off)
	prevOff := e.physPrev
	if prevOff == noElem {
		return off
	}
	p := h.elemAt(prevOff)
	if p.state != stateFree || prevOff+p.size != off {
		return off
	}

	h.removeFree(prevOff)
	p.size += e.size
	p.physNext = e.physNext
	if e.physNext != noElem {
		h.elemAt(e.physNext).physPrev = prevOff
	}
	if off == h.last {
		h.last = prevOff
	}
	return prevOff
}

// Bytes returns the usable data area backing p. Its length may exceed the
// size originally requested from Alloc, since the size is rounded up to a
// cache-line multiple and aligning the data start down can leave slack at
// the end of the block.
func (h *Heap) Bytes(p Ptr) []byte {
	off := uint32(p)
	elemOff := off - headerLen
	e := h.elemAt(elemOff)
	return h.region[off : elemOff+e.size]
}

// BlockInfo is one entry of a Dump snapshot.
type BlockInfo struct {
	Offset uint32
	Size   uint32
	Free   bool
}

// Dump walks the physical list from the first element and returns a
// snapshot of every block, free or busy. Each block is also emitted as a
// debug-level structured log event.
func (h *Heap) Dump() []BlockInfo {
	var blocks []BlockInfo
	off := h.first
	for {
		e := h.elemAt(off)
		info := BlockInfo{Offset: off, Size: e.size, Free: e.state == stateFree}
		blocks = append(blocks, info)
		h.logger.Debug().
			Uint32("offset", info.Offset).
			Uint32("size", info.Size).
			Bool("free", info.Free).
			Msg("heap block")
		if e.physNext == noElem {
			break
		}
		off = e.physNext
	}
	return blocks
}

// Stats summarizes allocation state.
type Stats struct {
	RegionSize int
	AllocCount int
	BytesInUse int
}

// Stats returns the number of live allocations and region utilization.
func (h *Heap) Stats() Stats {
	st := Stats{RegionSize: len(h.region), AllocCount: h.allocCount}
	off := h.first
	for {
		e := h.elemAt(off)
		if e.state == stateBusy {
			st.BytesInUse += int(e.size)
		}
		if e.physNext == noElem {
			break
		}
		off = e.physNext
	}
	return st
}
