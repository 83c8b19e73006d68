package ring

import (
	"math/bits"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nxthop/dataplane/internal/cacheline"
	"github.com/nxthop/dataplane/internal/obslog"
)

// Flags control construction. Flags is a bitmask.
type Flags uint32

const (
	// SPEnq declares the producer side single (no CAS, no tail spin).
	SPEnq Flags = 1 << iota
	// SCDeq declares the consumer side single.
	SCDeq
	// ExactSZ requests a ring whose usable capacity is exactly the
	// requested count, at the cost of rounding the backing size up past
	// count+1.
	ExactSZ
)

// maxCount is the largest count Create accepts, per spec section 4.3.
const maxCount = 1<<31 - 1

// Ring is a bounded power-of-two FIFO of fixed-size elements.
type Ring struct {
	mask     uint32
	capacity uint32
	esize    uint32

	prodSingle bool
	consSingle bool

	prodHead uint32
	_        cacheline.Pad
	prodTail uint32
	_        cacheline.Pad

	consHead uint32
	_        cacheline.Pad
	consTail uint32
	_        cacheline.Pad

	data   []byte
	logger zerolog.Logger
}

// Option configures a Ring at construction time.
type Option func(*Ring)

// WithLogger attaches a zerolog.Logger for Dump events. Default is silent.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Ring) { r.logger = l }
}

// Create builds a ring sized for count elements of esize bytes each, per
// flags. esize is normalized up to a multiple of 4 bytes so the word-at-a-time
// element copy never has to handle a partial word.
func Create(count, esize uint32, flags Flags, opts ...Option) (*Ring, error) {
	if esize == 0 {
		return nil, ErrInvalidArgument
	}
	if count == 0 || count > maxCount {
		return nil, ErrInvalidArgument
	}

	var size, capacity uint32
	if flags&ExactSZ != 0 {
		if count == maxCount {
			return nil, ErrInvalidArgument // count+1 would overflow
		}
		size = nextPow2(count + 1)
		capacity = count
	} else {
		if count&(count-1) != 0 {
			return nil, ErrInvalidArgument
		}
		size = count
		capacity = size - 1
	}

	esize = alignUp4(esize)

	r := &Ring{
		mask:       size - 1,
		capacity:   capacity,
		esize:      esize,
		prodSingle: flags&SPEnq != 0,
		consSingle: flags&SCDeq != 0,
		data:       make([]byte, uint64(size)*uint64(esize)),
		logger:     obslog.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Capacity returns the number of elements that can be enqueued before
// Enqueue reports ErrNoSpace on an otherwise-empty ring.
func (r *Ring) Capacity() uint32 { return r.capacity }

func nextPow2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len32(v-1)
}

func alignUp4(v uint32) uint32 {
	return (v + 3) &^ 3
}

// procYield is the architectural pause hint for a busy-wait retry: Go has
// no exposed PAUSE intrinsic, so a scheduler yield stands in for it.
func procYield() {
	runtime.Gosched()
}

// reserveProd advances prod.head by n, returning the old/new head. ok is
// false if fewer than n slots are free.
func (r *Ring) reserveProd(n uint32) (oldHead, newHead uint32, ok bool) {
	if r.prodSingle {
		oldHead = atomic.LoadUint32(&r.prodHead)
		consTail := atomic.LoadUint32(&r.consTail)
		free := r.capacity + consTail - oldHead
		if free < n {
			return 0, 0, false
		}
		newHead = oldHead + n
		atomic.StoreUint32(&r.prodHead, newHead)
		return oldHead, newHead, true
	}
	for {
		oldHead = atomic.LoadUint32(&r.prodHead)
		consTail := atomic.LoadUint32(&r.consTail)
		free := r.capacity + consTail - oldHead
		if free < n {
			return 0, 0, false
		}
		newHead = oldHead + n
		if atomic.CompareAndSwapUint32(&r.prodHead, oldHead, newHead) {
			return oldHead, newHead, true
		}
		procYield()
	}
}

// publishProd spins until prod.tail catches up to oldHead (preserving
// commit order across racing producers), then advances it to newHead.
func (r *Ring) publishProd(oldHead, newHead uint32) {
	if r.prodSingle {
		atomic.StoreUint32(&r.prodTail, newHead)
		return
	}
	for atomic.LoadUint32(&r.prodTail) != oldHead {
		procYield()
	}
	atomic.StoreUint32(&r.prodTail, newHead)
}

// reserveCons is the dequeue-side mirror of reserveProd.
func (r *Ring) reserveCons(n uint32) (oldHead, newHead uint32, ok bool) {
	if r.consSingle {
		oldHead = atomic.LoadUint32(&r.consHead)
		prodTail := atomic.LoadUint32(&r.prodTail)
		avail := prodTail - oldHead
		if avail < n {
			return 0, 0, false
		}
		newHead = oldHead + n
		atomic.StoreUint32(&r.consHead, newHead)
		return oldHead, newHead, true
	}
	for {
		oldHead = atomic.LoadUint32(&r.consHead)
		prodTail := atomic.LoadUint32(&r.prodTail)
		avail := prodTail - oldHead
		if avail < n {
			return 0, 0, false
		}
		newHead = oldHead + n
		if atomic.CompareAndSwapUint32(&r.consHead, oldHead, newHead) {
			return oldHead, newHead, true
		}
		procYield()
	}
}

func (r *Ring) publishCons(oldHead, newHead uint32) {
	if r.consSingle {
		atomic.StoreUint32(&r.consTail, newHead)
		return
	}
	for atomic.LoadUint32(&r.consTail) != oldHead {
		procYield()
	}
	atomic.StoreUint32(&r.consTail, newHead)
}

// Enqueue copies a single esize-byte element into the ring. item must be
// exactly esize bytes. Returns ErrNoSpace if the ring is full.
func (r *Ring) Enqueue(item []byte) error {
	if uint32(len(item)) != r.esize {
		return ErrInvalidArgument
	}
	return r.EnqueueBulk(item)
}

// Dequeue copies the oldest element into out, which must be exactly esize
// bytes. Returns ErrEmpty if the ring has nothing to dequeue.
func (r *Ring) Dequeue(out []byte) error {
	if uint32(len(out)) != r.esize {
		return ErrInvalidArgument
	}
	return r.DequeueBulk(out)
}

// EnqueueBulk copies buf, a flat run of whole esize-byte elements, into the
// ring in a single reservation. All-or-nothing: if the ring cannot hold
// every element in buf, none are enqueued and ErrNoSpace is returned.
func (r *Ring) EnqueueBulk(buf []byte) error {
	n := uint32(len(buf)) / r.esize
	if uint32(len(buf))%r.esize != 0 {
		return ErrInvalidArgument
	}
	if n == 0 {
		return nil
	}
	oldHead, newHead, ok := r.reserveProd(n)
	if !ok {
		return ErrNoSpace
	}
	r.writeRange(oldHead, n, buf)
	r.publishProd(oldHead, newHead)
	return nil
}

// DequeueBulk copies n whole esize-byte elements, in commit order, into
// buf (n = len(buf)/esize). All-or-nothing, mirroring EnqueueBulk.
func (r *Ring) DequeueBulk(buf []byte) error {
	n := uint32(len(buf)) / r.esize
	if uint32(len(buf))%r.esize != 0 {
		return ErrInvalidArgument
	}
	if n == 0 {
		return nil
	}
	oldHead, newHead, ok := r.reserveCons(n)
	if !ok {
		return ErrEmpty
	}
	r.readRange(oldHead, n, buf)
	r.publishCons(oldHead, newHead)
	return nil
}

// Dump logs a structured snapshot of the ring's current head/tail state.
func (r *Ring) Dump() {
	r.logger.Debug().
		Uint32("prod_head", atomic.LoadUint32(&r.prodHead)).
		Uint32("prod_tail", atomic.LoadUint32(&r.prodTail)).
		Uint32("cons_head", atomic.LoadUint32(&r.consHead)).
		Uint32("cons_tail", atomic.LoadUint32(&r.consTail)).
		Uint32("capacity", r.capacity).
		Msg("ring state")
}
