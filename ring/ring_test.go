package ring

import (
	"encoding/binary"
	"testing"
)

func u32elem(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// TestCreateValidatesCount checks the EXACT_SZ vs plain power-of-two
// construction rules from spec section 4.3.
func TestCreateValidatesCount(t *testing.T) {
	if _, err := Create(0, 4, 0); err != ErrInvalidArgument {
		t.Errorf("count=0: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := Create(10, 4, 0); err != ErrInvalidArgument {
		t.Errorf("non-power-of-two count without EXACT_SZ: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := Create(16, 0, 0); err != ErrInvalidArgument {
		t.Errorf("esize=0: err = %v, want ErrInvalidArgument", err)
	}

	r, err := Create(16, 4, 0)
	if err != nil {
		t.Fatalf("Create(16, plain) failed: %v", err)
	}
	if r.Capacity() != 15 {
		t.Errorf("plain-mode capacity = %d, want 15 (size-1)", r.Capacity())
	}

	r2, err := Create(16, 4, ExactSZ)
	if err != nil {
		t.Fatalf("Create(16, ExactSZ) failed: %v", err)
	}
	if r2.Capacity() != 16 {
		t.Errorf("ExactSZ capacity = %d, want 16", r2.Capacity())
	}
}

// TestCapacity16FIFOOrder is spec section 8 scenario 5: enqueue 16 distinct
// values in order, dequeue 16 and recover the same sequence; the 17th
// enqueue/dequeue fail.
func TestCapacity16FIFOOrder(t *testing.T) {
	r, err := Create(16, 4, ExactSZ)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if r.Capacity() != 16 {
		t.Fatalf("capacity = %d, want 16", r.Capacity())
	}

	for i := uint32(0); i < 16; i++ {
		if err := r.Enqueue(u32elem(i)); err != nil {
			t.Fatalf("Enqueue(%d) failed: %v", i, err)
		}
	}
	if err := r.Enqueue(u32elem(16)); err != ErrNoSpace {
		t.Errorf("17th Enqueue: err = %v, want ErrNoSpace", err)
	}

	out := make([]byte, 4)
	for i := uint32(0); i < 16; i++ {
		if err := r.Dequeue(out); err != nil {
			t.Fatalf("Dequeue(%d) failed: %v", i, err)
		}
		if got := binary.LittleEndian.Uint32(out); got != i {
			t.Fatalf("dequeue %d: got %d, want %d", i, got, i)
		}
	}
	if err := r.Dequeue(out); err != ErrEmpty {
		t.Errorf("17th Dequeue: err = %v, want ErrEmpty", err)
	}
}

// TestAlternatingSPSC is spec section 8 scenario 6: 256 cycles of
// enqueue-then-dequeue on a single-producer/single-consumer ring of
// capacity 16, ending empty.
func TestAlternatingSPSC(t *testing.T) {
	r, err := Create(16, 4, ExactSZ|SPEnq|SCDeq)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	out := make([]byte, 4)
	for cycle := uint32(0); cycle < 256; cycle++ {
		if err := r.Enqueue(u32elem(cycle)); err != nil {
			t.Fatalf("cycle %d: Enqueue failed: %v", cycle, err)
		}
		if err := r.Dequeue(out); err != nil {
			t.Fatalf("cycle %d: Dequeue failed: %v", cycle, err)
		}
		if got := binary.LittleEndian.Uint32(out); got != cycle {
			t.Fatalf("cycle %d: got %d", cycle, got)
		}
	}
	if err := r.Dequeue(out); err != ErrEmpty {
		t.Errorf("final Dequeue: err = %v, want ErrEmpty (ring should be empty)", err)
	}
}

// TestEightByteElementUsesWordCopy exercises the 8-byte fast path in
// copyWords and FIFO order across a fill, partial drain and refill. With
// single-element transfers the wrap-split path in writeRange/readRange is
// not reached.
func TestEightByteElementUsesWordCopy(t *testing.T) {
	r, err := Create(8, 8, ExactSZ)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Fill to capacity, drain a few, refill. The backing array has 16
	// slots, so the write index stays below its end.
	buf := make([]byte, 8)
	for i := uint64(0); i < 8; i++ {
		binary.LittleEndian.PutUint64(buf, i)
		if err := r.Enqueue(buf); err != nil {
			t.Fatalf("prefill Enqueue(%d): %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := r.Dequeue(buf); err != nil {
			t.Fatalf("drain Dequeue: %v", err)
		}
	}
	for i := uint64(100); i < 103; i++ {
		binary.LittleEndian.PutUint64(buf, i)
		if err := r.Enqueue(buf); err != nil {
			t.Fatalf("wrap Enqueue(%d): %v", i, err)
		}
	}

	want := []uint64{3, 4, 5, 6, 7, 100, 101, 102}
	for _, w := range want {
		if err := r.Dequeue(buf); err != nil {
			t.Fatalf("final Dequeue: %v", err)
		}
		if got := binary.LittleEndian.Uint64(buf); got != w {
			t.Fatalf("got %d, want %d", got, w)
		}
	}
}

// TestBulkAllOrNothing checks that EnqueueBulk rejects the whole batch
// when it would not fit, leaving the ring unchanged.
func TestBulkAllOrNothing(t *testing.T) {
	r, err := Create(8, 4, ExactSZ)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	buf := make([]byte, 4*6)
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(i))
	}
	if err := r.EnqueueBulk(buf); err != nil {
		t.Fatalf("EnqueueBulk(6) failed: %v", err)
	}

	tooMany := make([]byte, 4*4)
	if err := r.EnqueueBulk(tooMany); err != ErrNoSpace {
		t.Fatalf("EnqueueBulk(4 more, only 2 free): err = %v, want ErrNoSpace", err)
	}

	out := make([]byte, 4*2)
	if err := r.DequeueBulk(out); err != nil {
		t.Fatalf("DequeueBulk(2) failed: %v", err)
	}
	if got0, got1 := binary.LittleEndian.Uint32(out[:4]), binary.LittleEndian.Uint32(out[4:]); got0 != 0 || got1 != 1 {
		t.Fatalf("got %d,%d want 0,1", got0, got1)
	}
}
