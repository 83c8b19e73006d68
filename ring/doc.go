// Package ring implements a bounded, power-of-two-sized FIFO of fixed-size
// elements, storing values in a byte-addressed backing array that the ring
// allocates alongside its producer/consumer head-tail state; the array is a
// separate allocation, not laid out inline after that state.
//
// Enqueue and dequeue each follow a reserve-write-publish protocol: a
// producer (or consumer) first reserves a range of slots by advancing its
// head counter — via CAS if multi-producer/multi-consumer, via a plain
// store if declared single — then writes the payload, then publishes by
// advancing its tail counter. Multi-endpoint publication spins until the
// tail catches up to the reservation's old head, so tail advances happen in
// reservation order and a consumer observing tail >= X has also observed
// every write for indices < X.
//
// The ring never blocks: Enqueue fails with ErrNoSpace and Dequeue fails
// with ErrEmpty rather than waiting. It is lock-free but not wait-free in
// multi-producer/multi-consumer mode — a stalled endpoint can make
// concurrent peers spin on the tail-publication wait, though not on the
// head CAS itself.
package ring
