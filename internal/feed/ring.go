// Package feed implements the binary market-data ingestion path: a
// lock-free producer/consumer ring, the applier that bridges decoded wire
// events onto a book, and the handler that drives the consumer side and
// tracks sequence gaps.
package feed

import "sync/atomic"

// cacheLinePad is sized to push the next field onto its own cache line
// (64 bytes minus the 8-byte counter it follows), avoiding false sharing
// between the producer's and consumer's cursors.
type cacheLinePad [56]byte

// Ring is a bounded, lossy, single-producer/single-consumer queue.
// Capacity is rounded up to the next power of two by NewRing; one slot is
// always left vacant to disambiguate full from empty without a separate
// count field.
type Ring[T any] struct {
	mask uint64
	buf  []T

	writePos atomic.Uint64
	_        cacheLinePad
	readPos  atomic.Uint64
	_        cacheLinePad
}

// NewRing builds a Ring of the next power of two at or above capacity
// slots (minimum 2); its usable capacity is one less than that.
func NewRing[T any](capacity int) *Ring[T] {
	c := nextPow2(capacity)
	return &Ring[T]{
		mask: uint64(c - 1),
		buf:  make([]T, c),
	}
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// TryPush publishes v. Returns false if the ring is full.
func (r *Ring[T]) TryPush(v T) bool {
	write := r.writePos.Load()
	read := r.readPos.Load() // acquire: see the consumer's latest release
	if ((write + 1) & r.mask) == (read & r.mask) {
		return false
	}
	r.buf[write&r.mask] = v
	r.writePos.Store(write + 1) // release: publish the slot write
	return true
}

// TryPop consumes the oldest published value. Returns false if empty.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	read := r.readPos.Load()
	write := r.writePos.Load() // acquire: see the producer's latest release
	if read == write {
		return zero, false
	}
	v := r.buf[read&r.mask]
	r.readPos.Store(read + 1) // release
	return v, true
}

// Len is an approximate count of items currently queued (racy against a
// concurrently running producer/consumer, useful only for stats/metrics).
func (r *Ring[T]) Len() int {
	return int((r.writePos.Load() - r.readPos.Load()) & r.mask)
}

// Capacity returns the number of slots the ring was allocated with (one
// more than the number of items it can hold at once).
func (r *Ring[T]) Capacity() int { return int(r.mask + 1) }

// MPSCRing is a bounded, lossy, multi-producer/single-consumer queue.
// Producers serialise via a CAS loop on the write cursor; only one
// goroutine may call TryPop.
type MPSCRing[T any] struct {
	mask uint64
	buf  []T

	writePos atomic.Uint64
	_        cacheLinePad
	readPos  atomic.Uint64
	_        cacheLinePad
}

// NewMPSCRing builds an MPSCRing of the next power of two at or above
// capacity slots (minimum 2); its usable capacity is one less than that.
func NewMPSCRing[T any](capacity int) *MPSCRing[T] {
	c := nextPow2(capacity)
	return &MPSCRing[T]{
		mask: uint64(c - 1),
		buf:  make([]T, c),
	}
}

// TryPush publishes v from any number of concurrent producers. Returns
// false if the ring is full.
func (r *MPSCRing[T]) TryPush(v T) bool {
	for {
		write := r.writePos.Load()
		read := r.readPos.Load()
		if ((write + 1) & r.mask) == (read & r.mask) {
			return false
		}
		if r.writePos.CompareAndSwap(write, write+1) {
			r.buf[write&r.mask] = v
			return true
		}
	}
}

// TryPop consumes the oldest published value. Only safe called from a
// single consumer goroutine.
func (r *MPSCRing[T]) TryPop() (T, bool) {
	var zero T
	read := r.readPos.Load()
	write := r.writePos.Load()
	if read == write {
		return zero, false
	}
	v := r.buf[read&r.mask]
	r.readPos.Store(read + 1)
	return v, true
}

// Capacity returns the number of slots the ring was allocated with.
func (r *MPSCRing[T]) Capacity() int { return int(r.mask + 1) }
