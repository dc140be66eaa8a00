// Package bitvec provides fixed capacity bit vectors used as materialization
// targets for decoded bitmap segments.
package bitvec

import (
	"iter"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gernest/roaring"
)

// Vector is a fixed capacity, index addressable bit set. Implementations only
// need to support setting bits, segment readers never clear or resize them.
type Vector interface {
	Set(i uint64)
	Size() uint64
}

// Dense is a Vector backed by a contiguous bitset.
type Dense struct {
	bs   *bitset.BitSet
	size uint64
}

var _ Vector = (*Dense)(nil)

// NewDense returns a dense vector with capacity bits.
func NewDense(capacity uint64) *Dense {
	if capacity == 0 {
		panic("bitvec: zero capacity")
	}
	return &Dense{bs: bitset.New(uint(capacity)), size: capacity}
}

func (d *Dense) Set(i uint64) {
	d.bs.Set(uint(i))
}

func (d *Dense) Size() uint64 { return d.size }

// Test returns true if bit i is set.
func (d *Dense) Test(i uint64) bool {
	return d.bs.Test(uint(i))
}

// Count returns the number of set bits.
func (d *Dense) Count() uint64 {
	return uint64(d.bs.Count())
}

// Clear unsets every bit. Callers own clearing between scans.
func (d *Dense) Clear() {
	d.bs.ClearAll()
}

// Bits iterates over set bits in ascending order.
func (d *Dense) Bits() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for i, ok := d.bs.NextSet(0); ok; i, ok = d.bs.NextSet(i + 1) {
			if !yield(uint64(i)) {
				return
			}
		}
	}
}

// Slice returns all set bits.
func (d *Dense) Slice() []uint64 {
	o := make([]uint64, 0, d.bs.Count())
	for i := range d.Bits() {
		o = append(o, i)
	}
	return o
}

// Union sets every bit set in other.
func (d *Dense) Union(other *Dense) {
	d.bs.InPlaceUnion(other.bs)
}

// Roaring is a Vector backed by a roaring bitmap. It suits wide capacities
// with sparse content.
type Roaring struct {
	ra   *roaring.Bitmap
	size uint64
}

var _ Vector = (*Roaring)(nil)

// NewRoaring returns a sparse vector with capacity bits.
func NewRoaring(capacity uint64) *Roaring {
	if capacity == 0 {
		panic("bitvec: zero capacity")
	}
	return &Roaring{ra: roaring.NewBitmap(), size: capacity}
}

func (r *Roaring) Set(i uint64) {
	r.ra.DirectAdd(i)
}

func (r *Roaring) Size() uint64 { return r.size }

// Bitmap returns the underlying bitmap.
func (r *Roaring) Bitmap() *roaring.Bitmap {
	return r.ra
}

// Locked serializes Set calls so several readers can materialize into the
// same vector concurrently.
type Locked struct {
	mu sync.Mutex
	v  Vector
}

var _ Vector = (*Locked)(nil)

// NewLocked wraps v.
func NewLocked(v Vector) *Locked {
	return &Locked{v: v}
}

func (l *Locked) Set(i uint64) {
	l.mu.Lock()
	l.v.Set(i)
	l.mu.Unlock()
}

func (l *Locked) Size() uint64 { return l.v.Size() }
