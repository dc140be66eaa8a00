package lbm

import (
	"iter"
	"math/bits"
	"slices"

	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/tuple"
)

// Segment is a contiguous run of bitmap bytes starting at byte number Start.
// It is a view over tuple data kept in stored (reversed) order and is only
// valid until the reader moves to the next tuple.
type Segment struct {
	Start rid.ByteNumber
	data  []byte
}

// Len returns the number of bytes in s.
func (s Segment) Len() int {
	return len(s.data)
}

// IsEmpty returns true if s covers no bytes.
func (s Segment) IsEmpty() bool {
	return len(s.data) == 0
}

// Byte returns the i'th logical byte of s.
func (s Segment) Byte(i int) byte {
	return s.data[len(s.data)-1-i]
}

// StartRID returns the first row id covered by s.
func (s Segment) StartRID() rid.RID {
	return rid.ToRID(s.Start)
}

// End returns the byte number following the last byte of s.
func (s Segment) End() rid.ByteNumber {
	return s.Start + rid.ByteNumber(len(s.data))
}

// AppendBytes appends bytes of s in logical order to dst.
func (s Segment) AppendBytes(dst []byte) []byte {
	for i := len(s.data) - 1; i >= 0; i-- {
		dst = append(dst, s.data[i])
	}
	return dst
}

// RIDs iterates over row ids set in s in ascending order.
func (s Segment) RIDs() iter.Seq[rid.RID] {
	return func(yield func(rid.RID) bool) {
		base := s.StartRID()
		for i := len(s.data) - 1; i >= 0; i-- {
			for b := s.data[i]; b != 0; b &= b - 1 {
				if !yield(base + rid.RID(bits.TrailingZeros8(b))) {
					return
				}
			}
			base += rid.OneByteSize
		}
	}
}

// SegmentSpec describes a segment in logical byte order followed by
// ZeroBytes implicit zero bytes.
type SegmentSpec struct {
	Bytes     []byte
	ZeroBytes uint64
}

// NewTuple assembles a bitmap tuple with a segment descriptor from segments
// that were already split by the caller. start must be byte aligned.
func NewTuple(keys [][]byte, start rid.RID, segs ...SegmentSpec) tuple.Tuple {
	var desc, data []byte
	for i := range segs {
		desc = AppendSegDesc(desc, uint64(len(segs[i].Bytes)), segs[i].ZeroBytes)
		data = append(data, segs[i].Bytes...)
	}
	slices.Reverse(data)
	return tuple.NewBitmap(keys, start, desc, data)
}

// NewPlainTuple assembles a bitmap tuple without a descriptor. data is in
// logical order and forms a single segment.
func NewPlainTuple(keys [][]byte, start rid.RID, data []byte) tuple.Tuple {
	seg := slices.Clone(data)
	slices.Reverse(seg)
	return tuple.NewBitmap(keys, start, nil, seg)
}

// Singleton assembles a tuple covering only r.
func Singleton(keys [][]byte, r rid.RID) tuple.Tuple {
	return tuple.NewBitmap(keys, r, nil, nil)
}
