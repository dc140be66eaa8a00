package lbm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dennwc/varint"
)

var (
	// ErrCorruptDescriptor is returned when a segment descriptor is malformed
	// or describes more bytes than the tuple carries.
	ErrCorruptDescriptor = errors.New("lbm: corrupt segment descriptor")

	// ErrDescriptorExhausted is returned when reading past the last
	// descriptor entry.
	ErrDescriptorExhausted = errors.New("lbm: segment descriptor exhausted")
)

// AppendSegDesc appends a descriptor entry for a segment of run bytes followed
// by gap zero bytes.
//
// An entry is two LEB128 uvarints: run-1 and gap. run must be at least 1.
func AppendSegDesc(dst []byte, run, gap uint64) []byte {
	if run == 0 {
		panic("lbm: zero length segment")
	}
	dst = binary.AppendUvarint(dst, run-1)
	return binary.AppendUvarint(dst, gap)
}

// SegDesc is a cursor over a segment descriptor.
//
// A nil descriptor describes a single segment spanning all segment data with
// no trailing gap. It is returned once by Next.
type SegDesc struct {
	data     []byte
	off      int
	implicit bool
	dataLen  uint64
}

// Init positions d at the start of desc. dataLen is the size of the segment
// data, it is only used when desc is nil.
func (d *SegDesc) Init(desc []byte, dataLen int) {
	d.data = desc
	d.off = 0
	d.implicit = desc == nil
	d.dataLen = uint64(dataLen)
}

// Exhausted returns true when Next has no more entries to return.
func (d *SegDesc) Exhausted() bool {
	return !d.implicit && d.off >= len(d.data)
}

// Implicit returns true if d describes an absent descriptor.
func (d *SegDesc) Implicit() bool {
	return d.data == nil
}

// Next decodes the next entry and advances the cursor.
func (d *SegDesc) Next() (run, gap uint64, err error) {
	if d.implicit {
		d.implicit = false
		return d.dataLen, 0, nil
	}
	if d.off >= len(d.data) {
		return 0, 0, ErrDescriptorExhausted
	}
	run, n := varint.Uvarint(d.data[d.off:])
	if n <= 0 || run == math.MaxUint64 {
		return 0, 0, fmt.Errorf("%w: bad run length at offset %d", ErrCorruptDescriptor, d.off)
	}
	d.off += n
	gap, n = varint.Uvarint(d.data[d.off:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("%w: bad zero length at offset %d", ErrCorruptDescriptor, d.off)
	}
	d.off += n
	return run + 1, gap, nil
}
