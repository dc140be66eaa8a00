// Package rid implements row id arithmetic used by bitmap index segments.
//
// Bitmaps address rows in byte sized groups. A byte number identifies the
// group of OneByteSize consecutive rows starting at ToRID(byteNumber).
package rid

// OneByteSize is the number of row ids covered by a single bitmap byte.
const OneByteSize = 8

// RID is a row identifier.
type RID uint64

// Min is the lowest representable row id.
const Min RID = 0

// ByteNumber is the position of a byte in a fully materialized bitmap.
type ByteNumber uint64

// MaxByteNumber is the last byte whose row ids are all representable.
const MaxByteNumber = ByteNumber(^uint64(0) / OneByteSize)

// ToByteNumber returns the byte containing rid.
func ToByteNumber(rid RID) ByteNumber {
	return ByteNumber(rid / OneByteSize)
}

// ToRID returns the first row id covered by byte b.
func ToRID(b ByteNumber) RID {
	return RID(b * OneByteSize)
}

// Modulo maps rid into [0, capacity). Bit vectors are reused across
// successive chunks of rows so rid is allowed to exceed capacity.
func Modulo(rid RID, capacity uint64) uint64 {
	return uint64(rid) % capacity
}

// Offset returns the bit position of rid inside its byte.
func Offset(rid RID) uint {
	return uint(rid % OneByteSize)
}
