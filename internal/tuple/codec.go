package tuple

import (
	"encoding/binary"
	"fmt"
)

// Append encodes t to dst.
//
// Layout: uvarint field count, then for every field a uvarint holding
// len(data)+1 (0 for null) followed by the data.
func Append(dst []byte, t Tuple) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(t)))
	for i := range t {
		if t[i].Null {
			dst = append(dst, 0)
			continue
		}
		dst = binary.AppendUvarint(dst, uint64(len(t[i].Data))+1)
		dst = append(dst, t[i].Data...)
	}
	return dst
}

// Decode decodes a tuple from src into dst, reusing dst capacity. Field data
// references src, callers must not modify src while the tuple is in use.
// Returns the decoded tuple and the number of bytes consumed.
func Decode(dst Tuple, src []byte) (Tuple, int, error) {
	n, off := binary.Uvarint(src)
	if off <= 0 {
		return dst, 0, fmt.Errorf("%w: field count", ErrCorrupt)
	}
	if n > uint64(len(src)) {
		return dst, 0, fmt.Errorf("%w: field count %d exceeds record size", ErrCorrupt, n)
	}
	dst = dst[:0]
	for i := range n {
		size, w := binary.Uvarint(src[off:])
		if w <= 0 {
			return dst, 0, fmt.Errorf("%w: field %d length", ErrCorrupt, i)
		}
		off += w
		if size == 0 {
			dst = append(dst, Field{Null: true})
			continue
		}
		size--
		if size > uint64(len(src)-off) {
			return dst, 0, fmt.Errorf("%w: field %d overruns record", ErrCorrupt, i)
		}
		end := off + int(size)
		dst = append(dst, Field{Data: src[off:end:end]})
		off = end
	}
	return dst, off, nil
}
