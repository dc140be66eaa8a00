// Package tuple defines bitmap index tuples and their wire encoding.
//
// A bitmap index tuple carries any number of leading key columns followed by
// three trailing columns: the start row id, an optional segment descriptor and
// optional segment data. Trailing columns are addressed from the end because
// the number of key columns depends on the index.
package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gernest/lbm/internal/rid"
)

// Number of trailing bitmap columns.
const BitmapFields = 3

var (
	// ErrCorrupt is returned when a wire record is truncated or malformed.
	ErrCorrupt = errors.New("tuple: corrupt record")

	// ErrShape is returned when a tuple does not carry bitmap columns.
	ErrShape = errors.New("tuple: not a bitmap index tuple")
)

// Field is a single column value. Null fields carry no data.
type Field struct {
	Data []byte
	Null bool
}

// Tuple is an ordered list of fields.
type Tuple []Field

// Bytes returns a non null field holding data.
func Bytes(data []byte) Field {
	return Field{Data: data}
}

// Null returns a null field.
func Null() Field {
	return Field{Null: true}
}

// RID returns a non null field holding r.
func RID(r rid.RID) Field {
	return Field{Data: binary.BigEndian.AppendUint64(nil, uint64(r))}
}

// NewBitmap builds a bitmap index tuple. Nil desc or seg are stored as null.
func NewBitmap(keys [][]byte, start rid.RID, desc, seg []byte) Tuple {
	t := make(Tuple, 0, len(keys)+BitmapFields)
	for i := range keys {
		t = append(t, Bytes(keys[i]))
	}
	t = append(t, RID(start))
	if desc == nil {
		t = append(t, Null())
	} else {
		t = append(t, Bytes(desc))
	}
	if seg == nil {
		t = append(t, Null())
	} else {
		t = append(t, Bytes(seg))
	}
	return t
}

func (t Tuple) ridField() int        { return len(t) - 3 }
func (t Tuple) descriptorField() int { return len(t) - 2 }
func (t Tuple) segmentField() int    { return len(t) - 1 }

// Validate returns ErrShape if t can not be decoded as a bitmap tuple.
func (t Tuple) Validate() error {
	if len(t) < BitmapFields {
		return fmt.Errorf("%w: %d fields", ErrShape, len(t))
	}
	f := &t[t.ridField()]
	if f.Null || len(f.Data) != 8 {
		return fmt.Errorf("%w: invalid start rid column", ErrShape)
	}
	return nil
}

// StartRID returns the first row id represented by t.
func (t Tuple) StartRID() (rid.RID, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	return rid.RID(binary.BigEndian.Uint64(t[t.ridField()].Data)), nil
}

// Descriptor returns segment descriptor bytes or nil if the descriptor is
// absent. An empty descriptor is treated as absent.
func (t Tuple) Descriptor() []byte {
	f := &t[t.descriptorField()]
	if f.Null || len(f.Data) == 0 {
		return nil
	}
	return f.Data
}

// Segment returns stored segment bytes or nil for singleton tuples.
func (t Tuple) Segment() []byte {
	f := &t[t.segmentField()]
	if f.Null || len(f.Data) == 0 {
		return nil
	}
	return f.Data
}

// Keys returns the leading key columns.
func (t Tuple) Keys() Tuple {
	return t[:t.ridField()]
}

// Clone returns a deep copy of t.
func (t Tuple) Clone() Tuple {
	o := make(Tuple, len(t))
	for i := range t {
		o[i].Null = t[i].Null
		if t[i].Data != nil {
			o[i].Data = append([]byte(nil), t[i].Data...)
		}
	}
	return o
}
