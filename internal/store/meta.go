package store

import (
	"encoding/binary"
	"fmt"

	"github.com/gernest/lbm/internal/checksum"
	"github.com/gernest/lbm/internal/rid"
)

// Meta describes a stored bitmap index entry.
type Meta struct {
	Name string
	ID   checksum.U128
	// Tuples is the number of stored tuples.
	Tuples uint64
	// Pages is the number of stored pages.
	Pages uint64
	// Bytes is the size of stored pages including checksums.
	Bytes uint64
	// MaxStart is the highest tuple start row id.
	MaxStart rid.RID
}

func (m *Meta) encode() []byte {
	b := binary.AppendUvarint(nil, m.Tuples)
	b = binary.AppendUvarint(b, m.Pages)
	b = binary.AppendUvarint(b, m.Bytes)
	return binary.AppendUvarint(b, uint64(m.MaxStart))
}

func (m *Meta) decode(data []byte) error {
	var fields [4]uint64
	for i := range fields {
		v, n := binary.Uvarint(data)
		if n <= 0 {
			return fmt.Errorf("%w: entry metadata field %d", ErrCorrupt, i)
		}
		fields[i] = v
		data = data[n:]
	}
	m.Tuples, m.Pages, m.Bytes = fields[0], fields[1], fields[2]
	m.MaxStart = rid.RID(fields[3])
	return nil
}
