package lbm

import (
	"github.com/gernest/lbm/internal/bitvec"
	"github.com/gernest/lbm/internal/rid"
)

// materializer mirrors decoded segments into a bit vector.
type materializer interface {
	apply(seg Segment, maxRID *rid.RID)
}

type noMaterialize struct{}

func (noMaterialize) apply(Segment, *rid.RID) {}

type vectorMaterialize struct {
	vec  bitvec.Vector
	size uint64
}

func (m *vectorMaterialize) apply(seg Segment, maxRID *rid.RID) {
	r := seg.StartRID()
	for i := len(seg.data) - 1; i >= 0; i-- {
		b := seg.data[i]
		for j := rid.RID(0); b != 0; j++ {
			if b&1 != 0 {
				x := r + j
				m.vec.Set(rid.Modulo(x, m.size))
				*maxRID = max(*maxRID, x)
			}
			b >>= 1
		}
		r += rid.OneByteSize
	}
}
