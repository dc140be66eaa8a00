package rid

import "iter"

// Window is a range of consecutive row ids. The upper bound Hi is exclusive.
type Window struct {
	Lo, Hi RID
}

// IsEmpty return true if w is not set.
func (w Window) IsEmpty() bool {
	return w == Window{}
}

// Contains returns true if r falls inside w.
func (w Window) Contains(r RID) bool {
	return r >= w.Lo && r < w.Hi
}

func (w *Window) next(capacity uint64) (o Window) {
	if w.IsEmpty() || w.Lo >= w.Hi {
		*w = Window{}
		return Window{}
	}
	o = *w
	chunk := uint64(w.Lo) / capacity
	offset := RID((chunk + 1) * capacity)
	if w.Hi <= offset {
		*w = Window{}
		return
	}
	w.Lo = offset
	o.Hi = offset
	return
}

// Chunks splits [lo, hi) into windows aligned to capacity. Each yielded window
// maps onto a bit vector of size capacity without two rows sharing a slot.
func Chunks(lo, hi RID, capacity uint64) iter.Seq[Window] {
	if capacity == 0 {
		panic("rid.Chunks: capacity is zero")
	}
	return func(yield func(Window) bool) {
		w := Window{Lo: lo, Hi: hi}
		for nxt := w.next(capacity); !nxt.IsEmpty(); nxt = w.next(capacity) {
			if !yield(nxt) {
				return
			}
		}
	}
}
