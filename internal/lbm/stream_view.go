package lbm

import (
	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/stream"
)

// NextSegment returns the next segment of the bitmap, reading tuples as
// needed. Segments are returned in ascending byte order. Signals other than
// stream.Yield come with an empty segment.
func (r *SegmentReader) NextSegment() (Segment, stream.Result) {
	r.mustInit()
	for {
		if rc := r.ensureTuple(); rc != stream.Yield {
			return Segment{}, rc
		}
		st := &r.st
		if st.byteSegLen > 0 && !st.emitted {
			st.emitted = true
			return st.current(), stream.Yield
		}
		if rc := r.step(); rc != stream.Yield {
			return Segment{}, rc
		}
	}
}

// AdvanceToRID skips segments ending before target. On stream.Yield the next
// call to NextSegment returns the first segment containing or following
// target, even if it was returned before.
func (r *SegmentReader) AdvanceToRID(target rid.RID) stream.Result {
	r.mustInit()
	tb := rid.ToByteNumber(target)
	for {
		if rc := r.ensureTuple(); rc != stream.Yield {
			return rc
		}
		st := &r.st
		if st.byteSegLen > 0 && st.byteSegOffset+rid.ByteNumber(st.byteSegLen) > tb {
			st.emitted = false
			return stream.Yield
		}
		if rc := r.step(); rc != stream.Yield {
			return rc
		}
	}
}

func (r *SegmentReader) ensureTuple() stream.Result {
	switch r.st.phase {
	case hasTuple:
		return stream.Yield
	case exhausted:
		return stream.EOS
	case failed:
		return stream.Error
	default:
		return r.ReadBitmapSegTuple()
	}
}

// step moves past the current segment, dropping the tuple once its
// descriptor is exhausted.
func (r *SegmentReader) step() stream.Result {
	if r.HasSegDesc() {
		if err := r.AdvanceSegment(); err != nil {
			return stream.Error
		}
		return stream.Yield
	}
	r.st.phase = awaitingTuple
	return stream.Yield
}
