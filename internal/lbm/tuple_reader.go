package lbm

import (
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/lbm/internal/tuple"
)

// TupleReader supplies bitmap index tuples to a SegmentReader.
type TupleReader interface {
	// Read copies the next tuple into dst. Tuple data must stay valid until
	// the following call to Read.
	Read(dst *tuple.Tuple) stream.Result
}

type errReader interface {
	Err() error
}

// StreamTupleReader reads tuples from an upstream stream buffer.
type StreamTupleReader struct {
	buf *stream.Buffer
	err error
}

var _ TupleReader = (*StreamTupleReader)(nil)

// Init binds r to buf.
func (r *StreamTupleReader) Init(buf *stream.Buffer) {
	r.buf = buf
	r.err = nil
}

// Read implements TupleReader. The previously returned tuple is consumed
// before reading the next one.
func (r *StreamTupleReader) Read(dst *tuple.Tuple) stream.Result {
	if r.err != nil {
		return stream.Error
	}
	if r.buf.State() == stream.StateEOS {
		return stream.EOS
	}
	if r.buf.IsTupleConsumptionPending() {
		r.buf.ConsumeTuple()
	}
	if !r.buf.DemandData() {
		if r.buf.State() == stream.StateEOS {
			return stream.EOS
		}
		return stream.Underflow
	}
	if err := r.buf.Unmarshal(dst); err != nil {
		r.err = err
		return stream.Error
	}
	return stream.Yield
}

// Err returns the error that caused Read to return stream.Error.
func (r *StreamTupleReader) Err() error {
	return r.err
}

// SingleTupleReader replays a tuple already held by the caller, for instance
// one inspected by a merge operator doing look ahead.
type SingleTupleReader struct {
	t   tuple.Tuple
	has bool
}

var _ TupleReader = (*SingleTupleReader)(nil)

// Init makes t the only tuple returned by r.
func (r *SingleTupleReader) Init(t tuple.Tuple) {
	r.t = t
	r.has = true
}

// Read implements TupleReader. It yields the held tuple once.
func (r *SingleTupleReader) Read(dst *tuple.Tuple) stream.Result {
	if !r.has {
		return stream.EOS
	}
	*dst = r.t
	r.has = false
	return stream.Yield
}
