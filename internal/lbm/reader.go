package lbm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gernest/lbm/internal/bitvec"
	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/lbm/internal/tuple"
	"github.com/prometheus/common/promslog"
)

// ErrCorruptSegment is returned for tuples whose segment data contradicts the
// rest of the tuple.
var ErrCorruptSegment = errors.New("lbm: corrupt bitmap segment")

type phase uint8

const (
	awaitingTuple phase = iota
	hasTuple
	exhausted
	failed
)

// state is the decode cursor. Every field is reset by Init.
type state struct {
	// byteSegOffset is the byte number of the current segment. It never
	// decreases during a scan.
	byteSegOffset rid.ByteNumber
	// byteSegLen is the length of the current segment. It is zero right after
	// reading a tuple with a descriptor, until the first AdvanceSegment.
	byteSegLen int
	// zeroBytes is the implicit zero gap following the current segment.
	zeroBytes uint64

	// seg holds segment data of the current tuple in stored order. segStart
	// is the stored index of the first logical byte of the current segment,
	// walking towards index 0 as segments advance.
	seg      []byte
	segStart int
	desc     SegDesc

	startRID    rid.RID
	tupleChange bool
	maxRIDSet   rid.RID
	phase       phase
	emitted     bool
	singleton   [1]byte
}

func (st *state) current() Segment {
	lo := st.segStart - st.byteSegLen + 1
	return Segment{Start: st.byteSegOffset, data: st.seg[lo : st.segStart+1]}
}

// Option configures a SegmentReader.
type Option func(*options)

type options struct {
	vec bitvec.Vector
	lo  *slog.Logger
}

// WithBitmap mirrors every decoded bit into vec. Row ids are mapped into vec
// modulo its size.
func WithBitmap(vec bitvec.Vector) Option {
	return func(o *options) {
		o.vec = vec
	}
}

// WithLogger sets the logger used to report corrupt tuples.
func WithLogger(lo *slog.Logger) Option {
	return func(o *options) {
		o.lo = lo
	}
}

// SegmentReader decodes segments of bitmap index tuples.
//
// A reader is bound to a single scan. It must be initialized with Init before
// use and can only be initialized again after the scan reached end of stream,
// failed, or was Reset.
type SegmentReader struct {
	tr    TupleReader
	dst   *tuple.Tuple
	mat   materializer
	lo    *slog.Logger
	err   error
	ready bool
	st    state
}

// NewStreamSegmentReader returns a reader pulling tuples from buf.
func NewStreamSegmentReader(buf *stream.Buffer, opts ...Option) *SegmentReader {
	tr := new(StreamTupleReader)
	tr.Init(buf)
	r := new(SegmentReader)
	r.Init(tr, new(tuple.Tuple), opts...)
	return r
}

// Init binds r to tr. Tuples are read into dst.
func (r *SegmentReader) Init(tr TupleReader, dst *tuple.Tuple, opts ...Option) {
	if r.ready && r.st.phase != exhausted && r.st.phase != failed {
		panic("lbm: SegmentReader initialized during an active scan")
	}
	var o options
	for _, f := range opts {
		f(&o)
	}
	if o.lo == nil {
		o.lo = promslog.NewNopLogger()
	}
	r.tr = tr
	r.dst = dst
	r.lo = o.lo
	r.err = nil
	if o.vec != nil {
		r.mat = &vectorMaterialize{vec: o.vec, size: o.vec.Size()}
	} else {
		r.mat = noMaterialize{}
	}
	r.st = state{maxRIDSet: rid.Min}
	r.ready = true
}

// Reset releases collaborators so r can be initialized for a new scan.
func (r *SegmentReader) Reset() {
	*r = SegmentReader{}
}

func (r *SegmentReader) mustInit() {
	if !r.ready {
		panic("lbm: SegmentReader used before Init")
	}
}

func (r *SegmentReader) fail(err error) stream.Result {
	r.err = err
	r.st.phase = failed
	r.lo.Error("decoding bitmap tuple", "start_rid", uint64(r.st.startRID), "err", err)
	return stream.Error
}

// ReadBitmapSegTuple reads the next tuple and positions r at its start.
//
// Signals other than stream.Yield are returned unchanged and leave the decode
// state untouched. Tuples without a descriptor are decoded entirely by this
// call. Tuples with a descriptor are positioned before their first segment,
// AdvanceSegment moves to it.
func (r *SegmentReader) ReadBitmapSegTuple() stream.Result {
	r.mustInit()
	switch r.st.phase {
	case exhausted:
		return stream.EOS
	case failed:
		return stream.Error
	}
	rc := r.tr.Read(r.dst)
	switch rc {
	case stream.Yield:
	case stream.EOS:
		r.st.phase = exhausted
		return rc
	case stream.Error:
		err := errors.New("lbm: tuple reader failed")
		if e, ok := r.tr.(errReader); ok && e.Err() != nil {
			err = e.Err()
		}
		return r.fail(err)
	default:
		return rc
	}

	st := &r.st
	start, err := r.dst.StartRID()
	if err != nil {
		return r.fail(err)
	}
	st.startRID = start
	st.byteSegOffset = rid.ToByteNumber(start)
	st.zeroBytes = 0

	desc := r.dst.Descriptor()
	seg := r.dst.Segment()
	if seg == nil {
		if desc != nil {
			return r.fail(fmt.Errorf("%w: singleton at %d carries a descriptor", ErrCorruptSegment, start))
		}
		st.singleton[0] = 1 << rid.Offset(start)
		seg = st.singleton[:]
	}
	st.seg = seg
	st.segStart = len(seg) - 1
	st.byteSegLen = 0
	st.desc.Init(desc, len(seg))
	st.phase = hasTuple
	if desc == nil {
		if err := r.nextSegment(); err != nil {
			return r.fail(err)
		}
	}
	st.emitted = false
	st.tupleChange = true
	return stream.Yield
}

// nextSegment decodes the next descriptor entry at the current position and
// materializes the segment it describes.
func (r *SegmentReader) nextSegment() error {
	st := &r.st
	run, gap, err := st.desc.Next()
	if err != nil {
		return err
	}
	if run > uint64(st.segStart+1) {
		return fmt.Errorf("%w: segment of %d bytes with %d bytes left", ErrCorruptDescriptor, run, st.segStart+1)
	}
	// Bytes left before the last row id. Zero when byteSegOffset is MaxByteNumber+1.
	if run > uint64(rid.MaxByteNumber-st.byteSegOffset)+1 {
		return fmt.Errorf("%w: segment of %d bytes at byte %d passes the last row id", ErrCorruptSegment, run, st.byteSegOffset)
	}
	st.byteSegLen = int(run)
	st.zeroBytes = gap
	st.emitted = false
	r.mat.apply(st.current(), &st.maxRIDSet)
	return nil
}

// HasSegDesc returns true if the current tuple has descriptor entries left,
// that is AdvanceSegment may be called.
func (r *SegmentReader) HasSegDesc() bool {
	return r.st.phase == hasTuple && !r.st.desc.Exhausted()
}

// AdvanceSegment moves to the next segment of the current tuple, skipping the
// current segment and its trailing zero bytes.
//
// Calling AdvanceSegment when HasSegDesc returns false is a programming error
// and panics. Corrupt descriptors fail the scan and return the error.
func (r *SegmentReader) AdvanceSegment() error {
	r.mustInit()
	st := &r.st
	if !r.HasSegDesc() {
		panic("lbm: AdvanceSegment without remaining segment descriptor")
	}
	next := st.byteSegOffset + rid.ByteNumber(st.byteSegLen)
	if st.zeroBytes > uint64(rid.MaxByteNumber-next)+1 {
		err := fmt.Errorf("%w: gap of %d bytes after byte %d passes the last row id", ErrCorruptDescriptor, st.zeroBytes, next)
		r.fail(err)
		return err
	}
	st.byteSegOffset = next + rid.ByteNumber(st.zeroBytes)
	st.segStart -= st.byteSegLen
	if err := r.nextSegment(); err != nil {
		r.fail(err)
		return err
	}
	return nil
}

// Current returns the segment r is positioned at. It is empty before the
// first AdvanceSegment of a tuple with a descriptor.
func (r *SegmentReader) Current() Segment {
	if r.st.phase != hasTuple {
		return Segment{}
	}
	return r.st.current()
}

// Position returns the byte number and length of the current segment and the
// zero bytes following it.
func (r *SegmentReader) Position() (offset rid.ByteNumber, length int, zeroBytes uint64) {
	return r.st.byteSegOffset, r.st.byteSegLen, r.st.zeroBytes
}

// StartRID returns the start row id of the current tuple.
func (r *SegmentReader) StartRID() rid.RID {
	return r.st.startRID
}

// TupleChange returns true if a tuple was read since the last call to
// ResetChangeListener.
func (r *SegmentReader) TupleChange() bool {
	return r.st.tupleChange
}

// ResetChangeListener clears the tuple change flag.
func (r *SegmentReader) ResetChangeListener() {
	r.st.tupleChange = false
}

// MaxRIDSet returns the highest row id materialized so far.
func (r *SegmentReader) MaxRIDSet() rid.RID {
	return r.st.maxRIDSet
}

// Err returns the error that failed the scan.
func (r *SegmentReader) Err() error {
	return r.err
}
