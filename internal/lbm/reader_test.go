package lbm

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gernest/lbm/internal/bitvec"
	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/lbm/internal/tuple"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T, capacity uint64, tuples ...tuple.Tuple) (*SegmentReader, *bitvec.Dense) {
	t.Helper()
	buf := stream.NewBuffer(0)
	for _, tu := range tuples {
		require.NoError(t, buf.Produce(context.Background(), tu))
	}
	buf.MarkEOS()
	vec := bitvec.NewDense(capacity)
	return NewStreamSegmentReader(buf, WithBitmap(vec)), vec
}

func TestExampleScenario(t *testing.T) {
	// stored bytes are reversed: logical order is 0x02 then 0x01.
	desc := AppendSegDesc(nil, 1, 0)
	desc = AppendSegDesc(desc, 1, 8)
	r, vec := newReader(t, 64, tuple.NewBitmap(nil, 16, desc, []byte{0x01, 0x02}))

	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
	require.True(t, r.TupleChange())
	require.Empty(t, vec.Slice())

	for r.HasSegDesc() {
		require.NoError(t, r.AdvanceSegment())
	}
	require.Equal(t, []uint64{17, 24}, vec.Slice())
	require.Equal(t, rid.RID(24), r.MaxRIDSet())
	require.Equal(t, stream.EOS, r.ReadBitmapSegTuple())
}

func TestSingletonEquivalence(t *testing.T) {
	for _, start := range []rid.RID{0, 7, 21, 64, 1<<32 + 3} {
		a, va := newReader(t, 128, Singleton(nil, start))
		b, vb := newReader(t, 128, NewPlainTuple(nil, start, []byte{1 << rid.Offset(start)}))
		require.Equal(t, stream.Yield, a.ReadBitmapSegTuple())
		require.Equal(t, stream.Yield, b.ReadBitmapSegTuple())
		require.Equal(t, vb.Slice(), va.Slice())
		require.Equal(t, []uint64{rid.Modulo(start, 128)}, va.Slice())
		require.Equal(t, b.MaxRIDSet(), a.MaxRIDSet())
		require.Equal(t, start, a.MaxRIDSet())
	}
}

func TestNoDescriptorShortCircuit(t *testing.T) {
	r, vec := newReader(t, 64, NewPlainTuple(nil, 0, []byte{0xff, 0x00, 0x01}))
	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
	require.False(t, r.HasSegDesc())
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 16}, vec.Slice())
	require.Panics(t, func() { _ = r.AdvanceSegment() })
}

func TestContractViolations(t *testing.T) {
	var r SegmentReader
	require.Panics(t, func() { r.ReadBitmapSegTuple() })
	require.Panics(t, func() { _ = r.AdvanceSegment() })

	var single SingleTupleReader
	single.Init(Singleton(nil, 1))
	var dst tuple.Tuple
	r.Init(&single, &dst)
	require.Panics(t, func() { r.Init(&single, &dst) })

	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
	require.Equal(t, stream.EOS, r.ReadBitmapSegTuple())

	single.Init(Singleton(nil, 2))
	require.NotPanics(t, func() { r.Init(&single, &dst) })
	r.Reset()
	require.Panics(t, func() { r.ReadBitmapSegTuple() })
}

func TestNoMaterialize(t *testing.T) {
	var single SingleTupleReader
	single.Init(NewTuple(nil, 8, SegmentSpec{Bytes: []byte{0xff}, ZeroBytes: 3}, SegmentSpec{Bytes: []byte{0x01}}))
	var r SegmentReader
	var dst tuple.Tuple
	r.Init(&single, &dst)

	var got []rid.RID
	for {
		seg, rc := r.NextSegment()
		if rc != stream.Yield {
			require.Equal(t, stream.EOS, rc)
			break
		}
		got = slices.AppendSeq(got, seg.RIDs())
	}
	require.Equal(t, []rid.RID{8, 9, 10, 11, 12, 13, 14, 15, 40}, got)
	require.Equal(t, rid.Min, r.MaxRIDSet())
}

func TestUnderflowResume(t *testing.T) {
	ctx := context.Background()
	buf := stream.NewBuffer(0)
	vec := bitvec.NewDense(256)
	r := NewStreamSegmentReader(buf, WithBitmap(vec))

	require.Equal(t, stream.Underflow, r.ReadBitmapSegTuple())
	require.False(t, r.TupleChange())

	require.NoError(t, buf.Produce(ctx, Singleton(nil, 3)))
	seg, rc := r.NextSegment()
	require.Equal(t, stream.Yield, rc)
	require.Equal(t, rid.ByteNumber(0), seg.Start)
	require.True(t, r.TupleChange())
	r.ResetChangeListener()

	_, rc = r.NextSegment()
	require.Equal(t, stream.Underflow, rc)

	require.NoError(t, buf.Produce(ctx, NewTuple(nil, 64, SegmentSpec{Bytes: []byte{0x10}})))
	seg, rc = r.NextSegment()
	require.Equal(t, stream.Yield, rc)
	require.Equal(t, []byte{0x10}, seg.AppendBytes(nil))
	require.True(t, r.TupleChange())

	buf.MarkEOS()
	_, rc = r.NextSegment()
	require.Equal(t, stream.EOS, rc)
	require.Equal(t, []uint64{3, 68}, vec.Slice())
}

func TestStreamTupleReaderError(t *testing.T) {
	ctx := context.Background()
	buf := stream.NewBuffer(0)
	require.NoError(t, buf.Produce(ctx, tuple.Tuple{tuple.Null()}))
	buf.MarkEOS()
	r := NewStreamSegmentReader(buf)
	require.Equal(t, stream.Error, r.ReadBitmapSegTuple())
	require.ErrorIs(t, r.Err(), tuple.ErrShape)
}

func TestSingletonWithDescriptor(t *testing.T) {
	var single SingleTupleReader
	single.Init(tuple.NewBitmap(nil, 1, AppendSegDesc(nil, 1, 0), nil))
	var r SegmentReader
	var dst tuple.Tuple
	r.Init(&single, &dst)
	require.Equal(t, stream.Error, r.ReadBitmapSegTuple())
	require.ErrorIs(t, r.Err(), ErrCorruptSegment)

	single.Init(Singleton(nil, 9))
	require.NotPanics(t, func() { r.Init(&single, &dst) })
	require.NoError(t, r.Err())
	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
}

func TestRowIDOverflow(t *testing.T) {
	last := rid.RID(math.MaxUint64)

	r, vec := newReader(t, 8, NewTuple(nil, 0,
		SegmentSpec{Bytes: []byte{0x01}, ZeroBytes: 1 << 61},
		SegmentSpec{Bytes: []byte{0x02}},
	))
	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
	require.NoError(t, r.AdvanceSegment())
	require.ErrorIs(t, r.AdvanceSegment(), ErrCorruptDescriptor)
	require.Equal(t, stream.Error, r.ReadBitmapSegTuple())
	require.Equal(t, rid.RID(0), r.MaxRIDSet())
	require.Equal(t, []uint64{0}, vec.Slice())

	r, vec = newReader(t, 8, NewPlainTuple(nil, last-7, []byte{0x01, 0x01}))
	require.Equal(t, stream.Error, r.ReadBitmapSegTuple())
	require.ErrorIs(t, r.Err(), ErrCorruptSegment)
	require.Empty(t, vec.Slice())

	r, vec = newReader(t, 8,
		NewTuple(nil, 0,
			SegmentSpec{Bytes: []byte{0x01}, ZeroBytes: uint64(rid.MaxByteNumber) - 1},
			SegmentSpec{Bytes: []byte{0x80}},
		),
	)
	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
	require.NoError(t, r.AdvanceSegment())
	require.NoError(t, r.AdvanceSegment())
	require.Equal(t, last, r.MaxRIDSet())
	require.Equal(t, []uint64{0, 7}, vec.Slice())

	r, _ = newReader(t, 8, Singleton(nil, last))
	require.Equal(t, stream.Yield, r.ReadBitmapSegTuple())
	require.Equal(t, last, r.MaxRIDSet())
}

// randomTuples builds tuples from random segments and returns the row ids
// they cover.
func randomTuples(rng *rand.Rand, n int) ([]tuple.Tuple, []rid.RID) {
	var (
		tuples []tuple.Tuple
		want   []rid.RID
		next   rid.ByteNumber
	)
	for range n {
		next += rid.ByteNumber(rng.IntN(4))
		start := next
		switch rng.IntN(3) {
		case 0:
			r := rid.ToRID(start) + rid.RID(rng.IntN(8))
			tuples = append(tuples, Singleton(nil, r))
			want = append(want, r)
			next++
		case 1:
			data := make([]byte, 1+rng.IntN(4))
			for i := range data {
				data[i] = byte(rng.Uint32())
			}
			tuples = append(tuples, NewPlainTuple(nil, rid.ToRID(start), data))
			want = appendRIDs(want, start, data)
			next += rid.ByteNumber(len(data))
		default:
			specs := make([]SegmentSpec, 1+rng.IntN(5))
			for i := range specs {
				data := make([]byte, 1+rng.IntN(3))
				for j := range data {
					data[j] = byte(rng.Uint32())
				}
				specs[i] = SegmentSpec{Bytes: data, ZeroBytes: uint64(rng.IntN(6))}
				want = appendRIDs(want, next, data)
				next += rid.ByteNumber(len(data)) + rid.ByteNumber(specs[i].ZeroBytes)
			}
			tuples = append(tuples, NewTuple(nil, rid.ToRID(start), specs...))
		}
	}
	return tuples, want
}

func appendRIDs(dst []rid.RID, start rid.ByteNumber, data []byte) []rid.RID {
	base := rid.ToRID(start)
	for i, b := range data {
		for j := range rid.OneByteSize {
			if b&(1<<j) != 0 {
				dst = append(dst, base+rid.RID(i*rid.OneByteSize+j))
			}
		}
	}
	return dst
}

func TestRandomMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 50 {
		tuples, want := randomTuples(rng, 1+rng.IntN(20))
		r, vec := newReader(t, 1<<16, tuples...)

		var (
			got     []rid.RID
			lastOff rid.ByteNumber
			maxSeen = rid.Min
		)
		for {
			rc := r.ReadBitmapSegTuple()
			if rc == stream.EOS {
				break
			}
			require.Equal(t, stream.Yield, rc)
			for {
				off, _, _ := r.Position()
				require.GreaterOrEqual(t, off, lastOff)
				lastOff = off
				require.GreaterOrEqual(t, r.MaxRIDSet(), maxSeen)
				maxSeen = r.MaxRIDSet()
				got = slices.AppendSeq(got, r.Current().RIDs())
				if !r.HasSegDesc() {
					break
				}
				require.NoError(t, r.AdvanceSegment())
			}
		}
		require.Equal(t, want, got)

		wantBits := make([]uint64, 0, len(want))
		for _, x := range want {
			wantBits = append(wantBits, uint64(x))
		}
		require.Equal(t, wantBits, vec.Slice())
		if len(want) > 0 {
			require.Equal(t, want[len(want)-1], r.MaxRIDSet())
		} else {
			require.Equal(t, rid.Min, r.MaxRIDSet())
		}
	}
}
