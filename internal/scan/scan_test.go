package scan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gernest/lbm/internal/bitvec"
	"github.com/gernest/lbm/internal/cfg"
	"github.com/gernest/lbm/internal/lbm"
	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/store"
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/lbm/internal/tuple"
	"github.com/gernest/roaring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// sample covers a tuple with two segments, a singleton and a tuple without
// descriptor.
func sample() []tuple.Tuple {
	return []tuple.Tuple{
		lbm.NewTuple(nil, 16,
			lbm.SegmentSpec{Bytes: []byte{0x02}},
			lbm.SegmentSpec{Bytes: []byte{0x01}, ZeroBytes: 8},
		),
		lbm.Singleton(nil, 100),
		lbm.NewPlainTuple(nil, 200, []byte{0x81}),
	}
}

var sampleRIDs = []uint64{17, 24, 100, 200, 207}

func filled(t *testing.T, eos bool, ts ...tuple.Tuple) *stream.Buffer {
	t.Helper()
	buf := stream.NewBuffer(0)
	for _, tu := range ts {
		require.NoError(t, buf.Produce(context.Background(), tu))
	}
	if eos {
		buf.MarkEOS()
	}
	return buf
}

func TestCollect(t *testing.T) {
	s := New(nil, prometheus.NewRegistry(), nil)
	r := lbm.NewStreamSegmentReader(filled(t, true, sample()...))
	ra, err := s.Collect(context.Background(), r, nil)
	require.NoError(t, err)
	require.Equal(t, sampleRIDs, ra.Slice())
	require.Equal(t, 3.0, testutil.ToFloat64(s.Metrics().Tuples))
	require.Equal(t, 4.0, testutil.ToFloat64(s.Metrics().Segments))
	require.Equal(t, 0.0, testutil.ToFloat64(s.Metrics().Failures))
}

func TestMaterialize(t *testing.T) {
	s := New(nil, nil, nil)
	vec := bitvec.NewDense(1024)
	r := lbm.NewStreamSegmentReader(filled(t, true, sample()...), lbm.WithBitmap(vec))
	m, err := s.Materialize(context.Background(), r, nil)
	require.NoError(t, err)
	require.Equal(t, rid.RID(207), m)
	require.Equal(t, sampleRIDs, vec.Slice())
	require.Equal(t, 3.0, testutil.ToFloat64(s.Metrics().Tuples))
	require.Equal(t, 4.0, testutil.ToFloat64(s.Metrics().Segments))
}

func TestMaterializeCorrupt(t *testing.T) {
	s := New(nil, nil, nil)
	bad := tuple.NewBitmap(nil, 8, []byte{0x05}, []byte{0x01})
	r := lbm.NewStreamSegmentReader(filled(t, true, bad))
	_, err := s.Materialize(context.Background(), r, nil)
	require.Error(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Failures))
}

func TestUnderflow(t *testing.T) {
	c := cfg.NewDefaultConfig()
	c.MaxUnderflows = 3
	s := New(c, nil, nil)
	r := lbm.NewStreamSegmentReader(filled(t, false, sample()[0]))
	_, err := s.Collect(context.Background(), r, nil)
	require.ErrorIs(t, err, ErrUnderflow)
	require.Equal(t, 4.0, testutil.ToFloat64(s.Metrics().Underflows))
	require.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Failures))
}

func TestCollectWaitsForProducer(t *testing.T) {
	s := New(nil, nil, nil)
	buf := stream.NewBuffer(1)
	go func() {
		for _, tu := range sample() {
			if buf.Produce(context.Background(), tu) != nil {
				return
			}
		}
		buf.MarkEOS()
	}()
	r := lbm.NewStreamSegmentReader(buf)
	ra, err := s.Collect(context.Background(), r, buf.Ready())
	require.NoError(t, err)
	require.Equal(t, sampleRIDs, ra.Slice())
}

func TestCollectCancel(t *testing.T) {
	s := New(nil, nil, nil)
	buf := stream.NewBuffer(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := lbm.NewStreamSegmentReader(buf)
	_, err := s.Collect(ctx, r, buf.Ready())
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnion(t *testing.T) {
	c := cfg.NewDefaultConfig()
	c.Workers = 2
	c.BufferTuples = 1
	db := new(store.DB)
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "lbm.db"), c, nil))
	defer db.Close()

	w := db.Writer("a")
	require.NoError(t, w.Add(lbm.Singleton(nil, 3)))
	require.NoError(t, w.Add(lbm.Singleton(nil, 70)))
	require.NoError(t, w.Flush())
	w = db.Writer("b")
	require.NoError(t, w.Add(lbm.NewPlainTuple(nil, 64, []byte{0x01, 0x80})))
	require.NoError(t, w.Flush())

	s := New(c, nil, nil)
	vec := bitvec.NewDense(1024)
	m, err := s.Union(context.Background(), db, []string{"a", "b"}, vec)
	require.NoError(t, err)
	require.Equal(t, rid.RID(79), m)
	require.Equal(t, []uint64{3, 64, 70, 79}, vec.Slice())

	_, err = s.Union(context.Background(), db, []string{"a", "missing"}, bitvec.NewDense(1024))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWindows(t *testing.T) {
	ra := roaring.NewBitmap(5, 9, 17, 40)
	type window struct {
		w rid.Window
		n uint64
	}
	var got []window
	for w, n := range Windows(ra, 16) {
		got = append(got, window{w, n})
	}
	require.Equal(t, []window{
		{rid.Window{Lo: 0, Hi: 16}, 2},
		{rid.Window{Lo: 16, Hi: 32}, 1},
		{rid.Window{Lo: 32, Hi: 41}, 1},
	}, got)

	got = got[:0]
	for w, n := range Windows(roaring.NewBitmap(40, 50), 16) {
		got = append(got, window{w, n})
	}
	require.Equal(t, []window{
		{rid.Window{Lo: 32, Hi: 48}, 1},
		{rid.Window{Lo: 48, Hi: 51}, 1},
	}, got)
	for range Windows(roaring.NewBitmap(), 16) {
		t.Fatal("empty bitmap yields no window")
	}
}
