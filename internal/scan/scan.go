// Package scan drives segment readers to completion.
//
// Readers never block. A scan retries underflows itself, either waiting on
// the upstream buffer ready signal or yielding the processor, and gives up
// after too many consecutive underflows without a ready signal.
package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gernest/lbm/internal/bitvec"
	"github.com/gernest/lbm/internal/cfg"
	"github.com/gernest/lbm/internal/lbm"
	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/store"
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/roaring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/promslog"
	"golang.org/x/sync/errgroup"
)

// ErrUnderflow is returned when upstream stays empty for too long.
var ErrUnderflow = errors.New("scan: upstream starved")

// Scanner runs scans with shared configuration and metrics.
type Scanner struct {
	cfg     *cfg.Config
	metrics *Metrics
	lo      *slog.Logger
}

// New returns a scanner. Nil c uses defaults, nil reg skips metric
// registration and nil lo discards logs.
func New(c *cfg.Config, reg prometheus.Registerer, lo *slog.Logger) *Scanner {
	if c == nil {
		c = cfg.NewDefaultConfig()
	}
	if lo == nil {
		lo = promslog.NewNopLogger()
	}
	return &Scanner{cfg: c, metrics: NewMetrics(reg), lo: lo}
}

// Metrics returns counters updated by s.
func (s *Scanner) Metrics() *Metrics {
	return s.metrics
}

// waiter handles underflows of a single scan.
type waiter struct {
	ready   <-chan struct{}
	starved int
	limit   int
}

func (w *waiter) wait(ctx context.Context) error {
	if w.ready != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.ready:
			return nil
		}
	}
	w.starved++
	if w.starved > w.limit {
		return ErrUnderflow
	}
	runtime.Gosched()
	return ctx.Err()
}

func (w *waiter) progress() {
	w.starved = 0
}

func (s *Scanner) fail(err error) error {
	s.metrics.Failures.Inc()
	return err
}

// Collect drains r into a roaring bitmap using the streaming segment view.
// ready may be nil when no upstream signal is available.
func (s *Scanner) Collect(ctx context.Context, r *lbm.SegmentReader, ready <-chan struct{}) (*roaring.Bitmap, error) {
	ra := roaring.NewBitmap()
	w := waiter{ready: ready, limit: s.cfg.MaxUnderflows}
	for {
		seg, rc := r.NextSegment()
		switch rc {
		case stream.Yield:
			w.progress()
			if r.TupleChange() {
				r.ResetChangeListener()
				s.metrics.Tuples.Inc()
				if err := ctx.Err(); err != nil {
					return nil, s.fail(err)
				}
			}
			s.metrics.Segments.Inc()
			for x := range seg.RIDs() {
				ra.DirectAdd(uint64(x))
			}
		case stream.Underflow:
			s.metrics.Underflows.Inc()
			if err := w.wait(ctx); err != nil {
				return nil, s.fail(err)
			}
		case stream.EOS:
			return ra, nil
		default:
			return nil, s.fail(fmt.Errorf("collecting segments %w", r.Err()))
		}
	}
}

// Materialize drives r tuple by tuple and segment by segment until end of
// stream. r must have been initialized with a bitmap. Returns the highest
// materialized row id.
func (s *Scanner) Materialize(ctx context.Context, r *lbm.SegmentReader, ready <-chan struct{}) (rid.RID, error) {
	w := waiter{ready: ready, limit: s.cfg.MaxUnderflows}
	for {
		rc := r.ReadBitmapSegTuple()
		switch rc {
		case stream.Yield:
		case stream.Underflow:
			s.metrics.Underflows.Inc()
			if err := w.wait(ctx); err != nil {
				return r.MaxRIDSet(), s.fail(err)
			}
			continue
		case stream.EOS:
			return r.MaxRIDSet(), nil
		default:
			return r.MaxRIDSet(), s.fail(fmt.Errorf("reading bitmap tuple %w", r.Err()))
		}
		w.progress()
		r.ResetChangeListener()
		s.metrics.Tuples.Inc()
		if !r.HasSegDesc() {
			// Singletons and tuples without descriptor are materialized by
			// the read itself.
			s.metrics.Segments.Inc()
		}
		for r.HasSegDesc() {
			if err := r.AdvanceSegment(); err != nil {
				return r.MaxRIDSet(), s.fail(fmt.Errorf("advancing segment %w", err))
			}
			s.metrics.Segments.Inc()
		}
		if err := ctx.Err(); err != nil {
			return r.MaxRIDSet(), s.fail(err)
		}
	}
}

// Union materializes every named entry of db into vec. Entries are decoded
// concurrently, each by its own reader, with Set calls on vec serialized.
// Returns the highest materialized row id across entries.
func (s *Scanner) Union(ctx context.Context, db *store.DB, names []string, vec bitvec.Vector) (rid.RID, error) {
	shared := bitvec.NewLocked(vec)
	var (
		mu     sync.Mutex
		maxRID = rid.Min
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, name := range names {
		g.Go(func() error {
			buf := stream.NewBuffer(s.cfg.BufferTuples)
			r := lbm.NewStreamSegmentReader(buf, lbm.WithBitmap(shared), lbm.WithLogger(s.lo.With("entry", name)))
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return db.Feed(ctx, name, buf)
			})
			eg.Go(func() error {
				m, err := s.Materialize(ctx, r, buf.Ready())
				mu.Lock()
				maxRID = max(maxRID, m)
				mu.Unlock()
				return err
			})
			if err := eg.Wait(); err != nil {
				return fmt.Errorf("decoding entry %s %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return maxRID, err
	}
	s.lo.Debug("union complete", "entries", len(names), "max_rid", uint64(maxRID))
	return maxRID, nil
}

// Windows yields the number of row ids of ra falling in each capacity sized
// window, the way a vector of that capacity would be reused across chunks.
func Windows(ra *roaring.Bitmap, capacity uint64) iter.Seq2[rid.Window, uint64] {
	return func(yield func(rid.Window, uint64) bool) {
		first, ok := ra.Min()
		if !ok {
			return
		}
		lo := rid.RID(first / capacity * capacity)
		hi := rid.RID(ra.Max()) + 1
		for w := range rid.Chunks(lo, hi, capacity) {
			if !yield(w, ra.CountRange(uint64(w.Lo), uint64(w.Hi))) {
				return
			}
		}
	}
}
