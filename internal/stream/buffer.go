package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/gernest/lbm/internal/tuple"
)

var (
	// ErrClosed is returned when producing to a buffer marked EOS.
	ErrClosed = errors.New("stream: buffer is at end of stream")

	// ErrNoTuple is returned by Unmarshal when the buffer holds no data.
	ErrNoTuple = errors.New("stream: no tuple available")
)

// State describes what the consumer side of a Buffer observes.
type State uint8

const (
	// StateEmpty means nothing has been produced and nothing was demanded yet.
	StateEmpty State = iota
	// StateUnderflow means the consumer demanded data that was not available.
	StateUnderflow
	// StateNonEmpty means at least one tuple is ready.
	StateNonEmpty
	// StateEOS means the producer is done and every tuple was consumed.
	StateEOS
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateUnderflow:
		return "underflow"
	case StateNonEmpty:
		return "non_empty"
	case StateEOS:
		return "eos"
	default:
		return "unknown"
	}
}

// Buffer is a bounded queue of encoded tuples with a single producer and a
// single consumer.
//
// The consumer never blocks, it polls State and DemandData. Producers block
// in Produce when the buffer is full until the consumer makes room or ctx is
// done. A tuple handed out by Unmarshal stays valid until ConsumeTuple.
type Buffer struct {
	mu       sync.Mutex
	queue    [][]byte
	head     int
	limit    int
	eos      bool
	starved  bool
	pending  bool
	room     chan struct{}
	ready    chan struct{}
	produced uint64
	consumed uint64
}

// NewBuffer returns a buffer holding at most limit tuples. limit <= 0 means
// the buffer is unbounded.
func NewBuffer(limit int) *Buffer {
	return &Buffer{
		limit: limit,
		room:  make(chan struct{}, 1),
		ready: make(chan struct{}, 1),
	}
}

func (b *Buffer) size() int {
	return len(b.queue) - b.head
}

// Produce appends t to the buffer, waiting for room when the buffer is full.
func (b *Buffer) Produce(ctx context.Context, t tuple.Tuple) error {
	data := tuple.Append(nil, t)
	for {
		b.mu.Lock()
		if b.eos {
			b.mu.Unlock()
			return ErrClosed
		}
		if b.limit <= 0 || b.size() < b.limit {
			b.queue = append(b.queue, data)
			b.produced++
			b.starved = false
			b.mu.Unlock()
			notify(b.ready)
			return nil
		}
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.room:
		}
	}
}

// MarkEOS signals that no more tuples will be produced.
func (b *Buffer) MarkEOS() {
	b.mu.Lock()
	b.eos = true
	b.mu.Unlock()
	notify(b.ready)
}

// Ready is signalled after tuples are produced or the buffer is marked StateEOS.
// Consumers that observed an underflow may wait on it before retrying.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// State returns the consumer side state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state()
}

func (b *Buffer) state() State {
	switch {
	case b.size() > 0:
		return StateNonEmpty
	case b.eos:
		return StateEOS
	case b.starved:
		return StateUnderflow
	default:
		return StateEmpty
	}
}

// DemandData returns true if a tuple is ready to be unmarshalled. When it
// returns false the buffer records the underflow so producers and observers
// can tell the consumer is starved.
func (b *Buffer) DemandData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size() > 0 {
		return true
	}
	if !b.eos {
		b.starved = true
	}
	return false
}

// Unmarshal decodes the tuple at the head of the buffer into dst. The tuple
// remains at the head until ConsumeTuple is called.
func (b *Buffer) Unmarshal(dst *tuple.Tuple) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size() == 0 {
		return ErrNoTuple
	}
	t, _, err := tuple.Decode(*dst, b.queue[b.head])
	if err != nil {
		return err
	}
	*dst = t
	b.pending = true
	return nil
}

// IsTupleConsumptionPending returns true if the head tuple was unmarshalled
// but not consumed yet.
func (b *Buffer) IsTupleConsumptionPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// ConsumeTuple drops the head tuple.
func (b *Buffer) ConsumeTuple() {
	b.mu.Lock()
	if b.size() > 0 {
		b.queue[b.head] = nil
		b.head++
		b.consumed++
		if b.head == len(b.queue) {
			b.queue = b.queue[:0]
			b.head = 0
		}
	}
	b.pending = false
	b.mu.Unlock()
	notify(b.room)
}

// Stats returns the number of produced and consumed tuples.
func (b *Buffer) Stats() (produced, consumed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.produced, b.consumed
}
