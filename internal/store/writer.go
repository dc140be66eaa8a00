package store

import (
	"github.com/gernest/lbm/internal/rid"
	"github.com/gernest/lbm/internal/tuple"
	"github.com/google/btree"
)

type item struct {
	start rid.RID
	data  []byte
}

func lessItem(a, b item) bool {
	return a.start < b.start
}

// Writer buffers tuples of one entry in start rid order until Flush.
// Tuples sharing a start rid replace each other.
type Writer struct {
	db   *DB
	name string
	tree *btree.BTreeG[item]
}

// Writer returns a writer for entry name. Writers are not safe for
// concurrent use.
func (s *DB) Writer(name string) *Writer {
	return &Writer{
		db:   s,
		name: name,
		tree: btree.NewG(16, lessItem),
	}
}

// Add buffers t. t is copied and can be reused by the caller.
func (w *Writer) Add(t tuple.Tuple) error {
	start, err := t.StartRID()
	if err != nil {
		return err
	}
	w.tree.ReplaceOrInsert(item{start: start, data: tuple.Append(nil, t)})
	return nil
}

// Len returns the number of buffered tuples.
func (w *Writer) Len() int {
	return w.tree.Len()
}

// Flush writes buffered tuples as pages and publishes updated metadata.
// Buffered tuples must start after every tuple already stored for the entry.
func (w *Writer) Flush() error {
	if w.tree.Len() == 0 {
		return nil
	}
	items := make([]item, 0, w.tree.Len())
	w.tree.Ascend(func(i item) bool {
		items = append(items, i)
		return true
	})
	m, err := w.db.write(w.name, items)
	if err != nil {
		return err
	}
	w.tree.Clear(false)
	w.db.publish(m)
	w.db.lo.Info("flushed bitmap entry", "entry", w.name, "tuples", len(items), "pages", m.Pages)
	return nil
}
