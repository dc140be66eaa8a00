// Package store persists bitmap index entries and replays them into stream
// buffers consumed by segment readers.
//
// Layout inside the bolt database:
//
//	entries/
//	  <highwayhash(name)>/
//	    name  = entry name
//	    meta  = tuple, page and byte counts
//	    pages/
//	      <big endian start rid> = xxhash(payload) | minlz(tuples)
//
// Pages hold consecutive tuples in start rid order, so a cursor walk over
// pages replays the entry in order.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/gernest/lbm/internal/cfg"
	"github.com/gernest/lbm/internal/checksum"
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/lbm/internal/tuple"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/common/promslog"
	"go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries")
	pagesBucket   = []byte("pages")
	nameKey       = []byte("name")
	metaKey       = []byte("meta")
)

var (
	// ErrNotFound is returned for unknown entries.
	ErrNotFound = errors.New("store: entry not found")
	// ErrChecksum is returned when a page fails verification.
	ErrChecksum = errors.New("store: page checksum mismatch")
	// ErrCorrupt is returned for undecodable pages or metadata.
	ErrCorrupt = errors.New("store: corrupt data")
	// ErrOutOfOrder is returned when flushing tuples that start before
	// tuples already stored for the entry.
	ErrOutOfOrder = errors.New("store: tuples out of order")
)

// Catalog is an immutable snapshot of stored entries keyed by name.
type Catalog = immutable.SortedMap[string, Meta]

// DB stores bitmap index entries.
type DB struct {
	db  *bbolt.DB
	cfg *cfg.Config
	lo  *slog.Logger

	// mu serializes catalog updates, readers load the snapshot.
	mu      sync.Mutex
	catalog atomic.Pointer[Catalog]
}

// Init opens the database at path. Nil c uses defaults and nil lo discards
// logs.
func (s *DB) Init(path string, c *cfg.Config, lo *slog.Logger) error {
	if c == nil {
		c = cfg.NewDefaultConfig()
	}
	if lo == nil {
		lo = promslog.NewNopLogger()
	}
	s.cfg = c
	s.lo = lo
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return fmt.Errorf("opening bitmap store %w", err)
	}
	s.db = db
	catalog := immutable.NewSortedMap[string, Meta](nil)
	err = db.Update(func(tx *bbolt.Tx) error {
		entries, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return fmt.Errorf("creating entries bucket %w", err)
		}
		return entries.ForEachBucket(func(k []byte) error {
			eb := entries.Bucket(k)
			var m Meta
			if v := eb.Get(metaKey); v != nil {
				if err := m.decode(v); err != nil {
					return pkgerrors.Wrapf(err, "loading entry %x", k)
				}
			}
			m.Name = string(eb.Get(nameKey))
			copy(m.ID[:], k)
			catalog = catalog.Set(m.Name, m)
			return nil
		})
	})
	if err != nil {
		db.Close()
		return err
	}
	s.catalog.Store(catalog)
	lo.Info("opened bitmap store", "path", path, "entries", catalog.Len())
	return nil
}

// Close closes the underlying database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Catalog returns the current snapshot of stored entries.
func (s *DB) Catalog() *Catalog {
	return s.catalog.Load()
}

// Entries iterates over stored entries in name order.
func (s *DB) Entries() iter.Seq[Meta] {
	return func(yield func(Meta) bool) {
		it := s.catalog.Load().Iterator()
		for !it.Done() {
			_, m, _ := it.Next()
			if !yield(m) {
				return
			}
		}
	}
}

// Meta returns metadata for entry name.
func (s *DB) Meta(name string) (Meta, bool) {
	return s.catalog.Load().Get(name)
}

func (s *DB) publish(m Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.Store(s.catalog.Load().Set(m.Name, m))
}

func entryBucket(tx *bbolt.Tx, id checksum.U128) *bbolt.Bucket {
	return tx.Bucket(entriesBucket).Bucket(id[:])
}

func (s *DB) write(name string, items []item) (m Meta, err error) {
	id := checksum.Sum([]byte(name))
	err = s.db.Update(func(tx *bbolt.Tx) error {
		eb, err := tx.Bucket(entriesBucket).CreateBucketIfNotExists(id[:])
		if err != nil {
			return fmt.Errorf("creating entry bucket %w", err)
		}
		if v := eb.Get(metaKey); v != nil {
			if err := m.decode(v); err != nil {
				return err
			}
			if m.Tuples > 0 && items[0].start <= m.MaxStart {
				return pkgerrors.Wrapf(ErrOutOfOrder, "entry %s start %d <= %d", name, items[0].start, m.MaxStart)
			}
		}
		m.Name = name
		m.ID = id
		err = eb.Put(nameKey, []byte(name))
		if err != nil {
			return fmt.Errorf("storing entry name %w", err)
		}
		pages, err := eb.CreateBucketIfNotExists(pagesBucket)
		if err != nil {
			return fmt.Errorf("creating pages bucket %w", err)
		}
		payload := buffers.Get()
		defer buffers.Put(payload)
		encoded := buffers.Get()
		defer buffers.Put(encoded)

		for i := 0; i < len(items); i += s.cfg.PageTuples {
			chunk := items[i:min(i+s.cfg.PageTuples, len(items))]
			payload.Reset()
			for j := range chunk {
				payload.Write(chunk[j].data)
			}
			encoded.Reset()
			if err := compress(encoded, payload.Bytes()); err != nil {
				return fmt.Errorf("compressing page %w", err)
			}
			value := binary.BigEndian.AppendUint64(make([]byte, 0, 8+encoded.Len()), checksum.Hash(encoded.Bytes()))
			value = append(value, encoded.Bytes()...)
			key := binary.BigEndian.AppendUint64(nil, uint64(chunk[0].start))
			if err := pages.Put(key, value); err != nil {
				return fmt.Errorf("storing page %w", err)
			}
			m.Pages++
			m.Tuples += uint64(len(chunk))
			m.Bytes += uint64(len(value))
		}
		m.MaxStart = items[len(items)-1].start
		return eb.Put(metaKey, m.encode())
	})
	return
}

// readPage verifies and decompresses a stored page.
func readPage(key, value []byte) ([]byte, error) {
	if len(value) < 8 {
		return nil, pkgerrors.Wrapf(ErrCorrupt, "page %x is too short", key)
	}
	sum, data := binary.BigEndian.Uint64(value), value[8:]
	if checksum.Hash(data) != sum {
		return nil, pkgerrors.Wrapf(ErrChecksum, "page %x", key)
	}
	out, err := decompress(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "decompressing page %x", key)
	}
	return out, nil
}

// nextPage returns the decoded page following after, or the first page when
// after is nil. A nil key means no pages are left.
func (s *DB) nextPage(id checksum.U128, after []byte) (key, payload []byte, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		eb := entryBucket(tx, id)
		if eb == nil {
			return ErrNotFound
		}
		pages := eb.Bucket(pagesBucket)
		if pages == nil {
			return nil
		}
		cu := pages.Cursor()
		var k, v []byte
		if after == nil {
			k, v = cu.First()
		} else {
			k, v = cu.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, v = cu.Next()
			}
		}
		if k == nil {
			return nil
		}
		key = bytes.Clone(k)
		payload, err = readPage(k, v)
		return err
	})
	return
}

// Feed replays entry name into buf and marks buf EOS once every tuple was
// produced. On error buf is left open, the caller must abandon the scan.
//
// Each page is read in its own transaction so slow consumers do not pin the
// database.
func (s *DB) Feed(ctx context.Context, name string, buf *stream.Buffer) error {
	id := checksum.Sum([]byte(name))
	var (
		after []byte
		t     tuple.Tuple
		count int
	)
	for {
		key, payload, err := s.nextPage(id, after)
		if err != nil {
			return pkgerrors.Wrapf(err, "reading entry %s", name)
		}
		if key == nil {
			break
		}
		after = key
		for len(payload) > 0 {
			var n int
			t, n, err = tuple.Decode(t, payload)
			if err != nil {
				return pkgerrors.Wrapf(err, "decoding page %x of %s", key, name)
			}
			if err := buf.Produce(ctx, t); err != nil {
				return err
			}
			payload = payload[n:]
			count++
		}
	}
	buf.MarkEOS()
	s.lo.Debug("fed bitmap entry", "entry", name, "tuples", count)
	return nil
}
