package store

import (
	"bytes"
	"io"

	"github.com/gernest/lbm/internal/pools"
	"github.com/minio/minlz"
)

var (
	writers = pools.Pool[*minlz.Writer]{Init: pools.Funcs[*minlz.Writer]{
		New: func() *minlz.Writer { return minlz.NewWriter(nil) },
		Clean: func(w *minlz.Writer) *minlz.Writer {
			w.Reset(nil)
			return w
		},
	}}
	readers = pools.Pool[*minlz.Reader]{Init: pools.Funcs[*minlz.Reader]{
		New: func() *minlz.Reader { return minlz.NewReader(nil) },
		Clean: func(r *minlz.Reader) *minlz.Reader {
			r.Reset(nil)
			return r
		},
	}}
	buffers = pools.Pool[*bytes.Buffer]{Init: pools.Funcs[*bytes.Buffer]{
		New: func() *bytes.Buffer { return new(bytes.Buffer) },
		Clean: func(b *bytes.Buffer) *bytes.Buffer {
			b.Reset()
			return b
		},
	}}
)

// compress appends minlz stream encoding of data to dst.
func compress(dst *bytes.Buffer, data []byte) error {
	w := writers.Get()
	defer writers.Put(w)
	w.Reset(dst)
	_, err := w.Write(data)
	if err != nil {
		return err
	}
	return w.Close()
}

// decompress returns a fresh copy of the data encoded in src.
func decompress(src []byte) ([]byte, error) {
	r := readers.Get()
	defer readers.Put(r)
	r.Reset(bytes.NewReader(src))
	return io.ReadAll(r)
}
