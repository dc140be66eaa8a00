// Package pools provides typed wrappers around sync.Pool.
package pools

import "sync"

// PooledItem creates and recycles pooled values.
type PooledItem[T any] interface {
	Init() T
	Reset(T) T
}

// Pool is a typed sync.Pool. Values are reset before going back to the pool.
type Pool[T any] struct {
	Init PooledItem[T]
	base sync.Pool
}

func (p *Pool[T]) Get() T {
	if v := p.base.Get(); v != nil {
		return v.(T)
	}
	return p.Init.Init()
}

func (p *Pool[T]) Put(v T) {
	p.base.Put(p.Init.Reset(v))
}

// Funcs adapts a pair of functions to PooledItem.
type Funcs[T any] struct {
	New   func() T
	Clean func(T) T
}

func (f Funcs[T]) Init() T { return f.New() }

func (f Funcs[T]) Reset(v T) T {
	if f.Clean == nil {
		return v
	}
	return f.Clean(v)
}
