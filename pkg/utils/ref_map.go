package utils

import "sync"

// RefMap shares one value per key between holders. The value is opened
// by the first Acquire and closed by the last Release.
type RefMap[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*refEntry[V]
}

type refEntry[V any] struct {
	v    V
	refs int
}

func NewRefMap[K comparable, V any]() *RefMap[K, V] {
	return &RefMap[K, V]{m: make(map[K]*refEntry[V])}
}

// Acquire returns the value of k, calling open if no one holds it.
func (r *RefMap[K, V]) Acquire(k K, open func() (V, error)) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.m[k]; e != nil {
		e.refs++
		return e.v, nil
	}
	v, err := open()
	if err != nil {
		var zero V
		return zero, err
	}
	r.m[k] = &refEntry[V]{v: v, refs: 1}
	return v, nil
}

// Release drops one reference to k. The last one calls closeFn.
// Releasing an unknown key is a no-op.
func (r *RefMap[K, V]) Release(k K, closeFn func(V) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.m[k]
	if e == nil {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(r.m, k)
	return closeFn(e.v)
}

// Refs returns the number of holders of k.
func (r *RefMap[K, V]) Refs(k K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.m[k]; e != nil {
		return e.refs
	}
	return 0
}
