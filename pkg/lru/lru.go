package lru

import (
	"github.com/pmkol/sharedlru/pkg/list"
)

// Entry is an immutable key value pair. Updating a key replaces
// its *Entry, it never mutates one in place.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Queue orders entries from least recently used (front) to most
// recently used (back). The key set of the list and of the index map
// are always equal and both point at the same element.
//
// Queue has no size bound and no locking; eviction policy belongs to
// the caller.
type Queue[K comparable, V any] struct {
	l *list.List[*Entry[K, V]]
	m map[K]*list.Elem[*Entry[K, V]]
}

func NewQueue[K comparable, V any](sizeHint int) *Queue[K, V] {
	return &Queue[K, V]{
		l: list.New[*Entry[K, V]](),
		m: make(map[K]*list.Elem[*Entry[K, V]], sizeHint),
	}
}

// Get returns the entry for key without touching its position.
func (q *Queue[K, V]) Get(key K) (*Entry[K, V], bool) {
	e, ok := q.m[key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

func (q *Queue[K, V]) Contains(key K) bool {
	_, ok := q.m[key]
	return ok
}

// PushBack appends e as the most recently used entry. An older entry
// with the same key is dropped first, so e never inherits its position.
func (q *Queue[K, V]) PushBack(e *Entry[K, V]) {
	if old, ok := q.m[e.Key]; ok {
		q.l.PopElem(old)
	}
	q.m[e.Key] = q.l.PushBack(list.NewElem(e))
}

// Touch marks key as the most recently used one.
func (q *Queue[K, V]) Touch(key K) bool {
	e, ok := q.m[key]
	if !ok {
		return false
	}
	q.l.MoveToBack(e)
	return true
}

// Swap replaces the entry stored under e.Key, keeping its position.
// It reports false if the key is not queued.
func (q *Queue[K, V]) Swap(e *Entry[K, V]) bool {
	el, ok := q.m[e.Key]
	if !ok {
		return false
	}
	el.Value = e
	return true
}

func (q *Queue[K, V]) Del(key K) (*Entry[K, V], bool) {
	el, ok := q.m[key]
	if !ok {
		return nil, false
	}
	q.l.PopElem(el)
	delete(q.m, key)
	return el.Value, true
}

// Oldest returns the least recently used entry.
func (q *Queue[K, V]) Oldest() (*Entry[K, V], bool) {
	el := q.l.Front()
	if el == nil {
		return nil, false
	}
	return el.Value, true
}

func (q *Queue[K, V]) PopOldest() (*Entry[K, V], bool) {
	e, ok := q.Oldest()
	if !ok {
		return nil, false
	}
	q.Del(e.Key)
	return e, true
}

// Range calls f from the oldest to the newest entry until f returns false.
// f must not modify q.
func (q *Queue[K, V]) Range(f func(e *Entry[K, V]) bool) {
	for el := q.l.Front(); el != nil; el = el.Next() {
		if !f(el.Value) {
			return
		}
	}
}

// Keys returns the queued keys, oldest first.
func (q *Queue[K, V]) Keys() []K {
	keys := make([]K, 0, q.l.Len())
	q.Range(func(e *Entry[K, V]) bool {
		keys = append(keys, e.Key)
		return true
	})
	return keys
}

func (q *Queue[K, V]) Len() int {
	return q.l.Len()
}

func (q *Queue[K, V]) Reset() {
	q.l = list.New[*Entry[K, V]]()
	clear(q.m)
}
