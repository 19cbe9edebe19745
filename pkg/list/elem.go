package list

type Elem[V any] struct {
	Value V

	prev, next *Elem[V]
	list       *List[V]
}

func NewElem[V any](v V) *Elem[V] {
	return &Elem[V]{Value: v}
}

// Next returns the element after e, or nil if e is the back
// or is detached.
func (e *Elem[V]) Next() *Elem[V] {
	if e.list == nil {
		return nil
	}
	return e.next
}

func (e *Elem[V]) Prev() *Elem[V] {
	if e.list == nil {
		return nil
	}
	return e.prev
}
