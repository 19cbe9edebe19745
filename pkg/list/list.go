package list

// List is a doubly linked list. Elements are allocated by the caller
// with NewElem so that a map can hold the same *Elem the list links.
// The zero value is not usable, use New.
type List[V any] struct {
	front, back *Elem[V]
	length      int
}

func New[V any]() *List[V] {
	return &List[V]{}
}

func (l *List[V]) Front() *Elem[V] {
	return l.front
}

func (l *List[V]) Back() *Elem[V] {
	return l.back
}

func (l *List[V]) Len() int {
	return l.length
}

// PushBack links a detached element at the back of l.
func (l *List[V]) PushBack(e *Elem[V]) *Elem[V] {
	if e.list != nil {
		panic("elem already belongs to a list")
	}
	e.list = l
	l.length++
	l.linkBack(e)
	return e
}

// MoveToBack moves an element of l to the back in O(1).
// Does not change length.
func (l *List[V]) MoveToBack(e *Elem[V]) {
	l.mustOwn(e)
	if l.back == e {
		return
	}
	l.unlink(e)
	l.linkBack(e)
}

// PopElem unlinks e from l and returns it detached.
func (l *List[V]) PopElem(e *Elem[V]) *Elem[V] {
	l.mustOwn(e)
	l.unlink(e)
	l.length--
	e.list = nil
	return e
}

// Reset drops every element. Elements still referenced elsewhere
// are not detached and must not be reused with l.
func (l *List[V]) Reset() {
	l.front, l.back = nil, nil
	l.length = 0
}

func (l *List[V]) mustOwn(e *Elem[V]) {
	if e.list != l {
		panic("elem does not belong to this list")
	}
}

func (l *List[V]) linkBack(e *Elem[V]) {
	e.next = nil
	e.prev = l.back
	if l.back == nil {
		l.front = e
	} else {
		l.back.next = e
	}
	l.back = e
}

func (l *List[V]) unlink(e *Elem[V]) {
	if e.prev == nil {
		l.front = e.next
	} else {
		e.prev.next = e.next
	}
	if e.next == nil {
		l.back = e.prev
	} else {
		e.next.prev = e.prev
	}
	e.prev, e.next = nil, nil
}
