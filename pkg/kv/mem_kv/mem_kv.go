package mem_kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/list"
)

var errInjected = errors.New("mem_kv: store marked unavailable")

// Store is an in process store shared by any number of namespaces.
// Backends from the same Store observe each other's writes, which is
// what makes it usable as a stand-in for a remote store.
type Store struct {
	unavailable atomic.Bool

	mu     sync.Mutex
	spaces map[string]*space
}

type space struct {
	l *list.List[kv.KV]
	m map[string]*list.Elem[kv.KV]
}

func NewStore() *Store {
	return &Store{spaces: make(map[string]*space)}
}

// SetUnavailable makes every operation on every namespace fail with
// kv.ErrUnavailable until it is called again with false.
func (s *Store) SetUnavailable(b bool) {
	s.unavailable.Store(b)
}

// Namespace returns a Backend scoped to name.
func (s *Store) Namespace(name string) (*Backend, error) {
	if err := kv.CheckNamespace(name); err != nil {
		return nil, err
	}
	return &Backend{s: s, ns: name}, nil
}

// Len returns the number of keys in namespace name.
func (s *Store) Len(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp := s.spaces[name]; sp != nil {
		return sp.l.Len()
	}
	return 0
}

func (s *Store) check(op string) error {
	if s.unavailable.Load() {
		return kv.Unavailable(op, errInjected)
	}
	return nil
}

// lockSpace locks s and returns namespace ns, creating it if create is set.
// The caller must unlock s.mu.
func (s *Store) lockSpace(ns string, create bool) *space {
	s.mu.Lock()
	sp := s.spaces[ns]
	if sp == nil && create {
		sp = &space{l: list.New[kv.KV](), m: make(map[string]*list.Elem[kv.KV])}
		s.spaces[ns] = sp
	}
	return sp
}

type Backend struct {
	s  *Store
	ns string
}

var _ kv.Backend = (*Backend)(nil)

func (b *Backend) Set(_ context.Context, key, value string) error {
	if err := b.s.check("set"); err != nil {
		return err
	}
	sp := b.s.lockSpace(b.ns, true)
	defer b.s.mu.Unlock()

	if e, ok := sp.m[key]; ok {
		e.Value.Value = value
		sp.l.MoveToBack(e)
		return nil
	}
	sp.m[key] = sp.l.PushBack(list.NewElem(kv.KV{Key: key, Value: value}))
	return nil
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	if err := b.s.check("get"); err != nil {
		return "", err
	}
	sp := b.s.lockSpace(b.ns, false)
	defer b.s.mu.Unlock()

	if sp == nil {
		return "", kv.ErrNotFound
	}
	e, ok := sp.m[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return e.Value.Value, nil
}

func (b *Backend) Remove(_ context.Context, key string) error {
	if err := b.s.check("remove"); err != nil {
		return err
	}
	sp := b.s.lockSpace(b.ns, false)
	defer b.s.mu.Unlock()

	if sp == nil {
		return nil
	}
	if e, ok := sp.m[key]; ok {
		sp.l.PopElem(e)
		delete(sp.m, key)
	}
	return nil
}

func (b *Backend) GetAll(_ context.Context) ([]kv.KV, error) {
	if err := b.s.check("get_all"); err != nil {
		return nil, err
	}
	sp := b.s.lockSpace(b.ns, false)
	defer b.s.mu.Unlock()

	if sp == nil {
		return nil, nil
	}
	out := make([]kv.KV, 0, sp.l.Len())
	for e := sp.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out, nil
}

func (b *Backend) Clear(_ context.Context) error {
	if err := b.s.check("clear"); err != nil {
		return err
	}
	b.s.mu.Lock()
	delete(b.s.spaces, b.ns)
	b.s.mu.Unlock()
	return nil
}

// Close is a no-op, the Store outlives its namespaces.
func (b *Backend) Close() error {
	return nil
}
