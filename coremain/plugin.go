package coremain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/utils"
)

// NewBackendFunc builds a backend from its decoded args.
type NewBackendFunc func(bp *BP, args any) (kv.Backend, error)

// NewArgsFunc returns a pointer to a new, zero args struct.
type NewArgsFunc func() any

type backendTypeInfo struct {
	newBackend NewBackendFunc
	newArgs    NewArgsFunc
}

var (
	backendTypeRegister = make(map[string]backendTypeInfo)
	backendTypeMu       sync.RWMutex
)

// RegNewBackendFunc registers a backend type. It panics if typ is
// already registered. Backend packages call it from init.
func RegNewBackendFunc(typ string, initFunc NewBackendFunc, argsType NewArgsFunc) {
	backendTypeMu.Lock()
	defer backendTypeMu.Unlock()
	if _, dup := backendTypeRegister[typ]; dup {
		panic(fmt.Sprintf("duplicate backend type %s", typ))
	}
	backendTypeRegister[typ] = backendTypeInfo{newBackend: initFunc, newArgs: argsType}
}

// GetBackendTypes returns the registered types, sorted.
func GetBackendTypes() []string {
	backendTypeMu.RLock()
	defer backendTypeMu.RUnlock()
	types := make([]string, 0, len(backendTypeRegister))
	for typ := range backendTypeRegister {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// BP is the common context handed to a backend constructor.
type BP struct {
	typ       string
	logger    *zap.Logger
	cacheName string
	timeout   time.Duration
}

func NewBP(typ string, lg *zap.Logger, cacheName string, timeout time.Duration) *BP {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &BP{
		typ:       typ,
		logger:    lg.Named(typ),
		cacheName: cacheName,
		timeout:   timeout,
	}
}

func (b *BP) Type() string { return b.typ }

func (b *BP) L() *zap.Logger { return b.logger }

// CacheName is the namespace the backend must be scoped to.
func (b *BP) CacheName() string { return b.cacheName }

// Timeout is the timeout of a single backend call.
func (b *BP) Timeout() time.Duration { return b.timeout }

// NewBackend builds the backend configured by c.
func NewBackend(c *BackendConfig, lg *zap.Logger) (kv.Backend, error) {
	backendTypeMu.RLock()
	info, ok := backendTypeRegister[c.Type]
	backendTypeMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend type %s, available types: %v", c.Type, GetBackendTypes())
	}

	args := info.newArgs()
	if err := decodeArgs(c.Args, args); err != nil {
		return nil, fmt.Errorf("failed to decode backend args, %w", err)
	}
	bp := NewBP(c.Type, lg, c.CacheName, utils.Millis(c.Timeout))
	b, err := info.newBackend(bp, args)
	if err != nil {
		return nil, fmt.Errorf("failed to init backend %s, %w", c.Type, err)
	}
	return b, nil
}
