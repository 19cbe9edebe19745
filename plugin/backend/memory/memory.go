package memory

import (
	"github.com/pmkol/sharedlru/coremain"
	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/kv/mem_kv"
)

const BackendType = "memory"

// store is shared by every memory backend in this process.
var store = mem_kv.NewStore()

func init() {
	coremain.RegNewBackendFunc(BackendType, Init, func() any { return new(Args) })
}

type Args struct{}

func Init(bp *coremain.BP, _ any) (kv.Backend, error) {
	b, err := store.Namespace(bp.CacheName())
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Store returns the process wide store.
func Store() *mem_kv.Store {
	return store
}
