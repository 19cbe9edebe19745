package buntdb

import (
	"fmt"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/pmkol/sharedlru/coremain"
	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/kv/bunt_kv"
	"github.com/pmkol/sharedlru/pkg/utils"
)

const BackendType = "buntdb"

func init() {
	coremain.RegNewBackendFunc(BackendType, Init, func() any { return new(Args) })
}

type Args struct {
	// Path is ":memory:" or a file. Default is ":memory:".
	Path string `yaml:"path"`
}

// Backends opened on the same path in this process share one database,
// so instances can share a namespace without a server.
var dbs = utils.NewRefMap[string, *buntdb.DB]()

func openDB(path string) func() (*buntdb.DB, error) {
	return func() (*buntdb.DB, error) {
		db, err := buntdb.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open buntdb %s, %w", path, err)
		}
		return db, nil
	}
}

func closeDB(db *buntdb.DB) error { return db.Close() }

type backend struct {
	*bunt_kv.Backend
	path      string
	closeOnce sync.Once
}

func (b *backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = dbs.Release(b.path, closeDB)
	})
	return err
}

func Init(bp *coremain.BP, args any) (kv.Backend, error) {
	path := args.(*Args).Path
	if len(path) == 0 {
		path = ":memory:"
	}
	db, err := dbs.Acquire(path, openDB(path))
	if err != nil {
		return nil, err
	}
	b, err := bunt_kv.NewBuntBackend(bunt_kv.BuntOpts{
		DB:        db,
		Path:      path,
		Namespace: bp.CacheName(),
		Logger:    bp.L(),
	})
	if err != nil {
		dbs.Release(path, closeDB)
		return nil, err
	}
	return &backend{Backend: b, path: path}, nil
}
