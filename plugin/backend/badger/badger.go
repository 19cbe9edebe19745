package badger

import (
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/coremain"
	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/kv/badger_kv"
	"github.com/pmkol/sharedlru/pkg/utils"
)

const BackendType = "badger"

func init() {
	coremain.RegNewBackendFunc(BackendType, Init, func() any { return new(Args) })
}

type Args struct {
	// Dir is ":memory:" or a database directory. Default is ":memory:".
	Dir string `yaml:"dir"`
}

// A badger directory can only be opened once per process, so backends
// on the same Dir share one database.
var dbs = utils.NewRefMap[string, *badger.DB]()

func closeDB(db *badger.DB) error { return db.Close() }

type backend struct {
	*badger_kv.Backend
	dir       string
	closeOnce sync.Once
}

func (b *backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = dbs.Release(b.dir, closeDB)
	})
	return err
}

func Init(bp *coremain.BP, args any) (kv.Backend, error) {
	dir := args.(*Args).Dir
	if len(dir) == 0 {
		dir = badger_kv.MemoryPath
	}
	db, err := dbs.Acquire(dir, func() (*badger.DB, error) {
		return badger_kv.Open(dir, bp.L().With(zap.String("dir", dir)))
	})
	if err != nil {
		return nil, err
	}
	b, err := badger_kv.NewBadgerBackend(badger_kv.BadgerOpts{
		DB:        db,
		Path:      dir,
		Namespace: bp.CacheName(),
		Logger:    bp.L(),
	})
	if err != nil {
		dbs.Release(dir, closeDB)
		return nil, err
	}
	return &backend{Backend: b, dir: dir}, nil
}
