package badger_kv

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv"
)

const (
	// MemoryPath opens an in memory database.
	MemoryPath = ":memory:"

	maxConflictRetries = 16
)

var (
	nopLogger = zap.NewNop()
	json      = jsoniter.ConfigCompatibleWithStandardLibrary
)

type BadgerOpts struct {
	// DB is a shared database. If nil, Path is opened and closed
	// by Backend.Close.
	DB *badger.DB

	// Path is MemoryPath or a directory. Default is MemoryPath.
	Path string

	// Namespace cannot be empty and cannot contain '/'.
	Namespace string

	// Logger is the *zap.Logger for this Backend.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *BadgerOpts) Init() error {
	if err := kv.CheckNamespace(opts.Namespace); err != nil {
		return err
	}
	if strings.Contains(opts.Namespace, "/") {
		return fmt.Errorf("invalid namespace %q", opts.Namespace)
	}
	if len(opts.Path) == 0 {
		opts.Path = MemoryPath
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// Open opens a badger database at path, which may be MemoryPath.
// Badger logs go to lg at warning level and above.
func Open(path string, lg *zap.Logger) (*badger.DB, error) {
	var o badger.Options
	if path == MemoryPath {
		o = badger.DefaultOptions("").WithInMemory(true)
	} else {
		o = badger.DefaultOptions(path)
	}
	if lg == nil {
		lg = nopLogger
	}
	o = o.WithLogger(logger{lg.Sugar()}).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger %s, %w", path, err)
	}
	return db, nil
}

// logger adapts zap to badger.Logger.
type logger struct {
	*zap.SugaredLogger
}

func (l logger) Warningf(template string, args ...any) {
	l.Warnf(template, args...)
}

// record is the stored value. S orders records by write time.
type record struct {
	V string `json:"v"`
	S uint64 `json:"s"`
}

// Backend keeps one namespace in a badger database. Records are
// stored under "<namespace>/d/<key>" and the write clock under
// "<namespace>/clock".
type Backend struct {
	opts     BadgerOpts
	db       *badger.DB
	ownDB    bool
	prefix   []byte
	clockKey []byte
}

var _ kv.Backend = (*Backend)(nil)

func NewBadgerBackend(opts BadgerOpts) (*Backend, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}

	db, own := opts.DB, false
	if db == nil {
		var err error
		if db, err = Open(opts.Path, opts.Logger); err != nil {
			return nil, err
		}
		own = true
	}
	return &Backend{
		opts:     opts,
		db:       db,
		ownDB:    own,
		prefix:   []byte(opts.Namespace + "/d/"),
		clockKey: []byte(opts.Namespace + "/clock"),
	}, nil
}

func (b *Backend) key(k string) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	return append(append(out, b.prefix...), k...)
}

func (b *Backend) unavailable(op string, err error) error {
	b.opts.Logger.Warn("badger "+op, zap.String("namespace", b.opts.Namespace), zap.Error(err))
	return kv.Unavailable(op, err)
}

// update runs fn in a read write transaction, retrying it when it
// conflicts with a concurrent one.
func (b *Backend) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		if err = b.db.Update(fn); !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// tick increments and returns the namespace write clock.
func (b *Backend) tick(txn *badger.Txn) (uint64, error) {
	var last uint64
	item, err := txn.Get(b.clockKey)
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupted clock, %d bytes", len(val))
			}
			last = binary.BigEndian.Uint64(val)
			return nil
		})
		if err != nil {
			return 0, err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return 0, err
	}

	next := last + 1
	if err := txn.Set(b.clockKey, binary.BigEndian.AppendUint64(nil, next)); err != nil {
		return 0, err
	}
	return next, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	err := b.update(func(txn *badger.Txn) error {
		s, err := b.tick(txn)
		if err != nil {
			return err
		}
		data, err := json.Marshal(record{V: value, S: s})
		if err != nil {
			return err
		}
		return txn.Set(b.key(key), data)
	})
	if err != nil {
		return b.unavailable("set", err)
	}
	return nil
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	var r record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	switch {
	case err == nil:
		return r.V, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return "", kv.ErrNotFound
	default:
		return "", b.unavailable("get", err)
	}
}

func (b *Backend) Remove(_ context.Context, key string) error {
	err := b.update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return b.unavailable("remove", err)
	}
	return nil
}

func (b *Backend) GetAll(_ context.Context) ([]kv.KV, error) {
	type seqKV struct {
		kv.KV
		s uint64
	}
	var all []seqKV
	err := b.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Prefix = b.prefix
		it := txn.NewIterator(o)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := string(item.Key()[len(b.prefix):])
			var r record
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				b.opts.Logger.Warn("badger skip corrupted record", zap.String("key", k), zap.Error(err))
				continue
			}
			all = append(all, seqKV{KV: kv.KV{Key: k, Value: r.V}, s: r.S})
		}
		return nil
	})
	if err != nil {
		return nil, b.unavailable("get_all", err)
	}

	slices.SortFunc(all, func(x, y seqKV) int { return cmp.Compare(x.s, y.s) })
	out := make([]kv.KV, 0, len(all))
	for _, p := range all {
		out = append(out, p.KV)
	}
	return out, nil
}

// Clear drops the namespace records. The write clock is kept so
// ordering stays monotonic for other holders of the namespace.
func (b *Backend) Clear(_ context.Context) error {
	if err := b.db.DropPrefix(b.prefix); err != nil {
		return b.unavailable("clear", err)
	}
	return nil
}

// Len returns the number of records in the namespace.
func (b *Backend) Len() (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Prefix = b.prefix
		o.PrefetchValues = false
		it := txn.NewIterator(o)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, b.unavailable("len", err)
	}
	return n, nil
}

// Close closes the database if the Backend opened it.
func (b *Backend) Close() error {
	if b.ownDB {
		return b.db.Close()
	}
	return nil
}
