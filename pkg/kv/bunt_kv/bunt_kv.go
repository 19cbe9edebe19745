/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of mosdns.
 *
 * mosdns is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * mosdns is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package bunt_kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv"
)

var (
	nopLogger = zap.NewNop()
	json      = jsoniter.ConfigCompatibleWithStandardLibrary
)

type BuntOpts struct {
	// DB is a shared database. If nil, Path is opened and closed
	// by Backend.Close.
	DB *buntdb.DB

	// Path is ":memory:" or a file. Default is ":memory:".
	Path string

	// Namespace cannot be empty and cannot contain ':', '*' or '?'.
	Namespace string

	// Logger is the *zap.Logger for this Backend.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *BuntOpts) Init() error {
	if err := kv.CheckNamespace(opts.Namespace); err != nil {
		return err
	}
	if strings.ContainsAny(opts.Namespace, ":*?") {
		return fmt.Errorf("invalid namespace %q", opts.Namespace)
	}
	if len(opts.Path) == 0 {
		opts.Path = ":memory:"
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// record is the stored value. S orders records by write time.
type record struct {
	V string `json:"v"`
	S int64  `json:"s"`
}

// Backend keeps one namespace in a buntdb database. Keys are stored
// as "<namespace>:<key>" and indexed by write sequence.
type Backend struct {
	opts   BuntOpts
	db     *buntdb.DB
	ownDB  bool
	prefix string
}

var _ kv.Backend = (*Backend)(nil)

func NewBuntBackend(opts BuntOpts) (*Backend, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}

	db, own := opts.DB, false
	if db == nil {
		var err error
		db, err = buntdb.Open(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open buntdb %s, %w", opts.Path, err)
		}
		own = true
	}

	b := &Backend{
		opts:   opts,
		db:     db,
		ownDB:  own,
		prefix: opts.Namespace + ":",
	}
	err := db.CreateIndex(b.index(), b.prefix+"*", buntdb.IndexJSON("s"))
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		if own {
			db.Close()
		}
		return nil, fmt.Errorf("failed to create index, %w", err)
	}
	return b, nil
}

func (b *Backend) index() string {
	return "seq_" + b.opts.Namespace
}

func (b *Backend) unavailable(op string, err error) error {
	b.opts.Logger.Warn("buntdb "+op, zap.String("namespace", b.opts.Namespace), zap.Error(err))
	return kv.Unavailable(op, err)
}

// nextSeq must be called inside an update transaction.
func (b *Backend) nextSeq(tx *buntdb.Tx) (int64, error) {
	var last int64
	var decodeErr error
	err := tx.Descend(b.index(), func(_, v string) bool {
		var r record
		if decodeErr = json.UnmarshalFromString(v, &r); decodeErr == nil {
			last = r.S
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	if decodeErr != nil {
		return 0, decodeErr
	}
	return last + 1, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		seq, err := b.nextSeq(tx)
		if err != nil {
			return err
		}
		data, err := json.MarshalToString(record{V: value, S: seq})
		if err != nil {
			return err
		}
		_, _, err = tx.Set(b.prefix+key, data, nil)
		return err
	})
	if err != nil {
		return b.unavailable("set", err)
	}
	return nil
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	var v string
	err := b.db.View(func(tx *buntdb.Tx) error {
		data, err := tx.Get(b.prefix + key)
		if err != nil {
			return err
		}
		var r record
		if err := json.UnmarshalFromString(data, &r); err != nil {
			return err
		}
		v = r.V
		return nil
	})
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, buntdb.ErrNotFound):
		return "", kv.ErrNotFound
	default:
		return "", b.unavailable("get", err)
	}
}

func (b *Backend) Remove(_ context.Context, key string) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(b.prefix + key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return b.unavailable("remove", err)
	}
	return nil
}

func (b *Backend) GetAll(_ context.Context) ([]kv.KV, error) {
	var out []kv.KV
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(b.index(), func(k, v string) bool {
			var r record
			if err := json.UnmarshalFromString(v, &r); err != nil {
				b.opts.Logger.Warn("buntdb skip corrupted record", zap.String("key", k), zap.Error(err))
				return true
			}
			out = append(out, kv.KV{Key: strings.TrimPrefix(k, b.prefix), Value: r.V})
			return true
		})
	})
	if err != nil {
		return nil, b.unavailable("get_all", err)
	}
	return out, nil
}

func (b *Backend) Clear(_ context.Context) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		err := tx.AscendKeys(b.prefix+"*", func(k, _ string) bool {
			keys = append(keys, k)
			return true
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return b.unavailable("clear", err)
	}
	return nil
}

// Close closes the database if the Backend opened it.
func (b *Backend) Close() error {
	if b.ownDB {
		return b.db.Close()
	}
	return nil
}
