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

package redis

import (
	"context"

	"github.com/pmkol/sharedlru/coremain"
	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/kv/redis_kv"
)

const BackendType = "redis"

func init() {
	coremain.RegNewBackendFunc(BackendType, Init, func() any { return new(Args) })
}

type Args struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	PoolSize int    `yaml:"pool_size"`

	// Compress stores values snappy compressed. Every instance
	// sharing a namespace must use the same setting.
	Compress bool `yaml:"compress"`
}

func Init(bp *coremain.BP, args any) (kv.Backend, error) {
	a := args.(*Args)
	return redis_kv.Dial(context.Background(), redis_kv.ConnOpts{
		Host:     a.Host,
		Port:     a.Port,
		DB:       a.DB,
		Password: a.Password,
		PoolSize: a.PoolSize,
	}, redis_kv.RedisOpts{
		Namespace:     bp.CacheName(),
		ClientTimeout: bp.Timeout(),
		Compress:      a.Compress,
		Logger:        bp.L(),
	})
}
