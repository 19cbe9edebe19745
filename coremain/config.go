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

package coremain

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pmkol/sharedlru/mlog"
	"github.com/pmkol/sharedlru/pkg/utils"
)

type Config struct {
	Log     mlog.LogConfig `yaml:"log"`
	Cache   CacheConfig    `yaml:"cache"`
	Backend BackendConfig  `yaml:"backend"`
	API     APIConfig      `yaml:"api"`
}

type CacheConfig struct {
	// Capacity is required.
	Capacity int `yaml:"capacity"`

	// TTL is the default ttl in seconds. 0 means no expiry.
	TTL int `yaml:"ttl"`
}

// BackendConfig selects a registered backend type. Args are decoded
// into the type's own args struct.
type BackendConfig struct {
	Type      string `yaml:"type"`
	CacheName string `yaml:"cache_name"`

	// Timeout of a single backend call in milliseconds.
	// Default is 1000.
	Timeout int `yaml:"timeout"`

	Args map[string]any `yaml:"args"`
}

type APIConfig struct {
	HTTP string `yaml:"http"`
}

const (
	defaultBackendType = "redis"
	defaultCacheName   = "lru_cache"
	defaultTimeoutMs   = 1000
)

// init fills defaults and validates cfg.
func (cfg *Config) init() error {
	if len(cfg.Backend.Type) == 0 {
		cfg.Backend.Type = defaultBackendType
	}
	if len(cfg.Backend.CacheName) == 0 {
		cfg.Backend.CacheName = defaultCacheName
	}
	utils.SetDefaultNum(&cfg.Backend.Timeout, defaultTimeoutMs)

	if err := utils.CheckNumRange(cfg.Cache.Capacity, 1, math.MaxInt32); err != nil {
		return fmt.Errorf("invalid cache.capacity, %w", err)
	}
	if err := utils.CheckNumRange(cfg.Cache.TTL, 0, math.MaxInt32); err != nil {
		return fmt.Errorf("invalid cache.ttl, %w", err)
	}
	if cfg.Backend.Timeout < 0 {
		return errors.New("invalid backend.timeout, negative value")
	}
	return nil
}

func decoderOpt(cfg *mapstructure.DecoderConfig) {
	cfg.ErrorUnused = true
	cfg.TagName = "yaml"
	cfg.WeaklyTypedInput = true
}

// loadConfig load a config from a file. If filePath is empty, it will
// automatically search and load a file which name start with "config".
// The returned viper instance can be used to watch the file.
func loadConfig(filePath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if len(filePath) > 0 {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeArgs decodes backend args into out, rejecting unknown fields.
func decodeArgs(in map[string]any, out any) error {
	dc := &mapstructure.DecoderConfig{Result: out}
	decoderOpt(dc)
	d, err := mapstructure.NewDecoder(dc)
	if err != nil {
		return err
	}
	return d.Decode(in)
}
