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

// Package kv defines the shared store a cache namespace lives in.
package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotFound is returned by Backend.Get when the key is absent.
	ErrNotFound = errors.New("kv: key not found")

	// ErrUnavailable marks every error caused by the store being
	// unreachable or failing. Backends never retry.
	ErrUnavailable = errors.New("kv: backend unavailable")
)

type KV struct {
	Key   string
	Value string
}

// Backend is a flat key value mapping scoped to one namespace.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Set upserts key. Writing an existing key makes it the most
	// recently written one.
	Set(ctx context.Context, key, value string) error

	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Remove is idempotent.
	Remove(ctx context.Context, key string) error

	// GetAll returns a snapshot of the namespace ordered from the
	// least recently written key to the most recently written one.
	GetAll(ctx context.Context) ([]KV, error)

	// Clear removes every key of the namespace.
	Clear(ctx context.Context) error

	io.Closer
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// CheckNamespace rejects names a backend cannot scope keys with.
func CheckNamespace(name string) error {
	if len(name) == 0 {
		return errors.New("kv: empty namespace")
	}
	return nil
}
