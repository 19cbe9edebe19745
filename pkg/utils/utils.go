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

package utils

import (
	"fmt"
	"time"

	"golang.org/x/exp/constraints"
)

// SetDefaultNum sets *p to d if *p is zero.
func SetDefaultNum[T constraints.Integer | constraints.Float](p *T, d T) {
	if *p == 0 {
		*p = d
	}
}

// CheckNumRange returns an error if v is outside [min, max].
func CheckNumRange[T constraints.Integer](v, min, max T) error {
	if v < min || v > max {
		return fmt.Errorf("value %d out of range [%d, %d]", v, min, max)
	}
	return nil
}

// Seconds converts a config value in seconds to a time.Duration.
// Negative values are kept negative so callers can reject them.
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// Millis converts a config value in milliseconds to a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
