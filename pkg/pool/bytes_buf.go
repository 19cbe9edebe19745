package pool

import (
	"math/bits"
	"sync"
)

// Buffers are pooled in power of two size classes up to 1<<maxShift bytes.
// Larger buffers are never pooled.
const maxShift = 20

var bufPools [maxShift + 1]sync.Pool

func class(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// GetBuf returns a buffer of length n from the pool.
// The buffer content is not zeroed.
// The caller should call ReleaseBuf once the buffer is no longer used.
func GetBuf(n int) *[]byte {
	if n < 0 {
		panic("pool: negative buffer size")
	}
	c := class(n)
	if c > maxShift {
		b := make([]byte, n)
		return &b
	}
	if b, ok := bufPools[c].Get().(*[]byte); ok {
		*b = (*b)[:n]
		return b
	}
	b := make([]byte, n, 1<<c)
	return &b
}

// ReleaseBuf returns b to the pool. b must not be used afterwards.
func ReleaseBuf(b *[]byte) {
	c := cap(*b)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	shift := bits.Len(uint(c)) - 1
	if shift > maxShift {
		return
	}
	bufPools[shift].Put(b)
}
